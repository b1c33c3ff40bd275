// tape.go tracks recent public trades (last_trade_price events) in a
// rolling window and computes flow-imbalance statistics for the status
// dashboard, adapted from the teacher's toxic-flow detector. There is no
// position to protect here — the logger never quotes — so the output is
// descriptive telemetry, not a spread-widening signal.
package feed

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-v3-logger/pkg/types"
)

// Trade records one entry on the public tape.
type Trade struct {
	Timestamp time.Time
	Side      types.Side
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// TapeMetrics summarizes trade flow over the tracking window.
type TapeMetrics struct {
	DirectionalImbalance float64 // [0,1]: share of trades in the dominant direction
	TradeVelocity        float64 // trades per minute
	BurstScore           float64 // [0,1]: composite imbalance+velocity score
	IsBursty             bool    // true if flow looks like a directional sweep
}

// Tape tracks recent trades in a rolling time window.
type Tape struct {
	mu sync.RWMutex

	windowDuration time.Duration
	trades         []Trade

	burstThreshold float64
}

// NewTape creates a tape tracker with the given window and burst threshold.
func NewTape(windowDuration time.Duration, burstThreshold float64) *Tape {
	return &Tape{
		windowDuration: windowDuration,
		trades:         make([]Trade, 0, 100),
		burstThreshold: burstThreshold,
	}
}

// AddTrade records a new trade and evicts anything outside the window.
func (t *Tape) AddTrade(trade Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades = append(t.trades, trade)
	t.evictStaleLocked()
}

// AddLastTradePriceEvent decodes a WSLastTradePriceEvent into a Trade and
// records it.
func (t *Tape) AddLastTradePriceEvent(evt types.WSLastTradePriceEvent) {
	price, _ := decimal.NewFromString(evt.Price)
	size, _ := decimal.NewFromString(evt.Size)
	t.AddTrade(Trade{
		Timestamp: time.Now(),
		Side:      types.Side(evt.Side),
		Price:     price,
		Size:      size,
	})
}

func (t *Tape) evictStaleLocked() {
	if len(t.trades) == 0 {
		return
	}

	cutoff := time.Now().Add(-t.windowDuration)
	validIdx := -1
	for i, tr := range t.trades {
		if tr.Timestamp.After(cutoff) {
			validIdx = i
			break
		}
	}

	if validIdx == -1 {
		t.trades = t.trades[:0]
		return
	}
	if validIdx > 0 {
		t.trades = t.trades[validIdx:]
	}
}

// Metrics computes flow statistics from trades currently in the window.
func (t *Tape) Metrics() TapeMetrics {
	t.mu.Lock()
	t.evictStaleLocked()
	t.mu.Unlock()

	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.trades) == 0 {
		return TapeMetrics{}
	}

	var buyCount, sellCount int
	for _, tr := range t.trades {
		if tr.Side == types.BUY {
			buyCount++
		} else {
			sellCount++
		}
	}

	total := len(t.trades)
	dominant := math.Max(float64(buyCount), float64(sellCount))
	imbalance := dominant / float64(total)

	if total < 2 {
		score := imbalance * 0.6
		return TapeMetrics{
			DirectionalImbalance: imbalance,
			TradeVelocity:        0,
			BurstScore:           score,
			IsBursty:             score > t.burstThreshold,
		}
	}

	velocity := float64(total) / t.windowDuration.Minutes()
	velocityFactor := math.Min(velocity/3.0, 1.0)
	score := 0.6*imbalance + 0.4*velocityFactor

	return TapeMetrics{
		DirectionalImbalance: imbalance,
		TradeVelocity:        velocity,
		BurstScore:           score,
		IsBursty:             score > t.burstThreshold,
	}
}

// TradeCount returns the number of trades currently in the window.
func (t *Tape) TradeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}
