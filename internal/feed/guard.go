// guard.go monitors feed health and raises alerts on anomalies, adapted
// from the teacher's risk.Manager kill-switch shape. There is no capital to
// protect here, so a breach never cancels anything — it only logs and
// sends the alert on the Alerts() channel.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Alert reports a feed-health anomaly.
type Alert struct {
	Reason string
	At     time.Time
}

// GuardConfig controls anomaly thresholds.
type GuardConfig struct {
	StaleBookTimeout      time.Duration // no book update within this window → alert
	ReconnectWindow       time.Duration // rolling window for reconnect counting
	MaxReconnectsInWindow int           // reconnects within ReconnectWindow → storm alert
	CooldownAfterAlert    time.Duration // suppress repeat alerts of the same kind
	CheckInterval         time.Duration // how often the periodic staleness check runs
}

// Guard watches a single asset's feed health: book staleness, reconnect
// storms, and backwards timestamps on decoded frames.
type Guard struct {
	cfg    GuardConfig
	logger *slog.Logger
	book   *Book

	mu             sync.Mutex
	reconnectTimes []time.Time
	lastFrameTS    int64
	alertUntil     map[string]time.Time

	alertCh chan Alert
}

// NewGuard creates a feed-health guard watching book for staleness.
func NewGuard(cfg GuardConfig, book *Book, logger *slog.Logger) *Guard {
	return &Guard{
		cfg:        cfg,
		logger:     logger.With("component", "guard"),
		book:       book,
		alertUntil: make(map[string]time.Time),
		alertCh:    make(chan Alert, 10),
	}
}

// Alerts returns the channel alerts are delivered on.
func (g *Guard) Alerts() <-chan Alert { return g.alertCh }

// Run periodically checks book staleness. Blocks until ctx is cancelled.
func (g *Guard) Run(ctx context.Context) {
	interval := g.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.checkStaleness()
		}
	}
}

// RecordReconnect registers a reconnect event and checks for a storm.
func (g *Guard) RecordReconnect() {
	g.mu.Lock()
	now := time.Now()
	g.reconnectTimes = append(g.reconnectTimes, now)

	cutoff := now.Add(-g.cfg.ReconnectWindow)
	validIdx := 0
	for i, t := range g.reconnectTimes {
		if t.After(cutoff) {
			validIdx = i
			break
		}
		validIdx = i + 1
	}
	g.reconnectTimes = g.reconnectTimes[validIdx:]
	count := len(g.reconnectTimes)
	g.mu.Unlock()

	if g.cfg.MaxReconnectsInWindow > 0 && count >= g.cfg.MaxReconnectsInWindow {
		g.emitAlert("reconnect_storm", fmt.Sprintf("%d reconnects within %s", count, g.cfg.ReconnectWindow))
	}
}

// RecordFrameTimestamp checks a decoded frame's epoch-ms timestamp against
// the last one seen, flagging non-monotonic server clocks.
func (g *Guard) RecordFrameTimestamp(epochMs int64) {
	g.mu.Lock()
	last := g.lastFrameTS
	g.lastFrameTS = epochMs
	g.mu.Unlock()

	if last != 0 && epochMs < last {
		g.emitAlert("backwards_timestamp", fmt.Sprintf("frame timestamp %d < previous %d", epochMs, last))
	}
}

func (g *Guard) checkStaleness() {
	if g.book == nil {
		return
	}
	if g.book.IsStale(g.cfg.StaleBookTimeout) {
		g.emitAlert("stale_book", fmt.Sprintf("no book update within %s", g.cfg.StaleBookTimeout))
	}
}

// emitAlert logs and sends an alert, suppressing repeats of the same
// reason within CooldownAfterAlert.
func (g *Guard) emitAlert(kind, detail string) {
	g.mu.Lock()
	until, seen := g.alertUntil[kind]
	now := time.Now()
	if seen && now.Before(until) {
		g.mu.Unlock()
		return
	}
	g.alertUntil[kind] = now.Add(g.cfg.CooldownAfterAlert)
	g.mu.Unlock()

	alert := Alert{Reason: detail, At: now}
	g.logger.Warn("feed health alert", "kind", kind, "detail", detail)

	select {
	case g.alertCh <- alert:
	default:
		select {
		case <-g.alertCh:
		default:
		}
		g.alertCh <- alert
	}
}
