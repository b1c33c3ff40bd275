package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-v3-logger/pkg/types"
)

func TestTapeAddTradeEvictsStale(t *testing.T) {
	t.Parallel()

	tp := NewTape(50*time.Millisecond, 0.7)
	tp.AddTrade(Trade{Timestamp: time.Now(), Side: types.BUY, Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(10)})

	time.Sleep(100 * time.Millisecond)
	tp.AddTrade(Trade{Timestamp: time.Now(), Side: types.SELL, Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(10)})

	if tp.TradeCount() != 1 {
		t.Errorf("expected 1 trade after eviction, got %d", tp.TradeCount())
	}
}

func TestTapeMetricsDirectionalImbalance(t *testing.T) {
	t.Parallel()

	tp := NewTape(time.Minute, 0.7)
	for i := 0; i < 9; i++ {
		tp.AddTrade(Trade{Timestamp: time.Now(), Side: types.BUY, Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(10)})
	}
	tp.AddTrade(Trade{Timestamp: time.Now(), Side: types.SELL, Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(10)})

	metrics := tp.Metrics()
	if metrics.DirectionalImbalance != 0.9 {
		t.Errorf("imbalance = %v, want 0.9", metrics.DirectionalImbalance)
	}
}

func TestTapeAddLastTradePriceEvent(t *testing.T) {
	t.Parallel()

	tp := NewTape(time.Minute, 0.7)
	tp.AddLastTradePriceEvent(types.WSLastTradePriceEvent{
		EventType: "last_trade_price",
		AssetID:   "tok1",
		Price:     "0.42",
		Size:      "100",
		Side:      "BUY",
	})

	if tp.TradeCount() != 1 {
		t.Fatalf("expected 1 trade, got %d", tp.TradeCount())
	}
}

func TestTapeEmptyMetrics(t *testing.T) {
	t.Parallel()

	tp := NewTape(time.Minute, 0.7)
	metrics := tp.Metrics()
	if metrics.IsBursty {
		t.Error("empty tape should not be bursty")
	}
}
