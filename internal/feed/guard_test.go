package feed

import (
	"context"
	"testing"
	"time"

	"polymarket-v3-logger/pkg/types"
)

func TestGuardStaleBookAlert(t *testing.T) {
	t.Parallel()

	book := NewBook("tok1")
	cfg := GuardConfig{StaleBookTimeout: 10 * time.Millisecond, CheckInterval: 5 * time.Millisecond, CooldownAfterAlert: time.Second}
	g := NewGuard(cfg, book, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	select {
	case alert := <-g.Alerts():
		if alert.Reason == "" {
			t.Error("expected non-empty alert reason")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("expected stale book alert")
	}
}

func TestGuardNoAlertWhenBookFresh(t *testing.T) {
	t.Parallel()

	book := NewBook("tok1")
	book.ApplyBookEvent(types.WSBookEvent{AssetID: "tok1"})

	cfg := GuardConfig{StaleBookTimeout: time.Minute, CheckInterval: 5 * time.Millisecond, CooldownAfterAlert: time.Second}
	g := NewGuard(cfg, book, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	select {
	case alert := <-g.Alerts():
		t.Fatalf("unexpected alert: %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGuardReconnectStorm(t *testing.T) {
	t.Parallel()

	cfg := GuardConfig{ReconnectWindow: time.Second, MaxReconnectsInWindow: 3, CooldownAfterAlert: time.Second}
	g := NewGuard(cfg, nil, newTestLogger())

	g.RecordReconnect()
	g.RecordReconnect()
	g.RecordReconnect()

	select {
	case alert := <-g.Alerts():
		if alert.Reason == "" {
			t.Error("expected reconnect storm alert")
		}
	default:
		t.Fatal("expected reconnect storm alert to be emitted")
	}
}

func TestGuardBackwardsTimestamp(t *testing.T) {
	t.Parallel()

	cfg := GuardConfig{CooldownAfterAlert: time.Second}
	g := NewGuard(cfg, nil, newTestLogger())

	g.RecordFrameTimestamp(1000)
	g.RecordFrameTimestamp(500)

	select {
	case alert := <-g.Alerts():
		if alert.Reason == "" {
			t.Error("expected backwards timestamp alert")
		}
	default:
		t.Fatal("expected backwards timestamp alert to be emitted")
	}
}
