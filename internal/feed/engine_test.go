package feed

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-v3-logger/internal/config"
)

func TestEngineEndToEndSingleAsset(t *testing.T) {
	t.Parallel()

	bootstrapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":"0xabc","asset_id":"tok1","bids":[{"price":"0.5","size":"10"}],"asks":[{"price":"0.6","size":"5"}],"hash":"h0"}`))
	}))
	defer bootstrapSrv.Close()

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // consume subscribe

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"book","asset_id":"tok1","market":"0xabc","hash":"h1","buys":[{"price":"0.51","size":"20"}],"sells":[{"price":"0.59","size":"15"}]}`))
		time.Sleep(300 * time.Millisecond)
	}))
	defer wsSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	outDir := t.TempDir()

	cfg := config.Config{
		API: config.APIConfig{
			CLOBBaseURL: bootstrapSrv.URL,
			WSMarketURL: wsURL,
		},
		Feed: config.FeedConfig{
			AssetID:          "tok1",
			ReadTimeout:      5 * time.Second,
			PingInterval:     time.Hour,
			MaxReconnectWait: time.Second,
			StaleBookTimeout: time.Minute,
		},
		Output: config.OutputConfig{
			Path:          filepath.Join(outDir, "out.jsonl"),
			CheckpointDir: filepath.Join(outDir, "checkpoints"),
		},
	}

	e, err := New(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Snapshot().RecordsWritten > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	status := e.Snapshot()
	if status.RecordsWritten == 0 {
		t.Fatal("expected at least one record written")
	}
	if status.AssetID != "tok1" {
		t.Errorf("AssetID = %q, want tok1", status.AssetID)
	}

	e.Stop()

	lines := readLines(t, cfg.Output.Path)
	if len(lines) == 0 {
		t.Fatal("expected output file to have lines")
	}
}

func TestEngineAppliesPriceChangeToBookMirror(t *testing.T) {
	t.Parallel()

	bootstrapSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"market":"0xabc","asset_id":"tok1","bids":[{"price":"0.5","size":"10"}],"asks":[{"price":"0.6","size":"5"}],"hash":"h0"}`))
	}))
	defer bootstrapSrv.Close()

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // consume subscribe

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"book","asset_id":"tok1","market":"0xabc","hash":"h1","buys":[{"price":"0.50","size":"100"}],"sells":[{"price":"0.55","size":"80"}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"price_change","asset_id":"tok1","timestamp":"1700000000000","changes":[{"side":"BUY","price":"0.52","size":"20"},{"side":"BUY","price":"0.50","size":"0"}]}`))
		time.Sleep(300 * time.Millisecond)
	}))
	defer wsSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	outDir := t.TempDir()

	cfg := config.Config{
		API: config.APIConfig{
			CLOBBaseURL: bootstrapSrv.URL,
			WSMarketURL: wsURL,
		},
		Feed: config.FeedConfig{
			AssetID:          "tok1",
			ReadTimeout:      5 * time.Second,
			PingInterval:     time.Hour,
			MaxReconnectWait: time.Second,
			StaleBookTimeout: time.Minute,
		},
		Output: config.OutputConfig{
			Path:          filepath.Join(outDir, "out.jsonl"),
			CheckpointDir: filepath.Join(outDir, "checkpoints"),
		},
	}

	e, err := New(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var status Status
	for time.Now().Before(deadline) {
		status = e.Snapshot()
		if status.BestBid == 0.52 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if status.BestBid != 0.52 {
		t.Fatalf("BestBid = %v, want 0.52 (price_change should have upserted 0.52 and removed 0.50)", status.BestBid)
	}
	if status.BestAsk != 0.55 {
		t.Errorf("BestAsk = %v, want 0.55", status.BestAsk)
	}
}

func TestEngineRequiresAssetWhenDiscoveryDisabled(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	cfg := config.Config{
		API:  config.APIConfig{WSMarketURL: "ws://localhost:1"},
		Feed: config.FeedConfig{ReadTimeout: time.Second, PingInterval: time.Second, MaxReconnectWait: time.Second},
		Output: config.OutputConfig{
			Path:          filepath.Join(outDir, "out.jsonl"),
			CheckpointDir: filepath.Join(outDir, "checkpoints"),
		},
	}

	e, err := New(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Start(); err == nil {
		t.Fatal("expected Start to fail with no asset ID and discovery disabled")
	}
}
