// Command logger runs the Polymarket market-channel logger: it subscribes
// to a CLOB WebSocket market channel (or discovers one via the Gamma API),
// compresses every raw frame with the V3 session codec, and durably
// appends the compressed lines to disk.
//
// Architecture:
//
//	main.go            — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	feed/engine.go      — orchestrator: wires discovery → bootstrap → ws feed → codec → writer
//	feed/discover.go    — polls the Gamma API for a token to log, ranked by opportunity score
//	feed/bootstrap.go   — REST snapshot of the order book before the first WebSocket frame
//	feed/ws.go          — market-channel WebSocket subscriber with auto-reconnect and keepalive
//	feed/book.go        — decoded order-book mirror (dashboard only, not the durable record)
//	feed/tape.go        — decoded trade-flow mirror (dashboard only)
//	feed/guard.go       — feed health monitor: staleness, reconnect storms, clock regressions
//	feed/writer.go      — fsync-per-line durable JSONL writer
//	feed/checkpoint.go  — periodic session-state checkpoint (pool size, records written)
//	codec/session.go    — the V3 codec itself: string pool + varint event stream + DEFLATE
//	api/server.go       — optional read-only dashboard (/health, /api/snapshot)
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"polymarket-v3-logger/internal/api"
	"polymarket-v3-logger/internal/config"
	"polymarket-v3-logger/internal/feed"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := feed.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("polymarket v3 logger started",
		"asset_id", cfg.Feed.AssetID,
		"discovery_enabled", cfg.Discovery.Enabled,
		"output_path", cfg.Output.Path,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
