// Package feed implements the market-channel logger: it discovers (or is
// told) a single asset ID to watch, subscribes to Polymarket's public
// "market" WebSocket channel, compresses every frame with the stateful V3
// codec, and durably appends the result to disk — while mirroring a local
// order book and trade tape for a read-only status view.
//
// Collapsed from the teacher's multi-market-slot design (many markets
// quoted concurrently) to a single active asset: there is nothing to quote
// here, so only one subscription needs to be live at a time. When discovery
// is enabled, the engine retargets to a new top-ranked asset by tearing
// down the old session (which closes out its V3 header/pool state) and
// starting a fresh one — the codec's pooling is explicitly session-scoped,
// so there is no cross-asset state to carry across a retarget.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"polymarket-v3-logger/internal/codec"
	"polymarket-v3-logger/internal/config"
	"polymarket-v3-logger/pkg/types"
)

// Status is a point-in-time snapshot for the status dashboard.
type Status struct {
	AssetID        string
	PoolSize       int
	RecordsWritten int64
	MidPrice       float64
	HasMidPrice    bool
	BestBid        float64
	BestAsk        float64
	IsStale        bool
	LastFrameAt    time.Time
	Tape           TapeMetrics
}

// Engine orchestrates discovery, the WebSocket subscriber, the V3 codec,
// durable output, and the health/tape mirrors.
type Engine struct {
	cfg    config.Config
	rl     *RateLimiter
	boot   *Bootstrapper
	disc   *Discoverer
	writer *Writer
	ckpt   *CheckpointStore
	logger *slog.Logger

	mu             sync.RWMutex
	assetID        string
	feed           *MarketFeed
	compressor     *codec.SessionCompressor
	book           *Book
	tape           *Tape
	guard          *Guard
	recordsWritten int64
	lastFrameAt    time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	assetCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New wires all engine components. It does not start any goroutine or
// open a network connection — call Start for that.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	rl := NewRateLimiter()
	boot := NewBootstrapper(cfg.API.CLOBBaseURL, rl, logger)

	writer, err := NewWriter(cfg.Output.Path, cfg.Feed.AssetID, cfg.Output.JSONLWrapped)
	if err != nil {
		return nil, err
	}

	ckptDir := cfg.Output.CheckpointDir
	if ckptDir == "" {
		ckptDir = "checkpoints"
	}
	ckpt, err := OpenCheckpointStore(ckptDir)
	if err != nil {
		return nil, err
	}

	var disc *Discoverer
	if cfg.Discovery.Enabled {
		disc = NewDiscoverer(cfg.API.GammaBaseURL, cfg.Discovery, rl, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:     cfg,
		rl:      rl,
		boot:    boot,
		disc:    disc,
		writer:  writer,
		ckpt:    ckpt,
		logger:  logger.With("component", "engine"),
		assetID: cfg.Feed.AssetID,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the discovery poller (if enabled) and the initial asset
// session. Returns once the first session is running.
func (e *Engine) Start() error {
	if e.disc != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.disc.Run(e.ctx)
		}()

		if e.assetID == "" {
			e.assetID = e.awaitFirstCandidate()
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.watchDiscovery()
		}()
	}

	if e.assetID == "" {
		return errNoAsset
	}

	e.startAssetSession(e.assetID)
	return nil
}

// awaitFirstCandidate blocks (briefly) for the discoverer's first poll and
// returns its top-ranked asset, or "" if none arrived within a short window.
func (e *Engine) awaitFirstCandidate() string {
	select {
	case result := <-e.disc.Results():
		if len(result.Candidates) > 0 {
			return result.Candidates[0].AssetID
		}
	case <-time.After(30 * time.Second):
	case <-e.ctx.Done():
	}
	return ""
}

// watchDiscovery retargets the running session whenever the discoverer
// ranks a different asset on top.
func (e *Engine) watchDiscovery() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case result := <-e.disc.Results():
			if len(result.Candidates) == 0 {
				continue
			}
			top := result.Candidates[0].AssetID

			e.mu.RLock()
			current := e.assetID
			e.mu.RUnlock()

			if top != "" && top != current {
				e.logger.Info("discovery retargeting", "from", current, "to", top)
				e.stopAssetSession()
				e.startAssetSession(top)
			}
		}
	}
}

// startAssetSession wires a fresh MarketFeed/compressor/book/tape/guard for
// assetID and launches its goroutines.
func (e *Engine) startAssetSession(assetID string) {
	assetCtx, assetCancel := context.WithCancel(e.ctx)

	book := NewBook(assetID)
	tape := NewTape(time.Minute, 0.7)
	guardCfg := GuardConfig{
		StaleBookTimeout:      e.cfg.Feed.StaleBookTimeout,
		ReconnectWindow:       time.Minute,
		MaxReconnectsInWindow: 5,
		CooldownAfterAlert:    time.Minute,
		CheckInterval:         5 * time.Second,
	}
	guard := NewGuard(guardCfg, book, e.logger)

	mf := NewMarketFeed(e.cfg.API.WSMarketURL, assetID, e.cfg.Feed.ReadTimeout, e.cfg.Feed.PingInterval, e.cfg.Feed.MaxReconnectWait, e.logger)
	compressor := codec.NewSessionCompressor(assetID)

	e.mu.Lock()
	e.assetID = assetID
	e.feed = mf
	e.compressor = compressor
	e.book = book
	e.tape = tape
	e.guard = guard
	e.assetCancel = assetCancel
	e.mu.Unlock()

	if resp, err := e.boot.GetOrderBook(assetCtx, assetID); err != nil {
		e.logger.Warn("bootstrap book fetch failed, starting cold", "asset_id", assetID, "error", err)
	} else {
		book.ApplyBookResponse(resp)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		guard.Run(assetCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := mf.Run(assetCtx); err != nil && assetCtx.Err() == nil {
			e.logger.Error("market feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processFrames(assetCtx, mf, compressor, book, tape, guard, assetID)
	}()
}

func (e *Engine) stopAssetSession() {
	e.mu.RLock()
	cancel := e.assetCancel
	feed := e.feed
	assetID := e.assetID
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if feed != nil {
		feed.Close()
	}
	e.saveCheckpoint(assetID)
}

// processFrames reads raw frames, compresses them, writes them durably, and
// mirrors decoded book/trade/guard state for the dashboard.
func (e *Engine) processFrames(ctx context.Context, mf *MarketFeed, compressor *codec.SessionCompressor, book *Book, tape *Tape, guard *Guard, assetID string) {
	checkpointTicker := time.NewTicker(30 * time.Second)
	defer checkpointTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkpointTicker.C:
			e.saveCheckpoint(assetID)
		case frame, ok := <-mf.Frames():
			if !ok {
				return
			}
			e.handleFrame(frame, compressor, book, tape, guard, assetID)
		}
	}
}

func (e *Engine) handleFrame(frame RawFrame, compressor *codec.SessionCompressor, book *Book, tape *Tape, guard *Guard, assetID string) {
	epochMs := frame.ReceivedAt.UnixMilli()

	tokens, err := compressor.Compress(frame.Payload)
	if err != nil {
		e.logger.Warn("compress failed, writing fallback record", "asset_id", assetID, "error", err)
		payload := parseFallbackPayload(frame.Payload)
		if werr := e.writer.WriteFallback(epochMs, payload); werr != nil {
			e.logger.Error("fallback write failed", "error", werr)
		}
		return
	}

	if err := e.writer.WriteLines(epochMs, tokens); err != nil {
		e.logger.Error("write failed", "error", err)
		return
	}

	e.mu.Lock()
	e.recordsWritten += int64(len(tokens))
	e.lastFrameAt = frame.ReceivedAt
	e.mu.Unlock()

	if events, ok := splitFrameEvents(frame.Payload); ok {
		for _, raw := range events {
			var ev struct {
				Timestamp json.Number `json:"timestamp"`
			}
			if jsonUnmarshal(raw, &ev) != nil {
				continue
			}
			if ts, err := ev.Timestamp.Int64(); err == nil {
				guard.RecordFrameTimestamp(ts)
			}
		}
	}
	mirrorDecodedEvent(frame.Payload, book, tape)
}

func (e *Engine) saveCheckpoint(assetID string) {
	if assetID == "" {
		return
	}
	e.mu.RLock()
	cp := Checkpoint{
		AssetID:         assetID,
		RecordsWritten:  e.recordsWritten,
		LastFrameAt:     e.lastFrameAt,
		LastFrameTSUnix: e.lastFrameAt.UnixMilli(),
	}
	if e.compressor != nil {
		cp.PoolSize = e.compressor.PoolSize()
	}
	e.mu.RUnlock()

	if err := e.ckpt.Save(cp); err != nil {
		e.logger.Error("checkpoint save failed", "error", err)
	}
}

// Snapshot returns the current status for the dashboard.
func (e *Engine) Snapshot() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := Status{
		AssetID:        e.assetID,
		RecordsWritten: e.recordsWritten,
		LastFrameAt:    e.lastFrameAt,
	}
	if e.compressor != nil {
		status.PoolSize = e.compressor.PoolSize()
	}
	if e.book != nil {
		if mid, ok := e.book.MidPrice(); ok {
			status.MidPrice = mid
			status.HasMidPrice = true
		}
		status.BestBid, status.BestAsk, _ = e.book.BestBidAsk()
		status.IsStale = e.book.IsStale(e.cfg.Feed.StaleBookTimeout)
	}
	if e.tape != nil {
		status.Tape = e.tape.Metrics()
	}
	return status
}

// Stop gracefully shuts down: cancels all contexts, checkpoints progress,
// waits for goroutines, and closes resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.mu.RLock()
	assetID := e.assetID
	e.mu.RUnlock()

	e.cancel()
	e.wg.Wait()

	e.saveCheckpoint(assetID)

	if e.feed != nil {
		e.feed.Close()
	}
	if err := e.writer.Close(); err != nil {
		e.logger.Error("writer close failed", "error", err)
	}

	e.logger.Info("shutdown complete")
}

// mirrorDecodedEvent updates the book/tape mirrors from a raw frame's JSON
// shape, best-effort — it never blocks compression or writing, and parse
// failures here are silently ignored (the durable record was already
// written regardless of what the mirror can make of it).
func mirrorDecodedEvent(payload string, book *Book, tape *Tape) {
	events, ok := splitFrameEvents(payload)
	if !ok {
		return
	}

	for _, raw := range events {
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if jsonUnmarshal(raw, &envelope) != nil {
			continue
		}

		switch envelope.EventType {
		case "book":
			var evt types.WSBookEvent
			if jsonUnmarshal(raw, &evt) == nil {
				book.ApplyBookEvent(evt)
			}
		case "price_change":
			var evt types.WSPriceChangeEvent
			if jsonUnmarshal(raw, &evt) == nil {
				book.ApplyPriceChange(evt)
			}
		case "last_trade_price":
			var evt types.WSLastTradePriceEvent
			if jsonUnmarshal(raw, &evt) == nil {
				tape.AddLastTradePriceEvent(evt)
			}
		}
	}
}

// splitFrameEvents parses a raw frame into a slice of raw JSON objects: a
// single object becomes a one-element slice, a JSON array of objects is
// returned as-is, and anything else (bare scalars, non-JSON text) reports
// ok=false.
func splitFrameEvents(payload string) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, false
	}

	switch trimmed[0] {
	case '{':
		return []json.RawMessage{json.RawMessage(trimmed)}, true
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil, false
		}
		return arr, true
	default:
		return nil, false
	}
}

func jsonUnmarshal(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// parseFallbackPayload mirrors the original logger's fail-safe path: parse
// the message as JSON if possible, otherwise wrap it as {"_raw": message}.
func parseFallbackPayload(message string) any {
	var v any
	dec := json.NewDecoder(strings.NewReader(message))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return map[string]any{"_raw": message}
	}
	return v
}

var errNoAsset = &engineError{"no asset ID configured and discovery found none"}

type engineError struct{ msg string }

func (e *engineError) Error() string { return e.msg }
