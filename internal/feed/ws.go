// ws.go implements the single-asset subscriber to Polymarket's public
// "market" WebSocket channel.
//
// Unlike a trading bot's feed, this subscriber never parses incoming frames
// into typed events before handing them off — each raw text frame is
// forwarded byte-for-byte on the Frames() channel so the V3 codec can
// compress the exact bytes the server sent, including any shape the decoder
// must later tolerate (a JSON object, a JSON array of events, a bare JSON
// scalar, or non-JSON text such as a heartbeat). When the channel's buffer
// is full, the frame is dropped and a warning is logged.
//
// The connection auto-reconnects with exponential backoff (starting at 1s,
// doubling up to the configured maximum wait, plus up to 1s of jitter) and
// resends the subscribe payload on every reconnect. A read deadline of the
// configured read timeout detects a silently dead connection.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-v3-logger/pkg/types"
)

const (
	readBufferSize = 256 // buffered raw frames awaiting compression
)

// RawFrame is one text frame read off the market channel, stamped with the
// wall-clock time it was received.
type RawFrame struct {
	Payload    string
	ReceivedAt time.Time
}

// MarketFeed subscribes to a single asset ID on the public market channel
// and forwards every raw frame received.
type MarketFeed struct {
	url              string
	assetID          string
	readTimeout      time.Duration
	pingInterval     time.Duration
	maxReconnectWait time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex

	frameCh chan RawFrame

	logger *slog.Logger
}

// NewMarketFeed builds a subscriber for the given asset ID.
func NewMarketFeed(wsURL, assetID string, readTimeout, pingInterval, maxReconnectWait time.Duration, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		url:              wsURL,
		assetID:          assetID,
		readTimeout:      readTimeout,
		pingInterval:     pingInterval,
		maxReconnectWait: maxReconnectWait,
		frameCh:          make(chan RawFrame, readBufferSize),
		logger:           logger.With("component", "ws_market", "asset_id", assetID),
	}
}

// Frames returns the channel of raw frames read from the wire.
func (f *MarketFeed) Frames() <-chan RawFrame { return f.frameCh }

// AssetID returns the token ID this feed is subscribed to.
func (f *MarketFeed) AssetID() string { return f.assetID }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *MarketFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		jitter := time.Duration(rand.Int63n(int64(time.Second)))
		wait := backoff + jitter

		f.logger.Warn("market feed disconnected, reconnecting", "error", err, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > f.maxReconnectWait {
			backoff = f.maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (f *MarketFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *MarketFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(types.WSSubscribeMsg{Type: "market", AssetIDs: []string{f.assetID}}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("market feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		frame := RawFrame{Payload: string(msg), ReceivedAt: time.Now()}
		select {
		case f.frameCh <- frame:
		default:
			f.logger.Warn("frame channel full, dropping frame")
		}
	}
}

func (f *MarketFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *MarketFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return f.conn.WriteJSON(v)
}

func (f *MarketFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return f.conn.WriteMessage(msgType, data)
}
