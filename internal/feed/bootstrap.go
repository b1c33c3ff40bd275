// bootstrap.go fetches a one-time REST order book snapshot to seed the
// local book mirror before the first WebSocket frame arrives.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-v3-logger/pkg/types"
)

// Bootstrapper fetches GET /book snapshots from the CLOB REST API.
type Bootstrapper struct {
	httpClient *resty.Client
	rl         *RateLimiter
	logger     *slog.Logger
}

// NewBootstrapper builds a Bootstrapper against the given CLOB base URL.
func NewBootstrapper(baseURL string, rl *RateLimiter, logger *slog.Logger) *Bootstrapper {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Bootstrapper{
		httpClient: client,
		rl:         rl,
		logger:     logger,
	}
}

// GetOrderBook fetches the current order book for a single token ID.
func (b *Bootstrapper) GetOrderBook(ctx context.Context, assetID string) (*types.BookResponse, error) {
	if err := b.rl.Book.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap rate limit: %w", err)
	}

	var book types.BookResponse
	resp, err := b.httpClient.R().
		SetContext(ctx).
		SetQueryParam("token_id", assetID).
		SetResult(&book).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get order book: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get order book: status %d: %s", resp.StatusCode(), resp.String())
	}

	b.logger.Debug("fetched bootstrap book snapshot",
		"asset_id", assetID,
		"bids", len(book.Bids),
		"asks", len(book.Asks),
		"hash", book.Hash,
	)
	return &book, nil
}
