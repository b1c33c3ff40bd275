// book.go maintains a local mirror of a single asset's order book, built
// from the REST bootstrap snapshot and from the JSON of the raw market
// frames (parsed alongside compression), for the status dashboard and
// staleness checks. It is not consulted by the codec — compression/decompression
// works on raw frame text regardless of book state.
package feed

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"polymarket-v3-logger/pkg/types"
)

// Book mirrors one token's order book.
type Book struct {
	mu      sync.RWMutex
	assetID string
	bids    map[string]string // price -> size
	asks    map[string]string
	hash    string
	updated time.Time
}

// NewBook creates an empty book mirror for the given asset.
func NewBook(assetID string) *Book {
	return &Book{
		assetID: assetID,
		bids:    make(map[string]string),
		asks:    make(map[string]string),
	}
}

// ApplyBookEvent replaces the book with a full snapshot.
func (b *Book) ApplyBookEvent(event types.WSBookEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = levelsToMap(event.Buys)
	b.asks = levelsToMap(event.Sells)
	b.hash = event.Hash
	b.updated = time.Now()
}

// ApplyBookResponse applies a REST bootstrap snapshot.
func (b *Book) ApplyBookResponse(resp *types.BookResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = levelsToMap(resp.Bids)
	b.asks = levelsToMap(resp.Asks)
	b.hash = resp.Hash
	b.updated = time.Now()
}

// ApplyPriceChange merges incremental level updates into the book. A size
// of "0" removes the level.
func (b *Book) ApplyPriceChange(event types.WSPriceChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event.AssetID != "" && event.AssetID != b.assetID {
		return
	}

	for _, ch := range event.Changes {
		var side map[string]string
		switch ch.Side {
		case string(types.BUY):
			side = b.bids
		case string(types.SELL):
			side = b.asks
		default:
			continue
		}

		if ch.Size == "" || ch.Size == "0" {
			delete(side, ch.Price)
		} else {
			side[ch.Price] = ch.Size
		}
	}
	b.updated = time.Now()
}

// MidPrice returns (bestBid + bestAsk) / 2. Returns false if either side is empty.
func (b *Book) MidPrice() (float64, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// BestBidAsk returns the highest bid and lowest ask currently on the book.
func (b *Book) BestBidAsk() (bid, ask float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, 0, false
	}

	return bestOf(b.bids, true), bestOf(b.asks, false), true
}

// IsStale reports whether the book hasn't updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

// LastUpdated returns the timestamp of the last applied book update.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// Hash returns the most recently observed book hash.
func (b *Book) Hash() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hash
}

func levelsToMap(levels []types.PriceLevel) map[string]string {
	m := make(map[string]string, len(levels))
	for _, l := range levels {
		m[l.Price] = l.Size
	}
	return m
}

// bestOf returns the highest price (descending=true, for bids) or lowest
// price (descending=false, for asks) among all levels in side; sizes are
// not consulted, so a level stored with size "0" still counts.
func bestOf(side map[string]string, descending bool) float64 {
	prices := make([]float64, 0, len(side))
	for p := range side {
		prices = append(prices, parsePrice(p))
	}
	sort.Float64s(prices)
	if descending {
		return prices[len(prices)-1]
	}
	return prices[0]
}

func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
