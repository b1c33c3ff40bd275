// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the market-data logger — the
// WebSocket event payloads that arrive on Polymarket's public "market"
// channel, plus the handful of REST shapes needed to bootstrap a book
// snapshot. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import "time"

// Side represents a price-level side: BUY (bid) or SELL (ask).
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// TickSize represents the price granularity for a market. Polymarket
// supports four tick sizes; each market has a fixed tick size that
// determines the minimum price increment.
type TickSize string

const (
	Tick01    TickSize = "0.1"    // 1 decimal  — coarse markets
	Tick001   TickSize = "0.01"   // 2 decimals — standard markets (most common)
	Tick0001  TickSize = "0.001"  // 3 decimals — fine-grained markets
	Tick00001 TickSize = "0.0001" // 4 decimals — ultra-precise markets
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata (discovery only — no order/signing types)
// ————————————————————————————————————————————————————————————————————————

// MarketInfo is the subset of Gamma API market metadata needed to pick and
// describe an asset to log. Populated by the discovery poller.
type MarketInfo struct {
	ID          string // Gamma market ID
	ConditionID string // CTF condition ID
	Slug        string // human-readable URL slug
	Question    string // the prediction question, e.g. "Will X happen by Y?"

	YesTokenID string // CLOB token ID for the YES outcome
	NoTokenID  string // CLOB token ID for the NO outcome

	TickSize TickSize // price granularity
	NegRisk  bool     // true if this is a neg-risk market

	Active          bool      // market is live
	Closed          bool      // market has been resolved
	AcceptingOrders bool      // CLOB is accepting new orders
	EndDate         time.Time // when the market is scheduled to resolve
	Liquidity       float64   // total USD liquidity on the book
	Volume24h       float64   // trailing 24-hour volume in USD
	Spread          float64   // bestAsk - bestBid
}

// AssetCandidate is emitted by the discovery poller to tell the engine
// which asset IDs are worth logging, ranked by Score.
type AssetCandidate struct {
	Market  MarketInfo
	AssetID string // which token (YES or NO) this candidate refers to
	Score   float64
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
// Price and Size are strings because the CLOB API returns them as strings
// to preserve decimal precision.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBookSnapshot is a point-in-time view of one token's order book.
type OrderBookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Hash      string
	Timestamp time.Time
}

// BookResponse is the REST response from GET /book for a single token. Used
// only to seed a local book mirror before the first WebSocket frame arrives.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	Hash         string       `json:"hash"`
	Timestamp    string       `json:"timestamp"`
	MinOrderSize string       `json:"min_order_size"`
	TickSize     string       `json:"tick_size"`
	NegRisk      bool         `json:"neg_risk"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket events (market channel only — the logger never opens a user
// channel, so trade/order lifecycle events from the authenticated side of
// the API are out of scope)
// ————————————————————————————————————————————————————————————————————————

// WSBookEvent is a full order book snapshot from the market WS channel.
type WSBookEvent struct {
	EventType string       `json:"event_type"` // always "book"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
	Buys      []PriceLevel `json:"buys"`
	Sells     []PriceLevel `json:"sells"`
}

// WSPriceChange is a single price level update within a price_change event.
type WSPriceChange struct {
	Side  string `json:"side"`
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSPriceChangeEvent is an incremental order book update from the market WS.
type WSPriceChangeEvent struct {
	EventType string          `json:"event_type"` // always "price_change"
	AssetID   string          `json:"asset_id"`
	Timestamp string          `json:"timestamp"`
	Changes   []WSPriceChange `json:"changes"`
}

// WSTickSizeChangeEvent notifies that a market's tick size has changed.
type WSTickSizeChangeEvent struct {
	EventType   string `json:"event_type"` // always "tick_size_change"
	AssetID     string `json:"asset_id"`
	Market      string `json:"market"`
	Timestamp   string `json:"timestamp"`
	OldTickSize string `json:"old_tick_size"`
	NewTickSize string `json:"new_tick_size"`
}

// WSLastTradePriceEvent reports the most recent trade on the public tape.
type WSLastTradePriceEvent struct {
	EventType  string  `json:"event_type"` // always "last_trade_price"
	AssetID    string  `json:"asset_id"`
	Market     string  `json:"market"`
	Timestamp  string  `json:"timestamp"`
	Price      string  `json:"price"`
	Size       string  `json:"size"`
	Side       string  `json:"side"`
	FeeRateBps *string `json:"fee_rate_bps,omitempty"`
}

// WSSubscribeMsg is the initial subscription message sent on connect.
type WSSubscribeMsg struct {
	Type     string   `json:"type"` // "market"
	AssetIDs []string `json:"assets_ids,omitempty"`
}

// WSUpdateMsg dynamically subscribes/unsubscribes asset IDs after connect.
type WSUpdateMsg struct {
	AssetIDs  []string `json:"assets_ids,omitempty"`
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
}
