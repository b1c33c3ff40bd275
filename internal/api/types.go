package api

import "time"

// DashboardSnapshot is the single read-only view this service exposes: the
// current logged asset, its decoded book/tape mirror, codec progress, and
// whether the book mirror is stale. There is no live-push variant — a polling
// client hits /api/snapshot as often as it wants.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	AssetID        string `json:"asset_id"`
	PoolSize       int    `json:"pool_size"`
	RecordsWritten int64  `json:"records_written"`

	Book BookStatus `json:"book"`
	Tape TapeStatus `json:"tape"`

	LastFrameAt time.Time `json:"last_frame_at"`
	IsStale     bool      `json:"is_stale"`

	Config ConfigSummary `json:"config"`
}

// BookStatus mirrors the decoded order-book state for the active asset.
type BookStatus struct {
	MidPrice    float64 `json:"mid_price"`
	HasMidPrice bool    `json:"has_mid_price"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
}

// TapeStatus mirrors the decoded trade-flow metrics for the active asset.
type TapeStatus struct {
	DirectionalImbalance float64 `json:"directional_imbalance"`
	TradeVelocity        float64 `json:"trade_velocity"`
	BurstScore           float64 `json:"burst_score"`
	IsBursty             bool    `json:"is_bursty"`
}

// ConfigSummary reports the feed/output configuration actually in effect,
// for operators diagnosing a running session without re-reading the YAML.
type ConfigSummary struct {
	AssetID          string `json:"asset_id"`
	DiscoveryEnabled bool   `json:"discovery_enabled"`
	OutputPath       string `json:"output_path"`
	JSONLWrapped     bool   `json:"jsonl_wrapped"`
	StaleBookTimeout string `json:"stale_book_timeout"`
}
