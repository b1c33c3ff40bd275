package api

import (
	"time"

	"polymarket-v3-logger/internal/config"
	"polymarket-v3-logger/internal/feed"
)

// SnapshotProvider supplies the live engine state the dashboard reports.
// Implemented by *feed.Engine; an interface here keeps the api package
// free of a dependency cycle back onto feed's internals.
type SnapshotProvider interface {
	Snapshot() feed.Status
}

// BuildSnapshot converts the engine's internal Status into the wire shape.
func BuildSnapshot(provider SnapshotProvider, cfg config.Config) DashboardSnapshot {
	st := provider.Snapshot()

	return DashboardSnapshot{
		Timestamp:      time.Now(),
		AssetID:        st.AssetID,
		PoolSize:       st.PoolSize,
		RecordsWritten: st.RecordsWritten,
		Book: BookStatus{
			MidPrice:    st.MidPrice,
			HasMidPrice: st.HasMidPrice,
			BestBid:     st.BestBid,
			BestAsk:     st.BestAsk,
		},
		Tape: TapeStatus{
			DirectionalImbalance: st.Tape.DirectionalImbalance,
			TradeVelocity:        st.Tape.TradeVelocity,
			BurstScore:           st.Tape.BurstScore,
			IsBursty:             st.Tape.IsBursty,
		},
		LastFrameAt: st.LastFrameAt,
		IsStale:     st.IsStale,
		Config: ConfigSummary{
			AssetID:          cfg.Feed.AssetID,
			DiscoveryEnabled: cfg.Discovery.Enabled,
			OutputPath:       cfg.Output.Path,
			JSONLWrapped:     cfg.Output.JSONLWrapped,
			StaleBookTimeout: cfg.Feed.StaleBookTimeout.String(),
		},
	}
}
