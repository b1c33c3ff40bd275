package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-v3-logger/internal/config"
	"polymarket-v3-logger/pkg/types"
)

// Discoverer periodically polls the Gamma API to pick an asset ID worth
// logging when Feed.AssetID is left empty in config. It ranks candidate
// markets by a composite score:
//
//	score = spread × √(volume24h) × min(liquidity/10000, 1)
//
// The highest-scoring candidate's token is handed to the engine, which
// (re)subscribes the MarketFeed to it. Unlike a market maker's scanner, this
// never drives order placement or position sizing — it only picks what to
// watch.

// GammaMarket is the JSON shape returned by the Gamma API.
type GammaMarket struct {
	ID                    string  `json:"id"`
	Question              string  `json:"question"`
	ConditionID           string  `json:"conditionId"`
	Slug                  string  `json:"slug"`
	Active                bool    `json:"active"`
	Closed                bool    `json:"closed"`
	AcceptingOrders       bool    `json:"acceptingOrders"`
	EnableOrderBook       bool    `json:"enableOrderBook"`
	EndDate               string  `json:"endDate"`
	Liquidity             string  `json:"liquidity"`
	Volume24hr            float64 `json:"volume24hr"`
	ClobTokenIds          string  `json:"clobTokenIds"`
	NegRisk               bool    `json:"negRisk"`
	Spread                float64 `json:"spread"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
}

// DiscoveryResult ranks candidate assets found on a single poll.
type DiscoveryResult struct {
	Candidates []types.AssetCandidate
	ScannedAt  time.Time
}

// Discoverer polls the Gamma API for wide-spread, liquid markets.
type Discoverer struct {
	httpClient *resty.Client
	cfg        config.DiscoveryConfig
	logger     *slog.Logger
	resultCh   chan DiscoveryResult
}

// NewDiscoverer creates a market discovery poller.
func NewDiscoverer(baseURL string, cfg config.DiscoveryConfig, rl *RateLimiter, logger *slog.Logger) *Discoverer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	_ = rl // book/discovery buckets are separate; discovery uses its own pacing via PollInterval

	return &Discoverer{
		httpClient: client,
		cfg:        cfg,
		logger:     logger.With("component", "discover"),
		resultCh:   make(chan DiscoveryResult, 1),
	}
}

// Results returns the channel the engine reads ranked candidates from.
func (d *Discoverer) Results() <-chan DiscoveryResult {
	return d.resultCh
}

// Run polls on cfg.PollInterval, with an immediate poll at startup. Blocks
// until ctx is cancelled.
func (d *Discoverer) Run(ctx context.Context) {
	d.poll(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Discoverer) poll(ctx context.Context) {
	markets, err := d.fetchMarkets(ctx)
	if err != nil {
		d.logger.Error("discovery poll failed", "error", err)
		return
	}

	filtered := d.filterMarkets(markets)
	ranked := d.rankMarkets(filtered)

	result := DiscoveryResult{Candidates: ranked, ScannedAt: time.Now()}

	d.logger.Info("discovery poll complete",
		"total", len(markets),
		"filtered", len(filtered),
		"ranked", len(ranked),
	)

	select {
	case d.resultCh <- result:
	default:
		select {
		case <-d.resultCh:
		default:
		}
		d.resultCh <- result
	}
}

func (d *Discoverer) fetchMarkets(ctx context.Context) ([]GammaMarket, error) {
	var allMarkets []GammaMarket
	offset := 0
	limit := 100

	for {
		var page []GammaMarket
		resp, err := d.httpClient.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(limit),
				"offset": strconv.Itoa(offset),
				"active": "true",
				"closed": "false",
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page %d: %w", offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		allMarkets = append(allMarkets, page...)
		if len(page) < limit {
			break
		}
		offset += limit
	}

	return allMarkets, nil
}

// filterMarkets applies hard filters: inactive, closed, not accepting
// orders, no order book, excluded slugs, below threshold
// liquidity/volume/spread, end date beyond the configured window, or
// missing token IDs.
func (d *Discoverer) filterMarkets(markets []GammaMarket) []GammaMarket {
	excluded := make(map[string]bool)
	for _, slug := range d.cfg.ExcludeSlugs {
		slug = strings.ToLower(strings.TrimSpace(slug))
		if slug != "" {
			excluded[slug] = true
		}
	}

	now := time.Now()
	maxEnd := now.AddDate(0, 0, d.cfg.MaxEndDateDays)

	var result []GammaMarket
	for _, m := range markets {
		if !m.Active || m.Closed || !m.AcceptingOrders || !m.EnableOrderBook {
			continue
		}
		if excluded[strings.ToLower(m.Slug)] {
			continue
		}

		liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
		if liquidity < d.cfg.MinLiquidity {
			continue
		}
		if m.Volume24hr < d.cfg.MinVolume24h {
			continue
		}
		if m.Spread < d.cfg.MinSpread {
			continue
		}

		if m.EndDate != "" {
			endDate, err := time.Parse(time.RFC3339, m.EndDate)
			if err != nil {
				continue
			}
			if d.cfg.MaxEndDateDays > 0 && (endDate.Before(now) || endDate.After(maxEnd)) {
				continue
			}
		}

		if m.ClobTokenIds == "" {
			continue
		}

		result = append(result, m)
	}

	return result
}

// rankMarkets scores and sorts markets, then emits one candidate per
// outcome token (YES and NO both watchable independently).
func (d *Discoverer) rankMarkets(markets []GammaMarket) []types.AssetCandidate {
	type scored struct {
		market GammaMarket
		score  float64
	}

	scoredMarkets := make([]scored, 0, len(markets))
	for _, m := range markets {
		liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
		liquidityFactor := math.Min(liquidity/10000.0, 1.0)
		score := m.Spread * math.Sqrt(m.Volume24hr) * liquidityFactor
		scoredMarkets = append(scoredMarkets, scored{market: m, score: score})
	}

	sort.Slice(scoredMarkets, func(i, j int) bool {
		return scoredMarkets[i].score > scoredMarkets[j].score
	})

	var result []types.AssetCandidate
	for _, sm := range scoredMarkets {
		info := convertToMarketInfo(sm.market)
		if info.YesTokenID != "" {
			result = append(result, types.AssetCandidate{Market: info, AssetID: info.YesTokenID, Score: sm.score})
		}
		if info.NoTokenID != "" {
			result = append(result, types.AssetCandidate{Market: info, AssetID: info.NoTokenID, Score: sm.score})
		}
	}

	return result
}

// convertToMarketInfo transforms a Gamma API response into the internal
// MarketInfo type, parsing JSON-encoded token IDs and mapping the numeric
// tick size to the TickSize enum.
func convertToMarketInfo(gm GammaMarket) types.MarketInfo {
	liquidity, _ := strconv.ParseFloat(gm.Liquidity, 64)

	var tokenIDs []string
	if gm.ClobTokenIds != "" {
		var ids []string
		if err := parseJSONArray(gm.ClobTokenIds, &ids); err == nil {
			tokenIDs = ids
		}
	}

	var yesToken, noToken string
	if len(tokenIDs) >= 2 {
		yesToken = tokenIDs[0]
		noToken = tokenIDs[1]
	}

	var tickSize types.TickSize
	switch gm.OrderPriceMinTickSize {
	case 0.1:
		tickSize = types.Tick01
	case 0.001:
		tickSize = types.Tick0001
	case 0.0001:
		tickSize = types.Tick00001
	default:
		tickSize = types.Tick001
	}

	endDate, _ := time.Parse(time.RFC3339, gm.EndDate)

	return types.MarketInfo{
		ID:              gm.ID,
		ConditionID:     gm.ConditionID,
		Slug:            gm.Slug,
		Question:        gm.Question,
		YesTokenID:      yesToken,
		NoTokenID:       noToken,
		TickSize:        tickSize,
		NegRisk:         gm.NegRisk,
		Active:          gm.Active,
		Closed:          gm.Closed,
		AcceptingOrders: gm.AcceptingOrders,
		EndDate:         endDate,
		Liquidity:       liquidity,
		Volume24h:       gm.Volume24hr,
		Spread:          gm.Spread,
	}
}

// parseJSONArray parses a JSON array string into a string slice.
func parseJSONArray(s string, out *[]string) error {
	return json.Unmarshal([]byte(s), out)
}
