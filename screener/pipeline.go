// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package screener

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/metrics"
	"github.com/finsieve/finsieve/observability/opentelemetry"
)

// Rejection reasons attached to filtered groups.
const (
	ReasonLiquidity = "liquidity"
	ReasonSpread    = "spread"
	ReasonCoverage  = "coverage"
	ReasonNotFound  = "not-found"
)

const (
	DefaultChunkSize    = 25
	DefaultHistoryYears = 3
)

// Criteria selects which filter mode runs and with what limits.
// Exactly one of the two modes applies: Coverage > 0 selects coverage
// mode, otherwise the thresholds apply.
type Criteria struct {
	MinADV    *float64 `json:"minAdv,omitempty"`
	MaxSpread *float64 `json:"maxSpread,omitempty"`
	Coverage  float64  `json:"coverage,omitempty"`
}

// Pipeline runs the full enrich-and-filter pass: fetch every listing's
// market data, aggregate listings into logical instruments, classify
// and filter.
type Pipeline struct {
	client     *data.Client
	fx         *data.FXCache
	budget     *data.CreditBudget
	chunkSize  int
	chunkDelay time.Duration
	history    int
	ttm        metrics.TTMOptions
}

func NewPipeline(client *data.Client, fx *data.FXCache, budget *data.CreditBudget) *Pipeline {
	return &Pipeline{
		client:    client,
		fx:        fx,
		budget:    budget,
		chunkSize: DefaultChunkSize,
		history:   DefaultHistoryYears,
	}
}

// SetChunkSize overrides how many listings are fetched concurrently.
func (p *Pipeline) SetChunkSize(n int) {
	if n > 0 {
		p.chunkSize = n
	}
}

// SetChunkDelay inserts a courtesy pause between chunks, separate from
// the credit-budget throttle.
func (p *Pipeline) SetChunkDelay(d time.Duration) {
	if d > 0 {
		p.chunkDelay = d
	}
}

// SetTTMOptions overrides the trailing dividend window and the split
// detection lookback.
func (p *Pipeline) SetTTMOptions(opts metrics.TTMOptions) {
	p.ttm = opts
}

type listingResult struct {
	security *data.Instrument
	listing  *Listing
	err      error
}

// Run enriches every instrument, aggregates listings by ISIN and
// applies the criteria. It always returns a report: per-listing
// failures degrade that listing's metrics to nil rather than aborting
// the run.
func (p *Pipeline) Run(ctx context.Context, instruments []*data.Instrument, criteria Criteria) *Report {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "screener.Run")
	defer span.End()

	started := time.Now()
	now := time.Now()

	subLog := log.With().Int("NumInstruments", len(instruments)).Logger()
	subLog.Info().Msg("starting screener run")

	listings := make([]*Listing, 0, len(instruments))
	notFound := make([]*data.Instrument, 0)

	// fetch in chunks so that a huge catalog does not open thousands of
	// simultaneous requests; the credit budget throttles within a chunk
	for chunkIdx, chunk := range partitionInstruments(instruments, p.chunkSize) {
		if chunkIdx > 0 && p.chunkDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.chunkDelay):
			}
		}

		results := make([]listingResult, len(chunk))
		var wg sync.WaitGroup
		for idx, security := range chunk {
			wg.Add(1)
			go func(idx int, security *data.Instrument) {
				defer wg.Done()
				listing, err := p.fetchListing(ctx, security, now)
				results[idx] = listingResult{security: security, listing: listing, err: err}
			}(idx, security)
		}
		wg.Wait()

		for _, res := range results {
			switch {
			case errors.Is(res.err, data.ErrSymbolNotFound), errors.Is(res.err, data.ErrNoCandidates):
				log.Info().Str("Symbol", res.security.Symbol).Str("Exchange", res.security.Exchange).Msg("symbol could not be resolved")
				notFound = append(notFound, res.security)
			case res.err != nil:
				// degraded listing: identity survives, metrics are nil
				log.Warn().Err(res.err).Str("Symbol", res.security.Symbol).Msg("listing enrichment failed")
				listings = append(listings, &Listing{
					Security: res.security,
					Yield:    metrics.YieldEstimate{Source: metrics.SourceUnavailable, Confidence: metrics.ConfidenceLow},
					Payout:   metrics.PayoutRating{Band: metrics.BandUnknown},
				})
			default:
				listings = append(listings, res.listing)
			}
		}
	}

	groups := Aggregate(listings)
	for _, group := range groups {
		group.Bucket = Classify(group)
	}

	ApplyCriteria(groups, criteria)

	report := buildReport(groups, notFound, criteria, p.budget, time.Since(started))
	subLog.Info().Int("Accepted", len(report.Accepted)).Int("Rejected", len(report.Rejected)).Int("CreditsSpent", report.Stats.CreditsSpent).Msg("screener run complete")
	return report
}

// fetchListing downloads and derives everything for one exchange
// listing. Bars drive symbol resolution and must come first; the
// dividend, split and statistics fetches then reuse the resolved wire
// symbol and run concurrently.
func (p *Pipeline) fetchListing(ctx context.Context, security *data.Instrument, now time.Time) (*Listing, error) {
	begin := now.AddDate(-p.history, -1, 0)

	bars, err := p.client.Bars(ctx, security, begin, now)
	if err != nil {
		return nil, err
	}

	var (
		dividends []*data.DividendEvent
		splits    []*data.SplitEvent
		stats     *data.Statistics
		wg        sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		var err error
		dividends, err = p.client.Dividends(ctx, security, now.AddDate(-2, 0, 0), now)
		if err != nil {
			log.Warn().Err(err).Str("Symbol", security.Symbol).Msg("dividend fetch failed")
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		splits, err = p.client.Splits(ctx, security, now.AddDate(-2, 0, 0))
		if err != nil {
			log.Warn().Err(err).Str("Symbol", security.Symbol).Msg("split fetch failed")
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		stats, err = p.client.Statistics(ctx, security)
		if err != nil {
			log.Warn().Err(err).Str("Symbol", security.Symbol).Msg("statistics fetch failed")
		}
	}()
	wg.Wait()

	listing := &Listing{
		Security: security,
		FXRate:   1.0,
	}
	if wire, ok := p.client.ResolvedWire(security); ok {
		listing.WireSymbol = wire
	}

	rate, err := p.fx.Rate(ctx, security.Currency)
	if err != nil {
		log.Warn().Err(err).Str("Currency", security.Currency).Str("Symbol", security.Symbol).Msg("no fx rate, liquidity will be unavailable")
		rate = 0
	}
	listing.FXRate = rate

	listing.Series = metrics.ComputeSeries(bars, now)
	listing.ADV = MedianADV(bars, advSessions, rate)

	price := 0.0
	if listing.Series.LastClose != nil {
		price = *listing.Series.LastClose
	}

	listing.Dividends = metrics.ComputeTTM(dividends, price, splits, now, p.ttm)

	var apiTrailing, apiForward, estimatedForward, eps *float64
	isREIT := false
	if stats != nil {
		listing.Name = stats.Name
		listing.Sector = stats.Sector
		listing.Spread = stats.Spread()
		apiTrailing = stats.TrailingDividendYield
		apiForward = stats.ForwardDividendYield
		eps = stats.EarningsPerShare
		isREIT = stats.IsREIT()
	}
	estimatedForward = estimateForwardYield(dividends, price, now)

	listing.Yield = metrics.SelectYield(listing.Dividends, apiTrailing, apiForward, estimatedForward)
	listing.Payout = metrics.Payout(listing.Yield.Yield, metrics.EarningsYield(eps, price), isREIT)

	return listing, nil
}

// estimateForwardYield is the last-resort yield figure: the most recent
// dividend annualized by the payment count observed over the trailing
// year. It only matters when every better source is missing.
func estimateForwardYield(dividends []*data.DividendEvent, price float64, now time.Time) *float64 {
	if price <= 0 || len(dividends) == 0 {
		return nil
	}

	windowStart := now.AddDate(0, -metrics.DefaultTTMMonths, 0)
	count := 0
	var latest *data.DividendEvent
	for _, div := range dividends {
		effective := div.EffectiveDate()
		if effective.Before(windowStart) || effective.After(now) {
			continue
		}
		count++
		if latest == nil || effective.After(latest.EffectiveDate()) {
			latest = div
		}
	}

	if latest == nil || latest.Amount <= 0 {
		return nil
	}

	estimate := latest.Amount * float64(count) / price * 100
	return &estimate
}

// ApplyCriteria marks every group passed or failed. Coverage mode keeps
// the top fraction of each bucket by total ADV; threshold mode applies
// the ADV floor and spread ceiling to each group independently.
func ApplyCriteria(groups []*AggregatedInstrument, criteria Criteria) {
	if criteria.Coverage > 0 {
		applyCoverage(groups, criteria.Coverage)
		return
	}
	applyThresholds(groups, criteria.MinADV, criteria.MaxSpread)
}

func applyThresholds(groups []*AggregatedInstrument, minADV, maxSpread *float64) {
	for _, group := range groups {
		group.Passed = true
		if minADV != nil && group.TotalADV < *minADV {
			group.Passed = false
			group.FailedCriteria = append(group.FailedCriteria, ReasonLiquidity)
		}
		// an unavailable spread is not evidence of a wide spread; only a
		// measured spread above the ceiling fails
		if maxSpread != nil && group.WeightedSpread != nil && *group.WeightedSpread > *maxSpread {
			group.Passed = false
			group.FailedCriteria = append(group.FailedCriteria, ReasonSpread)
		}
	}
}

// applyCoverage keeps ceil(N*coverage) groups per bucket, ranked by
// total ADV descending. Ties keep input order: the sort is stable and
// the incoming slice already follows catalog order.
func applyCoverage(groups []*AggregatedInstrument, coverage float64) {
	if coverage > 1 {
		coverage = 1
	}

	buckets := make(map[string][]*AggregatedInstrument)
	for _, group := range groups {
		buckets[group.Bucket] = append(buckets[group.Bucket], group)
	}

	for _, members := range buckets {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].TotalADV > members[j].TotalADV
		})

		keep := int(math.Ceil(float64(len(members)) * coverage))
		for idx, group := range members {
			if idx < keep {
				group.Passed = true
			} else {
				group.Passed = false
				group.FailedCriteria = append(group.FailedCriteria, ReasonCoverage)
			}
		}
	}
}

func partitionInstruments(instruments []*data.Instrument, chunkSize int) [][]*data.Instrument {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunks := make([][]*data.Instrument, 0, len(instruments)/chunkSize+1)
	for chunkSize < len(instruments) {
		instruments, chunks = instruments[chunkSize:], append(chunks, instruments[0:chunkSize:chunkSize])
	}
	if len(instruments) > 0 {
		chunks = append(chunks, instruments)
	}
	return chunks
}
