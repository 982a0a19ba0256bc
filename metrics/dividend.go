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

package metrics

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finsieve/finsieve/data"
)

const (
	DefaultTTMMonths           = 12
	DefaultSplitLookbackMonths = 18

	// MinTTMEvents is the statistical-soundness gate: below this count
	// the locally computed yield is not trusted.
	MinTTMEvents = 3

	// maxPlausibleYield bounds a believable dividend yield in percent.
	// Anything at or above it is a data-quality failure, not a yield.
	maxPlausibleYield = 20.0
)

// Yield source labels. The label is mandatory on every estimate:
// silently mixing calculated and reported figures would make the
// results impossible to audit.
const (
	SourceCalculated       = "calculated"
	SourceSplitAdjusted    = "split-adjusted-calculated"
	SourceAPITrailing      = "api-trailing"
	SourceAPIForward       = "api-forward"
	SourceEstimatedForward = "estimated-forward"
	SourceUnavailable      = "unavailable"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// TTMDividends is the trailing-twelve-month dividend calculation for a
// single listing.
type TTMDividends struct {
	Sum              float64  `json:"ttmSum"`
	SplitAdjustedSum float64  `json:"splitAdjustedSum"`
	Yield            *float64 `json:"yield,omitempty"`
	Count            int      `json:"dividendCount"`
	HasRecentSplit   bool     `json:"hasRecentSplit"`
	SplitRatio       float64  `json:"splitRatio,omitempty"`
}

// TTMOptions tune the trailing window and the split-detection lookback.
type TTMOptions struct {
	WindowMonths        int
	SplitLookbackMonths int
}

func (o TTMOptions) withDefaults() TTMOptions {
	if o.WindowMonths <= 0 {
		o.WindowMonths = DefaultTTMMonths
	}
	if o.SplitLookbackMonths <= 0 {
		o.SplitLookbackMonths = DefaultSplitLookbackMonths
	}
	return o
}

// ComputeTTM sums the dividends whose effective date falls within the
// trailing window ending at `now`. When a split occurred within the
// lookback, every dividend dated before the split is divided by the
// split ratio: a dividend paid pre-split must be restated in post-split
// share terms to be comparable with the current share count. Yield is
// the split-adjusted sum over the current price, nil when the price is
// not positive.
func ComputeTTM(dividends []*data.DividendEvent, currentPrice float64, splits []*data.SplitEvent, now time.Time, opts TTMOptions) *TTMDividends {
	opts = opts.withDefaults()
	windowStart := now.AddDate(0, -opts.WindowMonths, 0)

	split := recentSplit(splits, now, opts.SplitLookbackMonths)

	res := &TTMDividends{}
	if split != nil {
		res.HasRecentSplit = true
		res.SplitRatio = split.Ratio()
	}

	for _, div := range dividends {
		effective := div.EffectiveDate()
		if effective.Before(windowStart) || effective.After(now) {
			continue
		}

		res.Count++
		res.Sum += div.Amount

		amount := div.Amount
		if split != nil && effective.Before(split.Date) {
			ratio := split.Ratio()
			if ratio > 0 {
				amount /= ratio
			}
		}
		res.SplitAdjustedSum += amount
	}

	if currentPrice > 0 {
		yield := res.SplitAdjustedSum / currentPrice * 100
		res.Yield = &yield
	}

	return res
}

// recentSplit returns the most recent split within the lookback, or nil.
func recentSplit(splits []*data.SplitEvent, now time.Time, lookbackMonths int) *data.SplitEvent {
	lookbackStart := now.AddDate(0, -lookbackMonths, 0)

	var latest *data.SplitEvent
	for _, split := range splits {
		if split.Date.Before(lookbackStart) || split.Date.After(now) {
			continue
		}
		if split.Ratio() <= 0 {
			log.Warn().Time("SplitDate", split.Date).Float64("From", split.FromFactor).Float64("To", split.ToFactor).Msg("ignoring split with invalid ratio")
			continue
		}
		if latest == nil || split.Date.After(latest.Date) {
			latest = split
		}
	}

	return latest
}

// YieldEstimate is a dividend-yield figure with its provenance.
type YieldEstimate struct {
	Yield      *float64 `json:"yield,omitempty"`
	Source     string   `json:"source"`
	Confidence string   `json:"confidence"`
}

// SelectYield picks the most trustworthy yield figure. The locally
// computed TTM yield wins when it is statistically sound: at least
// MinTTMEvents events in the window and a yield inside (0, 20).
// Otherwise the estimate degrades through the API trailing yield (when
// in-band), the API forward yield and finally the externally estimated
// forward yield, each step lowering confidence.
func SelectYield(ttm *TTMDividends, apiTrailing, apiForward, estimatedForward *float64) YieldEstimate {
	if ttm != nil && ttm.Yield != nil && ttm.Count >= MinTTMEvents && inBand(*ttm.Yield) {
		source := SourceCalculated
		if ttm.HasRecentSplit {
			source = SourceSplitAdjusted
		}
		return YieldEstimate{
			Yield:      ttm.Yield,
			Source:     source,
			Confidence: ConfidenceHigh,
		}
	}

	if apiTrailing != nil && inBand(*apiTrailing) {
		return YieldEstimate{
			Yield:      apiTrailing,
			Source:     SourceAPITrailing,
			Confidence: ConfidenceMedium,
		}
	}

	if apiForward != nil && *apiForward > 0 {
		return YieldEstimate{
			Yield:      apiForward,
			Source:     SourceAPIForward,
			Confidence: ConfidenceLow,
		}
	}

	if estimatedForward != nil && *estimatedForward > 0 {
		return YieldEstimate{
			Yield:      estimatedForward,
			Source:     SourceEstimatedForward,
			Confidence: ConfidenceLow,
		}
	}

	return YieldEstimate{
		Source:     SourceUnavailable,
		Confidence: ConfidenceLow,
	}
}

func inBand(yield float64) bool {
	return yield > 0 && yield < maxPlausibleYield && !math.IsNaN(yield)
}

// Payout-ratio bands. REIT-classified sectors routinely pay out more
// than accounting earnings without distress, so their thresholds and
// cap are looser.
const (
	BandStrong  = "strong"
	BandOK      = "ok"
	BandWarn    = "warn"
	BandHigh    = "high"
	BandRisk    = "risk"
	BandUnknown = "unknown"
)

// PayoutRating is the dividend payout ratio with a qualitative band.
type PayoutRating struct {
	Ratio *float64 `json:"ratio,omitempty"`
	Band  string   `json:"band"`
}

// EarningsYield converts earnings-per-share into a percent yield on the
// current price, the denominator of the payout ratio.
func EarningsYield(eps *float64, price float64) *float64 {
	if eps == nil || price <= 0 {
		return nil
	}
	ey := *eps / price * 100
	return &ey
}

// Payout computes dividendYield / earningsYield * 100, capped at 400%
// for REITs and 200% otherwise, and assigns the qualitative band.
func Payout(dividendYield, earningsYield *float64, isREIT bool) PayoutRating {
	if dividendYield == nil || earningsYield == nil || *earningsYield <= 0 {
		return PayoutRating{Band: BandUnknown}
	}

	ratio := *dividendYield / *earningsYield * 100

	limit := 200.0
	if isREIT {
		limit = 400.0
	}
	if ratio > limit {
		ratio = limit
	}

	rating := PayoutRating{Ratio: &ratio}
	if isREIT {
		switch {
		case ratio <= 60:
			rating.Band = BandStrong
		case ratio <= 80:
			rating.Band = BandOK
		case ratio <= 100:
			rating.Band = BandWarn
		case ratio <= 150:
			rating.Band = BandHigh
		default:
			rating.Band = BandRisk
		}
	} else {
		switch {
		case ratio <= 30:
			rating.Band = BandStrong
		case ratio <= 60:
			rating.Band = BandOK
		case ratio <= 80:
			rating.Band = BandWarn
		case ratio <= 100:
			rating.Band = BandHigh
		default:
			rating.Band = BandRisk
		}
	}

	return rating
}
