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
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/metrics"
)

// advSessions is the trailing window for the dollar-volume liquidity
// estimate.
const advSessions = 30

// Listing is the fully enriched view of one exchange listing: the
// instrument identity plus every derived metric. Nil fields mean the
// underlying fetch or calculation was unavailable.
type Listing struct {
	Security   *data.Instrument       `json:"security"`
	WireSymbol string                 `json:"wireSymbol,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Sector     string                 `json:"sector,omitempty"`
	Series     *metrics.SeriesMetrics `json:"series,omitempty"`
	Dividends  *metrics.TTMDividends  `json:"dividends,omitempty"`
	Yield      metrics.YieldEstimate  `json:"yield"`
	Payout     metrics.PayoutRating   `json:"payout"`
	ADV        *float64               `json:"adv,omitempty"`
	Spread     *float64               `json:"spread,omitempty"`
	FXRate     float64                `json:"fxRate,omitempty"`

	// inputOrder preserves catalog position for stable tie-breaks
	inputOrder int
}

// AggregatedInstrument merges every listing of one logical instrument
// (same ISIN). Identity fields come from the primary listing, the one
// with the largest individual ADV.
type AggregatedInstrument struct {
	Key            string     `json:"key"`
	Name           string     `json:"name"`
	Sector         string     `json:"sector,omitempty"`
	Country        string     `json:"country,omitempty"`
	Bucket         string     `json:"bucket"`
	Primary        *Listing   `json:"primary"`
	Listings       []*Listing `json:"listings"`
	TotalADV       float64    `json:"totalAdv"`
	WeightedSpread *float64   `json:"weightedSpread,omitempty"`
	Passed         bool       `json:"passed"`
	FailedCriteria []string   `json:"failedCriteria"`

	order int
}

// MedianADV is the median dollar volume (volume x close, converted into
// the reporting currency) over the trailing sessions of the series. The
// median resists the single-day spikes that would make a mean
// misrepresent typical liquidity.
func MedianADV(bars []*data.DailyBar, sessions int, fxRate float64) *float64 {
	if len(bars) == 0 || fxRate <= 0 {
		return nil
	}

	if len(bars) > sessions {
		bars = bars[len(bars)-sessions:]
	}

	advs := make([]float64, 0, len(bars))
	for _, bar := range bars {
		advs = append(advs, bar.Close*bar.Volume*fxRate)
	}

	sort.Float64s(advs)
	median := stat.Quantile(0.5, stat.Empirical, advs, nil)
	return &median
}

// Aggregate groups listings by logical instrument. The group total is
// the sum of each listing's median ADV, the spread is ADV-weighted
// across listings that report one, and the result order follows the
// first appearance of each group in the input so that downstream
// tie-breaks are stable regardless of fetch completion order.
func Aggregate(listings []*Listing) []*AggregatedInstrument {
	groups := make(map[string]*AggregatedInstrument)

	for idx, listing := range listings {
		listing.inputOrder = idx
		key := listing.Security.GroupKey()
		group, ok := groups[key]
		if !ok {
			group = &AggregatedInstrument{
				Key:            key,
				FailedCriteria: []string{},
				order:          idx,
			}
			groups[key] = group
		}
		group.Listings = append(group.Listings, listing)
	}

	result := make([]*AggregatedInstrument, 0, len(groups))
	for _, group := range groups {
		finalizeGroup(group)
		result = append(result, group)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].order < result[j].order
	})

	return result
}

func finalizeGroup(group *AggregatedInstrument) {
	// listings within a group sort by catalog position so that identical
	// input sets always produce identical output, no matter the order
	// results were assembled in
	sort.Slice(group.Listings, func(i, j int) bool {
		return group.Listings[i].inputOrder < group.Listings[j].inputOrder
	})

	var primary *Listing
	var primaryADV float64
	var spreadWeight float64
	var weightedSpreadSum float64

	for _, listing := range group.Listings {
		adv := 0.0
		if listing.ADV != nil {
			adv = *listing.ADV
		}
		group.TotalADV += adv

		if listing.Spread != nil && adv > 0 {
			spreadWeight += adv
			weightedSpreadSum += *listing.Spread * adv
		}

		if primary == nil || adv > primaryADV {
			primary = listing
			primaryADV = adv
		}
	}

	if spreadWeight > 0 {
		ws := weightedSpreadSum / spreadWeight
		group.WeightedSpread = &ws
	}

	group.Primary = primary
	if primary != nil {
		group.Name = primary.Name
		if group.Name == "" {
			group.Name = primary.Security.Name
		}
		group.Sector = primary.Sector
		group.Country = primary.Security.Country
	}
}
