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
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/finsieve/finsieve/common"
	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/metrics"
)

// Stats summarize one run for logging and for the report header.
type Stats struct {
	TotalInstruments int            `json:"totalInstruments"`
	Accepted         int            `json:"accepted"`
	Rejected         int            `json:"rejected"`
	Reasons          map[string]int `json:"reasons"`
	CreditsSpent     int            `json:"creditsSpent"`
	ElapsedSeconds   float64        `json:"elapsedSeconds"`
}

// Report is the full output of a screener run: every logical
// instrument, accepted or rejected, with its metrics and the reasons
// for any rejection.
type Report struct {
	RunID       string                  `json:"runId"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Criteria    Criteria                `json:"criteria"`
	Stats       Stats                   `json:"stats"`
	Accepted    []*AggregatedInstrument `json:"accepted"`
	Rejected    []*AggregatedInstrument `json:"rejected"`
}

// buildReport splits groups by outcome and re-sorts each side by group
// key so the artifact is deterministic. Unresolvable symbols join the
// rejected set as bare identity records.
func buildReport(groups []*AggregatedInstrument, notFound []*data.Instrument, criteria Criteria, budget *data.CreditBudget, elapsed time.Duration) *Report {
	report := &Report{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Criteria:    criteria,
		Accepted:    make([]*AggregatedInstrument, 0, len(groups)),
		Rejected:    make([]*AggregatedInstrument, 0),
	}
	report.Stats.Reasons = make(map[string]int)

	for _, group := range groups {
		if group.Passed {
			report.Accepted = append(report.Accepted, group)
		} else {
			report.Rejected = append(report.Rejected, group)
			for _, reason := range group.FailedCriteria {
				report.Stats.Reasons[reason]++
			}
		}
	}

	for _, security := range notFound {
		group := &AggregatedInstrument{
			Key:            security.GroupKey(),
			Name:           security.Name,
			Country:        security.Country,
			FailedCriteria: []string{ReasonNotFound},
			Listings: []*Listing{{
				Security: security,
				Yield:    metrics.YieldEstimate{Source: metrics.SourceUnavailable, Confidence: metrics.ConfidenceLow},
				Payout:   metrics.PayoutRating{Band: metrics.BandUnknown},
			}},
		}
		group.Primary = group.Listings[0]
		group.Bucket = Classify(group)
		report.Rejected = append(report.Rejected, group)
		report.Stats.Reasons[ReasonNotFound]++
	}

	sort.Slice(report.Accepted, func(i, j int) bool {
		return report.Accepted[i].Key < report.Accepted[j].Key
	})
	sort.Slice(report.Rejected, func(i, j int) bool {
		return report.Rejected[i].Key < report.Rejected[j].Key
	})

	report.Stats.TotalInstruments = len(report.Accepted) + len(report.Rejected)
	report.Stats.Accepted = len(report.Accepted)
	report.Stats.Rejected = len(report.Rejected)
	if budget != nil {
		report.Stats.CreditsSpent = budget.TotalSpent()
	}
	report.Stats.ElapsedSeconds = elapsed.Seconds()

	return report
}

// WriteJSON writes the full report as JSON. A file name ending in .lz4
// is compressed.
func (r *Report) WriteJSON(fn string) error {
	subLog := log.With().Str("FileName", fn).Logger()

	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		subLog.Error().Err(err).Msg("could not serialize report")
		return err
	}

	if strings.HasSuffix(fn, ".lz4") {
		payload, err = common.Compress(payload)
		if err != nil {
			subLog.Error().Err(err).Msg("could not compress report")
			return err
		}
	}

	if err := os.WriteFile(fn, payload, 0644); err != nil {
		subLog.Error().Err(err).Msg("could not write report")
		return err
	}

	subLog.Info().Int("Bytes", len(payload)).Msg("wrote report")
	return nil
}

// WriteCSV writes a flat projection of the accepted set, one row per
// logical instrument.
func (r *Report) WriteCSV(fn string) error {
	subLog := log.With().Str("FileName", fn).Logger()

	fh, err := os.Create(fn)
	if err != nil {
		subLog.Error().Err(err).Msg("could not create csv report")
		return err
	}
	defer fh.Close()

	writer := csv.NewWriter(fh)
	defer writer.Flush()

	header := []string{"key", "symbol", "exchange", "name", "sector", "country", "bucket",
		"totalAdv", "weightedSpread", "yield", "yieldSource", "yieldConfidence",
		"payoutBand", "return1y", "volatility", "maxDrawdown3y"}
	if err := writer.Write(header); err != nil {
		return err
	}

	fmtFloat := func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%.4f", *v)
	}

	for _, group := range r.Accepted {
		primary := group.Primary
		row := []string{
			group.Key,
			primary.Security.Symbol,
			primary.Security.Exchange,
			group.Name,
			group.Sector,
			group.Country,
			group.Bucket,
			fmt.Sprintf("%.2f", group.TotalADV),
			fmtFloat(group.WeightedSpread),
			fmtFloat(primary.Yield.Yield),
			primary.Yield.Source,
			primary.Yield.Confidence,
			primary.Payout.Band,
		}
		if primary.Series != nil {
			row = append(row,
				fmtFloat(primary.Series.Return1Y),
				fmtFloat(primary.Series.Volatility),
				fmtFloat(primary.Series.MaxDrawdown3Y))
		} else {
			row = append(row, "", "", "")
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	subLog.Info().Int("Rows", len(r.Accepted)).Msg("wrote csv report")
	return nil
}
