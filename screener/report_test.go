// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package screener_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finsieve/finsieve/common"
	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/metrics"
	"github.com/finsieve/finsieve/screener"
)

var _ = Describe("Report", func() {
	var (
		tmpDir string
		report *screener.Report
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "finsieve-report")
		Expect(err).To(BeNil())

		listing := &screener.Listing{
			Security: &data.Instrument{Symbol: "KO", Exchange: "XNYS", ISIN: "US1912161007", Country: "US"},
			Name:     "Coca-Cola Co",
			Sector:   "Consumer Defensive",
			ADV:      f(2500000),
			Yield:    metrics.YieldEstimate{Yield: f(3.1), Source: metrics.SourceCalculated, Confidence: metrics.ConfidenceHigh},
			Payout:   metrics.PayoutRating{Ratio: f(72.0), Band: metrics.BandWarn},
		}

		report = &screener.Report{
			RunID:       "11111111-2222-3333-4444-555555555555",
			GeneratedAt: time.Now().UTC(),
			Accepted: []*screener.AggregatedInstrument{{
				Key:            "US1912161007",
				Name:           "Coca-Cola Co",
				Sector:         "Consumer Defensive",
				Country:        "US",
				Bucket:         screener.BucketUSEquity,
				Primary:        listing,
				Listings:       []*screener.Listing{listing},
				TotalADV:       2500000,
				Passed:         true,
				FailedCriteria: []string{},
			}},
			Rejected: []*screener.AggregatedInstrument{},
		}
		report.Stats.TotalInstruments = 1
		report.Stats.Accepted = 1
		report.Stats.Reasons = map[string]int{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should round-trip through a compressed JSON artifact", func() {
		fn := filepath.Join(tmpDir, "report.json.lz4")
		Expect(report.WriteJSON(fn)).To(Succeed())

		raw, err := os.ReadFile(fn)
		Expect(err).To(BeNil())

		payload, err := common.Decompress(raw)
		Expect(err).To(BeNil())

		restored := screener.Report{}
		Expect(json.Unmarshal(payload, &restored)).To(Succeed())
		Expect(restored.RunID).To(Equal(report.RunID))
		Expect(restored.Accepted).To(HaveLen(1))
		Expect(restored.Accepted[0].Key).To(Equal("US1912161007"))
	})

	It("should project the accepted set into CSV rows", func() {
		fn := filepath.Join(tmpDir, "report.csv")
		Expect(report.WriteCSV(fn)).To(Succeed())

		fh, err := os.Open(fn)
		Expect(err).To(BeNil())
		defer fh.Close()

		rows, err := csv.NewReader(fh).ReadAll()
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0][0]).To(Equal("key"))
		Expect(rows[1][0]).To(Equal("US1912161007"))
		Expect(rows[1][1]).To(Equal("KO"))
		Expect(rows[1][10]).To(Equal(metrics.SourceCalculated))
	})
})
