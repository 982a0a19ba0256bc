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
	"context"
	"fmt"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/screener"
)

func group(key, bucket string, totalADV float64, weightedSpread *float64) *screener.AggregatedInstrument {
	return &screener.AggregatedInstrument{
		Key:            key,
		Bucket:         bucket,
		TotalADV:       totalADV,
		WeightedSpread: weightedSpread,
		FailedCriteria: []string{},
	}
}

var _ = Describe("ApplyCriteria", func() {
	Describe("Threshold mode", func() {
		It("should fail groups below the liquidity floor", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 5000, nil),
				group("B", screener.BucketUSEquity, 500, nil),
			}
			screener.ApplyCriteria(groups, screener.Criteria{MinADV: f(1000)})

			Expect(groups[0].Passed).To(BeTrue())
			Expect(groups[1].Passed).To(BeFalse())
			Expect(groups[1].FailedCriteria).To(ConsistOf(screener.ReasonLiquidity))
		})

		It("should fail groups with a spread above the ceiling", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 5000, f(0.5)),
				group("B", screener.BucketUSEquity, 5000, f(2.5)),
			}
			screener.ApplyCriteria(groups, screener.Criteria{MaxSpread: f(1.0)})

			Expect(groups[0].Passed).To(BeTrue())
			Expect(groups[1].Passed).To(BeFalse())
			Expect(groups[1].FailedCriteria).To(ConsistOf(screener.ReasonSpread))
		})

		It("should pass a group whose spread is unavailable", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 5000, nil),
			}
			screener.ApplyCriteria(groups, screener.Criteria{MaxSpread: f(1.0)})

			Expect(groups[0].Passed).To(BeTrue())
		})

		It("should collect every failed criterion", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 500, f(2.5)),
			}
			screener.ApplyCriteria(groups, screener.Criteria{MinADV: f(1000), MaxSpread: f(1.0)})

			Expect(groups[0].Passed).To(BeFalse())
			Expect(groups[0].FailedCriteria).To(ConsistOf(screener.ReasonLiquidity, screener.ReasonSpread))
		})
	})

	Describe("Coverage mode", func() {
		It("should keep the top fraction of each bucket, rounding up", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 400, nil),
				group("B", screener.BucketUSEquity, 100, nil),
				group("C", screener.BucketUSEquity, 300, nil),
			}
			screener.ApplyCriteria(groups, screener.Criteria{Coverage: 0.5})

			// ceil(3 * 0.5) = 2: A and C survive
			Expect(groups[0].Passed).To(BeTrue())
			Expect(groups[1].Passed).To(BeFalse())
			Expect(groups[1].FailedCriteria).To(ConsistOf(screener.ReasonCoverage))
			Expect(groups[2].Passed).To(BeTrue())
		})

		It("should break ADV ties by input order", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 100, nil),
				group("B", screener.BucketUSEquity, 100, nil),
				group("C", screener.BucketUSEquity, 100, nil),
				group("D", screener.BucketUSEquity, 100, nil),
			}
			screener.ApplyCriteria(groups, screener.Criteria{Coverage: 0.5})

			Expect(groups[0].Passed).To(BeTrue())
			Expect(groups[1].Passed).To(BeTrue())
			Expect(groups[2].Passed).To(BeFalse())
			Expect(groups[3].Passed).To(BeFalse())
		})

		It("should select per bucket independently", func() {
			groups := []*screener.AggregatedInstrument{
				group("A", screener.BucketUSEquity, 9000, nil),
				group("B", screener.BucketUSEquity, 8000, nil),
				group("C", screener.BucketBond, 10, nil),
			}
			screener.ApplyCriteria(groups, screener.Criteria{Coverage: 0.5})

			// the tiny bond is the whole bond bucket: ceil(1 * 0.5) = 1
			Expect(groups[0].Passed).To(BeTrue())
			Expect(groups[1].Passed).To(BeFalse())
			Expect(groups[2].Passed).To(BeTrue())
		})
	})
})

var _ = Describe("Pipeline", func() {
	var (
		ctx      context.Context
		budget   *data.CreditBudget
		pipeline *screener.Pipeline
	)

	BeforeEach(func() {
		httpmock.Activate()

		ctx = context.Background()
		budget = data.NewCreditBudget(1000, 10*time.Second, time.Millisecond)

		client, err := data.NewClient("TEST", budget, data.NewResolver(), data.DefaultEndpointCosts())
		Expect(err).To(BeNil())

		pipeline = screener.NewPipeline(client, data.NewFXCache(client), budget)
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("When every fetch succeeds", func() {
		BeforeEach(func() {
			now := time.Now()
			barsJSON := fmt.Sprintf(`[
				{"date": %q, "open": 100, "high": 101, "low": 99, "close": 100, "adjusted_close": 100, "volume": 50000},
				{"date": %q, "open": 100, "high": 103, "low": 100, "close": 102, "adjusted_close": 102, "volume": 60000},
				{"date": %q, "open": 102, "high": 105, "low": 101, "close": 104, "adjusted_close": 104, "volume": 55000}
			]`,
				now.AddDate(0, 0, -4).Format("2006-01-02"),
				now.AddDate(0, 0, -3).Format("2006-01-02"),
				now.AddDate(0, 0, -2).Format("2006-01-02"))

			httpmock.RegisterResponder("GET", `=~^https://eodhistoricaldata\.com/api/eod/AAPL\.US\?`,
				httpmock.NewStringResponder(200, barsJSON))
			httpmock.RegisterResponder("GET", `=~^https://eodhistoricaldata\.com/api/div/AAPL\.US\?`,
				httpmock.NewStringResponder(200, `[]`))
			httpmock.RegisterResponder("GET", `=~^https://eodhistoricaldata\.com/api/splits/AAPL\.US\?`,
				httpmock.NewStringResponder(200, `[]`))
			httpmock.RegisterResponder("GET", `=~^https://eodhistoricaldata\.com/api/fundamentals/AAPL\.US\?`,
				httpmock.NewStringResponder(200, `{
					"General": {"Name": "Apple Inc", "Sector": "Technology", "Industry": "Consumer Electronics"},
					"Highlights": {"MarketCapitalization": 3000000000000, "EarningsShare": 6.5},
					"SplitsDividends": {},
					"Technicals": {"Bid": 103.9, "Ask": 104.1}
				}`))
		})

		It("should accept a liquid instrument and account for every credit", func() {
			instruments := []*data.Instrument{
				{Symbol: "AAPL", Exchange: "XNAS", Country: "US", Currency: "USD", AssetClass: data.AssetClassEquity, Name: "Apple Inc"},
			}

			report := pipeline.Run(ctx, instruments, screener.Criteria{MinADV: f(1000)})

			Expect(report.RunID).ToNot(BeEmpty())
			Expect(report.Accepted).To(HaveLen(1))
			Expect(report.Rejected).To(BeEmpty())

			apple := report.Accepted[0]
			Expect(apple.Bucket).To(Equal(screener.BucketUSEquity))
			Expect(apple.Name).To(Equal("Apple Inc"))
			Expect(apple.Primary.WireSymbol).To(Equal("AAPL.US"))
			Expect(apple.TotalADV).To(BeNumerically(">", 1000))

			// bars + dividends + splits + fundamentals = 1+1+1+10
			Expect(report.Stats.CreditsSpent).To(Equal(13))
			Expect(report.Stats.Accepted).To(Equal(1))
		})
	})

	Describe("When no candidate wire symbol matches", func() {
		It("should reject the instrument as not found", func() {
			httpmock.RegisterResponder("GET", `=~^https://eodhistoricaldata\.com/api/eod/`,
				httpmock.NewStringResponder(404, ""))

			instruments := []*data.Instrument{
				{Symbol: "GHOST", Exchange: "XNAS", Country: "US", Currency: "USD", AssetClass: data.AssetClassEquity},
			}

			report := pipeline.Run(ctx, instruments, screener.Criteria{})

			Expect(report.Accepted).To(BeEmpty())
			Expect(report.Rejected).To(HaveLen(1))
			Expect(report.Rejected[0].FailedCriteria).To(ConsistOf(screener.ReasonNotFound))
			Expect(report.Stats.Reasons).To(HaveKeyWithValue(screener.ReasonNotFound, 1))
		})
	})
})
