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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/screener"
)

func f(v float64) *float64 {
	return &v
}

func volumeBars(volumes ...float64) []*data.DailyBar {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*data.DailyBar, 0, len(volumes))
	for ii, v := range volumes {
		bars = append(bars, &data.DailyBar{
			Date:   start.AddDate(0, 0, ii),
			Close:  10,
			Volume: v,
		})
	}
	return bars
}

var _ = Describe("MedianADV", func() {
	It("should take the median of close times volume", func() {
		adv := screener.MedianADV(volumeBars(100, 300, 200), 30, 1.0)
		Expect(*adv).To(Equal(2000.0))
	})

	It("should convert into the reporting currency", func() {
		adv := screener.MedianADV(volumeBars(100, 300, 200), 30, 0.5)
		Expect(*adv).To(Equal(1000.0))
	})

	It("should only consider the trailing sessions", func() {
		volumes := make([]float64, 40)
		for ii := range volumes {
			if ii < 10 {
				volumes[ii] = 1000000 // old spike outside the window
			} else {
				volumes[ii] = 100
			}
		}
		adv := screener.MedianADV(volumeBars(volumes...), 30, 1.0)
		Expect(*adv).To(Equal(1000.0))
	})

	It("should be nil without bars or a usable rate", func() {
		Expect(screener.MedianADV(nil, 30, 1.0)).To(BeNil())
		Expect(screener.MedianADV(volumeBars(100), 30, 0)).To(BeNil())
	})
})

var _ = Describe("Aggregate", func() {
	var (
		nyse *screener.Listing
		xetr *screener.Listing
		solo *screener.Listing
	)

	BeforeEach(func() {
		nyse = &screener.Listing{
			Security: &data.Instrument{Symbol: "SAP", Exchange: "XNYS", ISIN: "DE0007164600", Country: "US"},
			Name:     "SAP SE ADR",
			ADV:      f(1000),
			Spread:   f(0.2),
		}
		xetr = &screener.Listing{
			Security: &data.Instrument{Symbol: "SAP", Exchange: "XETR", ISIN: "DE0007164600", Country: "DE"},
			Name:     "SAP SE",
			ADV:      f(3000),
			Spread:   f(0.1),
		}
		solo = &screener.Listing{
			Security: &data.Instrument{Symbol: "KO", Exchange: "XNYS", ISIN: "US1912161007", Country: "US"},
			Name:     "Coca-Cola Co",
			ADV:      f(500),
		}
	})

	It("should merge listings sharing an ISIN", func() {
		groups := screener.Aggregate([]*screener.Listing{nyse, xetr, solo})
		Expect(groups).To(HaveLen(2))

		sap := groups[0]
		Expect(sap.Key).To(Equal("DE0007164600"))
		Expect(sap.Listings).To(HaveLen(2))
		Expect(sap.TotalADV).To(Equal(4000.0))

		// ADV-weighted: (0.2*1000 + 0.1*3000) / 4000
		Expect(*sap.WeightedSpread).To(BeNumerically("~", 0.125, 1e-9))

		// the most liquid listing supplies the identity
		Expect(sap.Primary).To(Equal(xetr))
		Expect(sap.Name).To(Equal("SAP SE"))
	})

	It("should be independent of listing arrival order", func() {
		forward := screener.Aggregate([]*screener.Listing{nyse, xetr, solo})
		reversed := screener.Aggregate([]*screener.Listing{solo, xetr, nyse})

		var sapFwd, sapRev *screener.AggregatedInstrument
		for _, g := range forward {
			if g.Key == "DE0007164600" {
				sapFwd = g
			}
		}
		for _, g := range reversed {
			if g.Key == "DE0007164600" {
				sapRev = g
			}
		}

		Expect(sapFwd.TotalADV).To(Equal(sapRev.TotalADV))
		Expect(*sapFwd.WeightedSpread).To(Equal(*sapRev.WeightedSpread))
		Expect(sapFwd.Primary.Security.Exchange).To(Equal(sapRev.Primary.Security.Exchange))
	})

	It("should keep ISIN-less listings separate", func() {
		a := &screener.Listing{Security: &data.Instrument{Symbol: "AAA", Exchange: "XNYS"}, ADV: f(10)}
		b := &screener.Listing{Security: &data.Instrument{Symbol: "BBB", Exchange: "XNYS"}, ADV: f(10)}

		groups := screener.Aggregate([]*screener.Listing{a, b})
		Expect(groups).To(HaveLen(2))
	})

	It("should leave the spread nil when no listing reports one", func() {
		groups := screener.Aggregate([]*screener.Listing{solo})
		Expect(groups[0].WeightedSpread).To(BeNil())
	})
})

var _ = Describe("Classify", func() {
	group := func(assetClass data.AssetClass, name, country string) *screener.AggregatedInstrument {
		listing := &screener.Listing{
			Security: &data.Instrument{Symbol: "TEST", Name: name, Country: country, AssetClass: assetClass},
		}
		return &screener.AggregatedInstrument{Primary: listing, Listings: []*screener.Listing{listing}}
	}

	DescribeTable("Bucket assignment",
		func(assetClass data.AssetClass, name, country, expected string) {
			Expect(screener.Classify(group(assetClass, name, country))).To(Equal(expected))
		},
		Entry("US equities", data.AssetClassEquity, "Apple Inc", "US", screener.BucketUSEquity),
		Entry("international equities", data.AssetClassEquity, "SAP SE", "DE", screener.BucketIntlEquity),
		Entry("bond catalogs take precedence", data.AssetClassBond, "Vanguard Total Bond Market", "US", screener.BucketBond),
		Entry("bond-like names in an equity catalog", data.AssetClassEquity, "iShares 20+ Year Treasury Bond ETF", "US", screener.BucketBond),
	)
})
