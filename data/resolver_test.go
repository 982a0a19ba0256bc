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

package data_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finsieve/finsieve/data"
)

var _ = Describe("Resolver", func() {
	var resolver *data.Resolver

	BeforeEach(func() {
		resolver = data.NewResolver()
	})

	DescribeTable("Deriving wire symbol candidates",
		func(symbol, exchange, country string, expected []string) {
			security := &data.Instrument{
				Symbol:   symbol,
				Exchange: exchange,
				Country:  country,
			}
			candidates, err := resolver.Candidates(security)
			Expect(err).To(BeNil())
			Expect(candidates).To(Equal(expected))
		},
		Entry("US venue tries the .US suffix then the bare ticker", "AAPL", "XNAS", "US", []string{"AAPL.US", "AAPL"}),
		Entry("NYSE listing behaves like NASDAQ", "KO", "XNYS", "US", []string{"KO.US", "KO"}),
		Entry("LSE listing maps through the MIC table", "VOD", "XLON", "GB", []string{"VOD.LSE"}),
		Entry("Xetra listing maps through the MIC table", "SAP", "XETR", "DE", []string{"SAP.XETRA"}),
		Entry("unknown venue falls back to the country suffix", "SHOP", "WEIRD", "CA", []string{"SHOP.TO"}),
		Entry("MIC and country suffixes are combined and deduped", "RY", "XTSE", "CA", []string{"RY.TO"}),
	)

	Describe("When no candidate can be derived", func() {
		It("should return ErrNoCandidates", func() {
			security := &data.Instrument{Symbol: "XYZ", Exchange: "WEIRD", Country: "ZZ"}
			_, err := resolver.Candidates(security)
			Expect(err).To(MatchError(data.ErrNoCandidates))
		})
	})

	Describe("When a candidate has been marked resolved", func() {
		It("should move it to the front without losing the others", func() {
			security := &data.Instrument{Symbol: "AAPL", Exchange: "XNAS", Country: "US"}

			resolver.MarkResolved(security, "AAPL")

			candidates, err := resolver.Candidates(security)
			Expect(err).To(BeNil())
			Expect(candidates).To(Equal([]string{"AAPL", "AAPL.US"}))

			wire, ok := resolver.Resolved(security)
			Expect(ok).To(BeTrue())
			Expect(wire).To(Equal("AAPL"))
		})

		It("should not leak resolutions across exchanges sharing a ticker", func() {
			nasdaq := &data.Instrument{Symbol: "AAPL", Exchange: "XNAS", Country: "US"}
			london := &data.Instrument{Symbol: "AAPL", Exchange: "XLON", Country: "GB"}

			resolver.MarkResolved(nasdaq, "AAPL")

			_, ok := resolver.Resolved(london)
			Expect(ok).To(BeFalse())

			candidates, err := resolver.Candidates(london)
			Expect(err).To(BeNil())
			Expect(candidates).To(Equal([]string{"AAPL.LSE"}))
		})
	})
})
