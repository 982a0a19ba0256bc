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

package data

import (
	"strings"
	"time"
)

// DailyBar is a single OHLCV observation. Series are always ordered
// ascending by date.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// DividendEvent is a single cash distribution. PaymentDate may be zero.
type DividendEvent struct {
	ExDate      time.Time `json:"exDate"`
	PaymentDate time.Time `json:"paymentDate,omitempty"`
	Amount      float64   `json:"amount"`
}

// EffectiveDate is the date used for trailing-window membership: the
// ex-date when present, otherwise the payment date.
func (d *DividendEvent) EffectiveDate() time.Time {
	if !d.ExDate.IsZero() {
		return d.ExDate
	}
	return d.PaymentDate
}

// SplitEvent records a stock split as announced, e.g. 2-for-1 has
// ToFactor 2 and FromFactor 1.
type SplitEvent struct {
	Date       time.Time `json:"date"`
	FromFactor float64   `json:"fromFactor"`
	ToFactor   float64   `json:"toFactor"`
}

// Ratio is the share-count multiplier introduced by the split.
func (s *SplitEvent) Ratio() float64 {
	if s.FromFactor == 0 {
		return 0
	}
	return s.ToFactor / s.FromFactor
}

// Statistics carries the reference data returned by the fundamentals
// endpoint. Yield figures are percentages; pointer fields are nil when
// the API did not report them.
type Statistics struct {
	Name                  string   `json:"name"`
	Sector                string   `json:"sector"`
	Industry              string   `json:"industry"`
	MarketCap             float64  `json:"marketCap"`
	EarningsPerShare      *float64 `json:"earningsPerShare,omitempty"`
	TrailingDividendYield *float64 `json:"trailingDividendYield,omitempty"`
	ForwardDividendYield  *float64 `json:"forwardDividendYield,omitempty"`
	Bid                   *float64 `json:"bid,omitempty"`
	Ask                   *float64 `json:"ask,omitempty"`
}

// IsREIT reports whether the instrument is classified as a real-estate
// trust. REITs routinely pay out more than their accounting earnings, so
// payout-ratio bands treat them differently.
func (s *Statistics) IsREIT() bool {
	return containsFold(s.Sector, "real estate") || containsFold(s.Industry, "reit")
}

// Spread returns the relative bid/ask spread in percent of the midpoint,
// or nil when either side of the book is unreported.
func (s *Statistics) Spread() *float64 {
	if s.Bid == nil || s.Ask == nil {
		return nil
	}
	bid := *s.Bid
	ask := *s.Ask
	if bid <= 0 || ask <= 0 || ask < bid {
		return nil
	}
	mid := (bid + ask) / 2
	spread := (ask - bid) / mid * 100
	return &spread
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}
