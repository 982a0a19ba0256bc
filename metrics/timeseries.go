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
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/finsieve/finsieve/data"
)

const (
	tradingDaysMonth   = 21
	tradingDaysQuarter = 63
	tradingDaysYear    = 252
	tradingDays3Year   = 756

	// anchorTolerance bounds how far the first bar on/after a calendar
	// anchor may drift from the anchor itself. Series younger than the
	// anchor would otherwise report a truncated return as if it covered
	// the full window.
	anchorTolerance = 30 * 24 * time.Hour
)

// SeriesMetrics are the performance and risk figures derived from a
// single listing's OHLCV series. All returns and distances are
// percentages. Nil means the figure could not be computed; zero would
// misrepresent "no movement".
type SeriesMetrics struct {
	Return1D  *float64 `json:"return1d,omitempty"`
	Return1M  *float64 `json:"return1m,omitempty"`
	Return3M  *float64 `json:"return3m,omitempty"`
	ReturnYTD *float64 `json:"returnYtd,omitempty"`
	Return1Y  *float64 `json:"return1y,omitempty"`
	Return3Y  *float64 `json:"return3y,omitempty"`

	Volatility *float64 `json:"volatility,omitempty"`

	MaxDrawdownYTD *float64 `json:"maxDrawdownYtd,omitempty"`
	MaxDrawdown3Y  *float64 `json:"maxDrawdown3y,omitempty"`

	High52W     *float64 `json:"high52w,omitempty"`
	Low52W      *float64 `json:"low52w,omitempty"`
	DistHigh52W *float64 `json:"distHigh52w,omitempty"`
	DistLow52W  *float64 `json:"distLow52w,omitempty"`

	LastClose *float64  `json:"lastClose,omitempty"`
	LastDate  time.Time `json:"lastDate"`
	NumBars   int       `json:"numBars"`
}

// ComputeSeries derives all time-series metrics from an ascending bar
// series. Fewer than 2 bars yields a record with every derived field
// nil. Fields whose lookback the series cannot cover are omitted
// individually; everything else is still computed.
func ComputeSeries(bars []*data.DailyBar, now time.Time) *SeriesMetrics {
	m := &SeriesMetrics{NumBars: len(bars)}
	if len(bars) < 2 {
		return m
	}

	last := bars[len(bars)-1]
	lastClose := last.Close
	m.LastClose = &lastClose
	m.LastDate = last.Date

	m.Return1D = pointReturn(bars, 1)
	m.Return1M = pointReturn(bars, tradingDaysMonth)
	m.Return3M = pointReturn(bars, tradingDaysQuarter)
	m.Return1Y = pointReturn(bars, tradingDaysYear)

	ytdAnchor := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	m.ReturnYTD = anchoredReturn(bars, ytdAnchor)
	m.Return3Y = anchoredReturn(bars, now.AddDate(-3, 0, 0))

	m.Volatility = annualizedVolatility(bars)

	m.MaxDrawdownYTD = maxDrawdown(barsOnOrAfter(bars, ytdAnchor))
	m.MaxDrawdown3Y = maxDrawdown(lastN(bars, tradingDays3Year))

	m.High52W, m.Low52W, m.DistHigh52W, m.DistLow52W = yearlyRange(bars, now)

	return m
}

// pointReturn is the percent change from the bar `offset` trading days
// before the latest bar.
func pointReturn(bars []*data.DailyBar, offset int) *float64 {
	n := len(bars)
	if n <= offset {
		return nil
	}

	base := bars[n-1-offset].Close
	if base <= 0 {
		return nil
	}

	ret := (bars[n-1].Close/base - 1) * 100
	return &ret
}

// anchoredReturn locates the first bar on or after a calendar date and
// returns the percent change from it to the latest bar. Using a
// calendar anchor instead of a fixed trading-day offset avoids drift
// from holidays.
func anchoredReturn(bars []*data.DailyBar, anchor time.Time) *float64 {
	n := len(bars)
	idx := sort.Search(n, func(i int) bool {
		return !bars[i].Date.Before(anchor)
	})

	if idx >= n-1 {
		return nil
	}
	if bars[idx].Date.Sub(anchor) > anchorTolerance {
		// series starts after the anchor; a truncated window is not the
		// requested return
		return nil
	}

	base := bars[idx].Close
	if base <= 0 {
		return nil
	}

	ret := (bars[n-1].Close/base - 1) * 100
	return &ret
}

// annualizedVolatility is the standard deviation of daily log returns
// over up to the last 3 years of bars, scaled by sqrt(252), in percent.
func annualizedVolatility(bars []*data.DailyBar) *float64 {
	window := lastN(bars, tradingDays3Year+1)
	rets := make([]float64, 0, len(window))
	for ii := 1; ii < len(window); ii++ {
		prev := window[ii-1].Close
		curr := window[ii].Close
		if prev <= 0 || curr <= 0 {
			continue
		}
		rets = append(rets, math.Log(curr/prev))
	}

	if len(rets) < 2 {
		return nil
	}

	vol := stat.StdDev(rets, nil) * math.Sqrt(tradingDaysYear) * 100
	return &vol
}

// maxDrawdown is the largest observed peak-to-trough decline within the
// window, in percent: track the running peak and measure
// (peak-price)/peak at every bar.
func maxDrawdown(bars []*data.DailyBar) *float64 {
	if len(bars) < 2 {
		return nil
	}

	peak := bars[0].Close
	maxDD := 0.0
	for _, bar := range bars {
		peak = math.Max(peak, bar.Close)
		if peak <= 0 {
			continue
		}
		dd := (peak - bar.Close) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}

	maxDD *= 100
	return &maxDD
}

func yearlyRange(bars []*data.DailyBar, now time.Time) (high, low, distHigh, distLow *float64) {
	window := barsOnOrAfter(bars, now.AddDate(-1, 0, 0))
	if len(window) == 0 {
		return nil, nil, nil, nil
	}

	hi := window[0].Close
	lo := window[0].Close
	for _, bar := range window {
		if bar.Close > hi {
			hi = bar.Close
		}
		if bar.Close < lo {
			lo = bar.Close
		}
	}

	high = &hi
	low = &lo

	last := bars[len(bars)-1].Close
	if hi > 0 {
		d := (last/hi - 1) * 100
		distHigh = &d
	}
	if lo > 0 {
		d := (last/lo - 1) * 100
		distLow = &d
	}

	return high, low, distHigh, distLow
}

func barsOnOrAfter(bars []*data.DailyBar, anchor time.Time) []*data.DailyBar {
	idx := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(anchor)
	})
	return bars[idx:]
}

func lastN(bars []*data.DailyBar, n int) []*data.DailyBar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
