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
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/finsieve/finsieve/observability/opentelemetry"
)

var eodhdAPI = "https://eodhistoricaldata.com/api"

// EndpointCosts is the credit price of each logical endpoint, charged
// against the shared budget before the request is issued.
type EndpointCosts struct {
	Bars       int
	Dividends  int
	Splits     int
	Statistics int
	FX         int
}

func DefaultEndpointCosts() EndpointCosts {
	return EndpointCosts{
		Bars:       1,
		Dividends:  1,
		Splits:     1,
		Statistics: 10,
		FX:         1,
	}
}

// Client fetches bars, dividends, splits and reference statistics from
// the market-data API. Every request first charges the shared credit
// budget; the budget is the only throttle on concurrent fetches.
type Client struct {
	token    string
	budget   *CreditBudget
	resolver *Resolver
	costs    EndpointCosts
}

func NewClient(token string, budget *CreditBudget, resolver *Resolver, costs EndpointCosts) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &Client{
		token:    token,
		budget:   budget,
		resolver: resolver,
		costs:    costs,
	}, nil
}

type eodhdBarJSON struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        float64 `json:"volume"`
}

type eodhdDividendJSON struct {
	Date        string  `json:"date"`
	PaymentDate string  `json:"paymentDate"`
	Value       float64 `json:"value"`
}

type eodhdSplitJSON struct {
	Date  string `json:"date"`
	Split string `json:"split"`
}

type eodhdFundamentalsJSON struct {
	General struct {
		Name     string `json:"Name"`
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization float64  `json:"MarketCapitalization"`
		EarningsShare        *float64 `json:"EarningsShare"`
		DividendYield        *float64 `json:"DividendYield"`
	} `json:"Highlights"`
	SplitsDividends struct {
		ForwardAnnualDividendYield *float64 `json:"ForwardAnnualDividendYield"`
	} `json:"SplitsDividends"`
	Technicals struct {
		Bid *float64 `json:"Bid"`
		Ask *float64 `json:"Ask"`
	} `json:"Technicals"`
}

// Bars fetches the daily OHLCV series for an instrument, trying each
// candidate wire symbol in order until one matches. A matching
// candidate is remembered for the rest of the run; a 404 or empty
// series moves on to the next candidate. Returned bars are sorted
// ascending by date.
func (c *Client) Bars(ctx context.Context, security *Instrument, begin, end time.Time) ([]*DailyBar, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "eodhd.Bars")
	defer span.End()

	if end.Before(begin) {
		return nil, ErrInvalidTimeRange
	}

	subLog := log.With().Str("Symbol", security.Symbol).Str("Exchange", security.Exchange).Time("Begin", begin).Time("End", end).Logger()

	candidates, err := c.resolver.Candidates(security)
	if err != nil {
		subLog.Warn().Err(err).Msg("no wire symbol candidates")
		return nil, err
	}

	for _, wire := range candidates {
		span.SetAttributes(attribute.KeyValue{
			Key:   "Wire",
			Value: attribute.StringValue(wire),
		})

		url := fmt.Sprintf("%s/eod/%s?from=%s&to=%s&period=d&fmt=json&api_token=%s",
			eodhdAPI, wire, begin.Format("2006-01-02"), end.Format("2006-01-02"), c.token)

		body, found, err := c.fetch(ctx, url, c.costs.Bars)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bar fetch failed")
			return nil, err
		}
		if !found {
			subLog.Debug().Str("Wire", wire).Msg("candidate not found, trying next")
			continue
		}

		jsonBars := []eodhdBarJSON{}
		if err := json.Unmarshal(body, &jsonBars); err != nil {
			subLog.Warn().Err(err).Str("Wire", wire).Msg("could not decode bar payload")
			return nil, ErrMalformedPayload
		}

		if len(jsonBars) == 0 {
			subLog.Debug().Str("Wire", wire).Msg("candidate returned empty series, trying next")
			continue
		}

		bars := make([]*DailyBar, 0, len(jsonBars))
		for _, jb := range jsonBars {
			dt, err := time.Parse("2006-01-02", jb.Date)
			if err != nil {
				subLog.Warn().Err(err).Str("DateStr", jb.Date).Msg("skipping bar with unparseable date")
				continue
			}
			bars = append(bars, &DailyBar{
				Date:   dt,
				Open:   jb.Open,
				High:   jb.High,
				Low:    jb.Low,
				Close:  jb.Close,
				Volume: jb.Volume,
			})
		}

		sort.Slice(bars, func(i, j int) bool {
			return bars[i].Date.Before(bars[j].Date)
		})

		c.resolver.MarkResolved(security, wire)
		return bars, nil
	}

	subLog.Info().Msg("all candidate wire symbols exhausted")
	return nil, ErrSymbolNotFound
}

// Dividends fetches cash distributions whose dates fall in [begin, end].
func (c *Client) Dividends(ctx context.Context, security *Instrument, begin, end time.Time) ([]*DividendEvent, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "eodhd.Dividends")
	defer span.End()

	subLog := log.With().Str("Symbol", security.Symbol).Str("Exchange", security.Exchange).Logger()

	wire, err := c.wireSymbol(security)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/div/%s?from=%s&to=%s&fmt=json&api_token=%s",
		eodhdAPI, wire, begin.Format("2006-01-02"), end.Format("2006-01-02"), c.token)

	body, found, err := c.fetch(ctx, url, c.costs.Dividends)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dividend fetch failed")
		return nil, err
	}
	if !found {
		return nil, ErrSymbolNotFound
	}

	jsonDivs := []eodhdDividendJSON{}
	if err := json.Unmarshal(body, &jsonDivs); err != nil {
		subLog.Warn().Err(err).Msg("could not decode dividend payload")
		return nil, ErrMalformedPayload
	}

	dividends := make([]*DividendEvent, 0, len(jsonDivs))
	for _, jd := range jsonDivs {
		ev := &DividendEvent{Amount: jd.Value}
		if dt, err := time.Parse("2006-01-02", jd.Date); err == nil {
			ev.ExDate = dt
		}
		if dt, err := time.Parse("2006-01-02", jd.PaymentDate); err == nil {
			ev.PaymentDate = dt
		}
		if ev.ExDate.IsZero() && ev.PaymentDate.IsZero() {
			subLog.Warn().Str("DateStr", jd.Date).Msg("skipping dividend with no usable date")
			continue
		}
		dividends = append(dividends, ev)
	}

	return dividends, nil
}

// Splits fetches corporate split events on or after begin.
func (c *Client) Splits(ctx context.Context, security *Instrument, begin time.Time) ([]*SplitEvent, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "eodhd.Splits")
	defer span.End()

	subLog := log.With().Str("Symbol", security.Symbol).Str("Exchange", security.Exchange).Logger()

	wire, err := c.wireSymbol(security)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/splits/%s?from=%s&fmt=json&api_token=%s",
		eodhdAPI, wire, begin.Format("2006-01-02"), c.token)

	body, found, err := c.fetch(ctx, url, c.costs.Splits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "split fetch failed")
		return nil, err
	}
	if !found {
		return nil, ErrSymbolNotFound
	}

	jsonSplits := []eodhdSplitJSON{}
	if err := json.Unmarshal(body, &jsonSplits); err != nil {
		subLog.Warn().Err(err).Msg("could not decode split payload")
		return nil, ErrMalformedPayload
	}

	splits := make([]*SplitEvent, 0, len(jsonSplits))
	for _, js := range jsonSplits {
		dt, err := time.Parse("2006-01-02", js.Date)
		if err != nil {
			subLog.Warn().Str("DateStr", js.Date).Msg("skipping split with unparseable date")
			continue
		}
		to, from, err := parseSplitFactors(js.Split)
		if err != nil {
			subLog.Warn().Err(err).Str("Split", js.Split).Msg("skipping unparseable split ratio")
			continue
		}
		splits = append(splits, &SplitEvent{
			Date:       dt,
			FromFactor: from,
			ToFactor:   to,
		})
	}

	return splits, nil
}

// Statistics fetches the reference/fundamentals block for an
// instrument. API yields are converted to percentages.
func (c *Client) Statistics(ctx context.Context, security *Instrument) (*Statistics, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "eodhd.Statistics")
	defer span.End()

	subLog := log.With().Str("Symbol", security.Symbol).Str("Exchange", security.Exchange).Logger()

	wire, err := c.wireSymbol(security)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/fundamentals/%s?api_token=%s", eodhdAPI, wire, c.token)

	body, found, err := c.fetch(ctx, url, c.costs.Statistics)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics fetch failed")
		return nil, err
	}
	if !found {
		return nil, ErrSymbolNotFound
	}

	jsonStats := eodhdFundamentalsJSON{}
	if err := json.Unmarshal(body, &jsonStats); err != nil {
		subLog.Warn().Err(err).Msg("could not decode fundamentals payload")
		return nil, ErrMalformedPayload
	}

	stats := &Statistics{
		Name:                  jsonStats.General.Name,
		Sector:                jsonStats.General.Sector,
		Industry:              jsonStats.General.Industry,
		MarketCap:             jsonStats.Highlights.MarketCapitalization,
		EarningsPerShare:      jsonStats.Highlights.EarningsShare,
		TrailingDividendYield: fractionToPercent(jsonStats.Highlights.DividendYield),
		ForwardDividendYield:  fractionToPercent(jsonStats.SplitsDividends.ForwardAnnualDividendYield),
		Bid:                   jsonStats.Technicals.Bid,
		Ask:                   jsonStats.Technicals.Ask,
	}

	return stats, nil
}

// FXRate returns the conversion rate from `currency` into US dollars
// using the real-time forex endpoint.
func (c *Client) FXRate(ctx context.Context, currency string) (float64, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "eodhd.FXRate")
	defer span.End()

	subLog := log.With().Str("Currency", currency).Logger()

	url := fmt.Sprintf("%s/real-time/%sUSD.FOREX?fmt=json&api_token=%s", eodhdAPI, currency, c.token)

	body, found, err := c.fetch(ctx, url, c.costs.FX)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fx fetch failed")
		return 0, err
	}
	if !found {
		return 0, ErrUnknownCurrency
	}

	quote := struct {
		Close float64 `json:"close"`
	}{}
	if err := json.Unmarshal(body, &quote); err != nil {
		subLog.Warn().Err(err).Msg("could not decode fx payload")
		return 0, ErrMalformedPayload
	}

	if quote.Close <= 0 {
		return 0, ErrUnknownCurrency
	}

	return quote.Close, nil
}

// fetch charges the budget, issues the request and returns the body.
// found is false for a 404 so callers can fall through to the next
// candidate; all other failures are errors.
func (c *Client) fetch(ctx context.Context, url string, cost int) (body []byte, found bool, err error) {
	if err := c.budget.Charge(ctx, cost); err != nil {
		return nil, false, err
	}

	resp, err := http.Get(url)
	if err != nil {
		log.Warn().Err(err).Msg("http request failed")
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}

	if resp.StatusCode >= 400 {
		log.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Msg("api returned invalid response code")
		return nil, false, fmt.Errorf("HTTP request returned invalid status code: %d", resp.StatusCode)
	}

	body, err = ioutil.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Msg("could not read response body")
		return nil, false, err
	}

	return body, true, nil
}

// ResolvedWire reports the remembered wire symbol for a security, if
// one of its candidates has already matched this run.
func (c *Client) ResolvedWire(security *Instrument) (string, bool) {
	return c.resolver.Resolved(security)
}

// wireSymbol returns the wire symbol for endpoints that do not probe
// candidates themselves: the remembered resolution when one exists,
// otherwise the most likely candidate.
func (c *Client) wireSymbol(security *Instrument) (string, error) {
	if wire, ok := c.resolver.Resolved(security); ok {
		return wire, nil
	}
	candidates, err := c.resolver.Candidates(security)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// parseSplitFactors parses the API's "to/from" ratio text, e.g.
// "2.000000/1.000000".
func parseSplitFactors(s string) (to, from float64, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid split ratio '%s'", s)
	}
	to, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	from, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	if from == 0 {
		return 0, 0, fmt.Errorf("invalid split ratio '%s'", s)
	}
	return to, from, nil
}

func fractionToPercent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	pct := *v * 100
	return &pct
}
