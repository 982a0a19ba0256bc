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
	"sync"

	"github.com/rs/zerolog/log"
)

// staticFXRates are fallback conversion rates into USD, used when the
// live forex lookup fails. Rough figures are acceptable here: FX only
// normalizes dollar-volume liquidity scores, it never prices trades.
var staticFXRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"GBX": 0.0127,
	"CHF": 1.11,
	"JPY": 0.0067,
	"CAD": 0.73,
	"AUD": 0.65,
	"NZD": 0.60,
	"SEK": 0.095,
	"NOK": 0.092,
	"DKK": 0.145,
	"HKD": 0.128,
	"SGD": 0.74,
	"ILS": 0.27,
	"PLN": 0.25,
}

// FXCache converts listing currencies into the reporting currency. Live
// rates are fetched once per currency per run and cached; a failed
// lookup degrades to the static table. Conversion is applied exactly
// once per listing, by the aggregator.
type FXCache struct {
	client *Client
	rates  map[string]float64
	locker sync.Mutex
}

func NewFXCache(client *Client) *FXCache {
	return &FXCache{
		client: client,
		rates:  make(map[string]float64, len(staticFXRates)),
	}
}

// Rate returns the USD conversion rate for a currency. An empty
// currency is assumed to be USD already.
func (f *FXCache) Rate(ctx context.Context, currency string) (float64, error) {
	if currency == "" || currency == "USD" {
		return 1.0, nil
	}

	f.locker.Lock()
	defer f.locker.Unlock()

	if rate, ok := f.rates[currency]; ok {
		return rate, nil
	}

	if f.client != nil {
		rate, err := f.client.FXRate(ctx, currency)
		if err == nil {
			f.rates[currency] = rate
			return rate, nil
		}
		log.Warn().Err(err).Str("Currency", currency).Msg("live fx lookup failed, falling back to static rate")
	}

	if rate, ok := staticFXRates[currency]; ok {
		f.rates[currency] = rate
		return rate, nil
	}

	return 0, ErrUnknownCurrency
}
