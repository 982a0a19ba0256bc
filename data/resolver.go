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
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

// micSuffix maps MIC-like exchange codes to the wire-symbol suffix the
// market-data API expects.
var micSuffix = map[string]string{
	"XNYS": "US",
	"XNAS": "US",
	"ARCX": "US",
	"BATS": "US",
	"XASE": "US",
	"XLON": "LSE",
	"XETR": "XETRA",
	"XFRA": "F",
	"XPAR": "PA",
	"XAMS": "AS",
	"XBRU": "BR",
	"XMIL": "MI",
	"XMAD": "MC",
	"XSWX": "SW",
	"XVTX": "SW",
	"XSTO": "ST",
	"XHEL": "HE",
	"XCSE": "CO",
	"XOSL": "OL",
	"XTSE": "TO",
	"XTSX": "V",
	"XASX": "AU",
	"XTKS": "TSE",
	"XHKG": "HK",
	"XSES": "SG",
}

// countrySuffix is the fallback table used when an instrument carries no
// usable exchange code.
var countrySuffix = map[string]string{
	"US": "US",
	"GB": "LSE",
	"UK": "LSE",
	"DE": "XETRA",
	"FR": "PA",
	"NL": "AS",
	"BE": "BR",
	"IT": "MI",
	"ES": "MC",
	"CH": "SW",
	"SE": "ST",
	"FI": "HE",
	"DK": "CO",
	"NO": "OL",
	"CA": "TO",
	"AU": "AU",
	"JP": "TSE",
	"HK": "HK",
	"SG": "SG",
}

// usExchanges are the venues where the API accepts a bare ticker.
var usExchanges = map[string]bool{
	"XNYS": true,
	"XNAS": true,
	"ARCX": true,
	"BATS": true,
	"XASE": true,
}

// Resolver turns an instrument into the ordered list of wire symbols to
// try against the market-data API, and remembers which candidate
// succeeded for the remainder of the run. The cache key is always the
// symbol+exchange composite: two exchange listings of the same ticker
// must not collide.
type Resolver struct {
	resolved *lru.Cache
}

func NewResolver() *Resolver {
	// large enough that a run never evicts; lru caps pathological universes
	cache, err := lru.New(16384)
	if err != nil {
		log.Panic().Err(err).Msg("could not create symbol resolution cache")
	}
	return &Resolver{resolved: cache}
}

// Candidates returns the wire symbols to try, most likely first. A
// candidate that already succeeded for this instrument is always
// retried first; the remaining candidates keep their derived order so a
// stale cache entry can never change which instrument is requested,
// only which spelling is tried first.
func (r *Resolver) Candidates(security *Instrument) ([]string, error) {
	derived := r.derive(security)
	if len(derived) == 0 {
		return nil, ErrNoCandidates
	}

	if cached, ok := r.resolved.Get(security.CompositeKey()); ok {
		wire := cached.(string)
		candidates := make([]string, 0, len(derived)+1)
		candidates = append(candidates, wire)
		for _, c := range derived {
			if c != wire {
				candidates = append(candidates, c)
			}
		}
		return candidates, nil
	}

	return derived, nil
}

// Resolved returns the wire symbol that previously succeeded for this
// instrument, if any.
func (r *Resolver) Resolved(security *Instrument) (string, bool) {
	if cached, ok := r.resolved.Get(security.CompositeKey()); ok {
		return cached.(string), true
	}
	return "", false
}

// MarkResolved records the candidate that succeeded. Subsequent
// Candidates calls for the same symbol+exchange composite try it first.
func (r *Resolver) MarkResolved(security *Instrument, wire string) {
	r.resolved.Add(security.CompositeKey(), wire)
	log.Debug().Str("Symbol", security.Symbol).Str("Exchange", security.Exchange).Str("Wire", wire).Msg("resolved wire symbol")
}

func (r *Resolver) derive(security *Instrument) []string {
	candidates := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	add := func(wire string) {
		if wire != "" && !seen[wire] {
			seen[wire] = true
			candidates = append(candidates, wire)
		}
	}

	if usExchanges[security.Exchange] {
		add(fmt.Sprintf("%s.US", security.Symbol))
		add(security.Symbol)
	}

	if suffix, ok := micSuffix[security.Exchange]; ok {
		add(fmt.Sprintf("%s.%s", security.Symbol, suffix))
	}

	if suffix, ok := countrySuffix[security.Country]; ok {
		add(fmt.Sprintf("%s.%s", security.Symbol, suffix))
	}

	return candidates
}
