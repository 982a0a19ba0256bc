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
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassBond   AssetClass = "bond"
)

// Instrument is the identity record for a single exchange listing. It is
// immutable once loaded from the input catalog.
type Instrument struct {
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	Exchange   string     `json:"exchange"`
	ISIN       string     `json:"isin,omitempty"`
	Currency   string     `json:"currency"`
	Country    string     `json:"country"`
	AssetClass AssetClass `json:"assetClass"`
}

// GroupKey identifies the logical instrument an exchange listing belongs
// to. Listings that share an ISIN are the same instrument; listings
// without an ISIN cannot be proven identical and get a synthetic
// per-symbol key so they never merge.
func (s *Instrument) GroupKey() string {
	if s.ISIN != "" {
		return s.ISIN
	}
	return fmt.Sprintf("NO_ISIN_%s", s.Symbol)
}

// CompositeKey keys the symbol-resolution cache. Two listings of the same
// ticker on different exchanges must never collide.
func (s *Instrument) CompositeKey() string {
	return fmt.Sprintf("%s|%s", s.Symbol, s.Exchange)
}

func (s *Instrument) String() string {
	return fmt.Sprintf("%s (%s)", s.Symbol, s.Exchange)
}

// LoadCatalog reads a delimited instrument catalog. Required columns are
// symbol (or ticker), name, country and exchange; isin and currency are
// optional. Column order is free, lookup is by header name.
func LoadCatalog(fn string, assetClass AssetClass) ([]*Instrument, error) {
	subLog := log.With().Str("FileName", fn).Str("AssetClass", string(assetClass)).Logger()

	fh, err := os.Open(fn)
	if err != nil {
		subLog.Error().Err(err).Msg("could not open catalog")
		return nil, err
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		subLog.Error().Err(err).Msg("could not parse catalog")
		return nil, err
	}

	if len(records) < 2 {
		return nil, ErrEmptyCatalog
	}

	colIdx := make(map[string]int, len(records[0]))
	for idx, name := range records[0] {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	symbolCol, ok := colIdx["symbol"]
	if !ok {
		if symbolCol, ok = colIdx["ticker"]; !ok {
			subLog.Error().Msg("catalog has no symbol or ticker column")
			return nil, ErrMissingColumn
		}
	}
	for _, required := range []string{"name", "country", "exchange"} {
		if _, ok := colIdx[required]; !ok {
			subLog.Error().Str("Column", required).Msg("catalog is missing required column")
			return nil, ErrMissingColumn
		}
	}

	field := func(row []string, name string) string {
		if idx, ok := colIdx[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	instruments := make([]*Instrument, 0, len(records)-1)
	for _, row := range records[1:] {
		symbol := strings.ToUpper(strings.TrimSpace(row[symbolCol]))
		if symbol == "" {
			continue
		}
		instruments = append(instruments, &Instrument{
			Symbol:     symbol,
			Name:       field(row, "name"),
			Exchange:   strings.ToUpper(field(row, "exchange")),
			ISIN:       strings.ToUpper(field(row, "isin")),
			Currency:   strings.ToUpper(field(row, "currency")),
			Country:    strings.ToUpper(field(row, "country")),
			AssetClass: assetClass,
		})
	}

	if len(instruments) == 0 {
		return nil, ErrEmptyCatalog
	}

	subLog.Info().Int("NumInstruments", len(instruments)).Msg("loaded catalog")
	return instruments, nil
}
