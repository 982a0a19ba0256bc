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

import "errors"

var (
	ErrSymbolNotFound     = errors.New("no candidate wire symbol matched")
	ErrNoCandidates       = errors.New("no candidate wire symbols for instrument")
	ErrMissingToken       = errors.New("no API token configured")
	ErrCostExceedsBudget  = errors.New("request cost exceeds total credit budget")
	ErrInvalidTimeRange   = errors.New("start must be before end")
	ErrMalformedPayload   = errors.New("could not decode API payload")
	ErrUnknownCurrency    = errors.New("no FX rate available for currency")
	ErrMissingColumn      = errors.New("catalog is missing a required column")
	ErrEmptyCatalog       = errors.New("catalog contains no instruments")
)
