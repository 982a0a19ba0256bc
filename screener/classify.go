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

package screener

import (
	"strings"

	"github.com/finsieve/finsieve/data"
)

// Coverage buckets. Coverage-mode selection runs independently per
// bucket so that thinly traded international names are not crowded out
// by US mega-caps.
const (
	BucketUSEquity   = "us-equity"
	BucketIntlEquity = "intl-equity"
	BucketBond       = "bond"
)

// bondWords are name fragments that mark fixed-income products listed
// in an equity catalog. Best-effort: the catalog's asset class is
// authoritative when set, the name scan only catches strays.
var bondWords = []string{"BOND", "TREASURY", " NOTE", "GILT", "FIXED INCOME"}

// Classify assigns a group to its coverage bucket from the primary
// listing's asset class, name and country.
func Classify(group *AggregatedInstrument) string {
	if group.Primary == nil {
		return BucketIntlEquity
	}

	security := group.Primary.Security
	if security.AssetClass == data.AssetClassBond {
		return BucketBond
	}

	name := strings.ToUpper(security.Name)
	for _, word := range bondWords {
		if strings.Contains(name, word) {
			return BucketBond
		}
	}

	switch security.Country {
	case "US", "USA", "UNITED STATES":
		return BucketUSEquity
	}
	return BucketIntlEquity
}
