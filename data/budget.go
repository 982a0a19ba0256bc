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
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBudgetWindow = 60 * time.Second
	DefaultBudgetPoll   = 250 * time.Millisecond
)

// CreditBudget enforces a rolling per-window API credit ceiling. The
// window is a hard reset: once `window` has elapsed since the window
// started, the full budget is available again. There is no partial
// decay. A single budget instance is shared by every concurrent fetch
// of one pipeline run; the counter and window start are only ever
// touched under the mutex.
type CreditBudget struct {
	limit       int
	window      time.Duration
	poll        time.Duration
	locker      sync.Mutex
	spent       int
	totalSpent  int
	windowStart time.Time
}

// NewCreditBudget creates a budget of `limit` credits per `window`.
// Callers that find the window exhausted poll every `poll` until the
// window resets; the poll interval trades a little latency for a much
// simpler scheduler.
func NewCreditBudget(limit int, window, poll time.Duration) *CreditBudget {
	if window <= 0 {
		window = DefaultBudgetWindow
	}
	if poll <= 0 {
		poll = DefaultBudgetPoll
	}
	return &CreditBudget{
		limit:  limit,
		window: window,
		poll:   poll,
	}
}

// Charge blocks until the current window has at least `cost` credits
// remaining, deducts them and returns. A cost larger than the whole
// budget can never succeed and fails immediately. The context aborts
// the wait.
func (b *CreditBudget) Charge(ctx context.Context, cost int) error {
	if cost > b.limit {
		log.Error().Int("Cost", cost).Int("Limit", b.limit).Msg("request cost can never fit in credit budget")
		return ErrCostExceedsBudget
	}

	for {
		if b.tryCharge(cost) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.poll):
		}
	}
}

func (b *CreditBudget) tryCharge(cost int) bool {
	b.locker.Lock()
	defer b.locker.Unlock()

	now := time.Now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.spent = 0
	}

	if b.spent+cost > b.limit {
		return false
	}

	b.spent += cost
	b.totalSpent += cost
	return true
}

// TotalSpent reports the credits consumed over the lifetime of the
// budget, across all windows.
func (b *CreditBudget) TotalSpent() int {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.totalSpent
}

// Remaining reports the credits still available in the current window.
func (b *CreditBudget) Remaining() int {
	b.locker.Lock()
	defer b.locker.Unlock()

	if b.windowStart.IsZero() || time.Since(b.windowStart) >= b.window {
		return b.limit
	}
	return b.limit - b.spent
}
