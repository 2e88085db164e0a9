// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package game

import (
	"context"
	"sync"
	"time"
)

// DefaultAnswerTime is how long a player has to answer a question.
const DefaultAnswerTime = 60 * time.Second

// Countdown runs fire once after a delay unless it is stopped first.
type Countdown struct {
	deadline time.Time
	cancel   context.CancelFunc

	mu   sync.Mutex
	done bool
}

// StartCountdown schedules fire to run after d. Cancelling ctx has the same
// effect as calling Stop.
func StartCountdown(ctx context.Context, d time.Duration, fire func()) *Countdown {
	ctx, cancel := context.WithCancel(ctx)
	c := &Countdown{
		deadline: time.Now().Add(d),
		cancel:   cancel,
	}
	timer := time.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
			c.finish()
		case <-timer.C:
			if c.finish() {
				fire()
			}
			cancel()
		}
	}()
	return c
}

// finish marks the countdown as done and reports whether this call did it.
func (c *Countdown) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	return true
}

// Stop cancels the countdown. It returns false if fire already ran or the
// countdown was already stopped.
func (c *Countdown) Stop() bool {
	ok := c.finish()
	c.cancel()
	return ok
}

// Deadline is the time at which fire runs.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Remaining returns the time left before fire runs, rounded up to the
// second. It is zero once the countdown is done.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done {
		return 0
	}
	return RemainingUntil(c.deadline, time.Now())
}

// RemainingUntil returns the whole seconds left until deadline.
func RemainingUntil(deadline, now time.Time) time.Duration {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return ((left + time.Second - 1) / time.Second) * time.Second
}
