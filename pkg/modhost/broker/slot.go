/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package broker

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// pendingSlot correlates an outstanding request with its eventual answer.
//
// # Concurrency
//
// finalize is the only mutator and is idempotent through sync.Once: the worker's response, the deadline and the
// caller's cancellation race to finalize the slot and exactly one of them wins. The remaining fields are set at
// creation and never modified.
type pendingSlot struct {
	request    *Request
	enqueuedAt time.Time
	deadline   time.Time

	// done is closed exactly once, when the slot is finalized.
	done chan struct{}
	// outcome stores the final Outcome. Written once, protected by onceFinalize.
	outcome atomic.Value
	// response and err are written once before done is closed and read only after.
	response json.RawMessage
	err      error

	onceFinalize sync.Once
}

func newPendingSlot(req *Request, enqueuedAt time.Time, timeout time.Duration) *pendingSlot {
	s := &pendingSlot{
		request:    req,
		enqueuedAt: enqueuedAt,
		deadline:   enqueuedAt.Add(timeout),
		done:       make(chan struct{}),
	}
	s.outcome.Store(OutcomePending)
	return s
}

// Done returns a channel closed when the slot has been finalized.
func (s *pendingSlot) Done() <-chan struct{} { return s.done }

// finalize sets the slot's terminal state and reports whether this call was the one that did so.
func (s *pendingSlot) finalize(outcome Outcome, response json.RawMessage, err error) bool {
	won := false
	s.onceFinalize.Do(func() {
		s.response = response
		s.err = err
		s.outcome.Store(outcome)
		close(s.done)
		won = true
	})
	return won
}

// FinalState returns the terminal state. It must only be called after Done() is closed.
func (s *pendingSlot) FinalState() (Outcome, json.RawMessage, error) {
	outcome, ok := s.outcome.Load().(Outcome)
	if !ok {
		outcome = OutcomePending
	}
	return outcome, s.response, s.err
}

func (s *pendingSlot) isFinalized() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// isDead reports whether the slot's entry should no longer be handed to a worker: the caller has stopped waiting
// or the deadline has passed.
func (s *pendingSlot) isDead(now time.Time) bool {
	return s.isFinalized() || !now.Before(s.deadline)
}
