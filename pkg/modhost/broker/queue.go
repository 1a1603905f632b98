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
	"container/list"
	"sync"
	"time"
)

// requestQueue is a bounded FIFO of pending slots for one named queue.
//
// All operations take the queue's mutex, so add, pop-with-skip and sweep are atomic with respect to each other.
// Waiting consumers block on a broadcast channel that is closed and replaced on every add.
type requestQueue struct {
	name     string
	capacity int

	mu       sync.Mutex
	requests *list.List // of *pendingSlot
	signal   chan struct{}
}

func newRequestQueue(name string, capacity int) *requestQueue {
	return &requestQueue{
		name:     name,
		capacity: capacity,
		requests: list.New(),
		signal:   make(chan struct{}),
	}
}

// hasCapacity reports whether one more entry fits. A full queue is first swept of dead entries.
func (q *requestQueue) hasCapacity(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.requests.Len() < q.capacity {
		return true
	}
	q.sweepLocked(now)
	return q.requests.Len() < q.capacity
}

// add appends slot if capacity allows and wakes waiting consumers.
func (q *requestQueue) add(slot *pendingSlot, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.requests.Len() >= q.capacity {
		q.sweepLocked(now)
		if q.requests.Len() >= q.capacity {
			return false
		}
	}
	q.requests.PushBack(slot)
	close(q.signal)
	q.signal = make(chan struct{})
	return true
}

// popOrWait removes and returns the first live slot. If none is left it returns a channel that is closed on the
// next add. Dead entries found at the head are discarded without finalizing their slots.
func (q *requestQueue) popOrWait(now time.Time) (*pendingSlot, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.requests.Front(); e != nil; e = q.requests.Front() {
		slot := q.requests.Remove(e).(*pendingSlot)
		if !slot.isDead(now) {
			return slot, nil
		}
	}
	return nil, q.signal
}

// sweep removes every dead entry and returns how many were removed.
func (q *requestQueue) sweep(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sweepLocked(now)
}

func (q *requestQueue) sweepLocked(now time.Time) int {
	removed := 0
	for e := q.requests.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*pendingSlot).isDead(now) {
			q.requests.Remove(e)
			removed++
		}
		e = next
	}
	return removed
}

// Len returns the number of entries held, live or not yet swept.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requests.Len()
}
