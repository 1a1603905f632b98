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

// Package broker hands requests from HTTP callers to module workers through named, bounded FIFO queues and
// correlates each worker response back to the suspended caller.
//
// A producer calls Submit (or Send) and blocks until a worker resolves the request, the timeout elapses or the
// caller's context ends. Workers poll Dequeue/TryDequeue for their queue and answer with Resolve. Every outcome is
// returned as a value; nothing in this package panics on expected conditions.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jellydator/ttlcache/v3"
	"k8s.io/utils/clock"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/metrics"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// finalizedRequest is what the broker remembers about a request after its caller stopped waiting.
type finalizedRequest struct {
	queueName string
	outcome   Outcome
}

// Broker owns the named queues and the table of pending response slots.
type Broker struct {
	config *Config
	clock  clock.WithTicker
	logger logr.Logger

	queuesMu sync.RWMutex
	queues   map[string]*requestQueue

	pendingMu sync.Mutex
	// key: request id
	pending map[string]*pendingSlot

	recent *ttlcache.Cache[string, finalizedRequest]
}

type brokerOption func(*Broker)

// WithClock sets the clock used for deadlines and sweeps.
func WithClock(clk clock.WithTicker) brokerOption {
	return func(b *Broker) {
		b.clock = clk
	}
}

// NewBroker creates a broker with no queues.
func NewBroker(config *Config, logger logr.Logger, opts ...brokerOption) *Broker {
	b := &Broker{
		config:  config,
		clock:   clock.RealClock{},
		logger:  logger.WithName("broker"),
		queues:  make(map[string]*requestQueue),
		pending: make(map[string]*pendingSlot),
		recent: ttlcache.New(
			ttlcache.WithTTL[string, finalizedRequest](config.RecentResponseTTL),
			ttlcache.WithCapacity[string, finalizedRequest](config.RecentResponseCapacity),
			ttlcache.WithDisableTouchOnHit[string, finalizedRequest](),
		),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run sweeps dead entries out of the queues until ctx ends. Without it, dead entries are still skipped by Dequeue
// and dropped when a full queue needs room.
func (b *Broker) Run(ctx context.Context) error {
	b.logger.V(logutil.DEFAULT).Info("Broker sweep loop starting", "interval", b.config.ExpiryCleanupInterval)
	go b.recent.Start()
	defer b.recent.Stop()

	ticker := b.clock.NewTicker(b.config.ExpiryCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.V(logutil.DEFAULT).Info("Broker sweep loop stopped")
			return nil
		case <-ticker.C():
			b.sweep()
		}
	}
}

func (b *Broker) sweep() {
	now := b.clock.Now()
	b.queuesMu.RLock()
	queues := make([]*requestQueue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.queuesMu.RUnlock()

	for _, q := range queues {
		if removed := q.sweep(now); removed > 0 {
			b.logger.V(logutil.TRACE).Info("Swept dead entries", "queue", q.name, "removed", removed)
			metrics.SetBrokerQueueSize(q.name, q.Len())
		}
	}
}

// EnsureQueue creates the named queue if it does not exist yet.
func (b *Broker) EnsureQueue(name string) {
	b.getOrCreateQueue(name)
}

func (b *Broker) getOrCreateQueue(name string) *requestQueue {
	if q := b.queue(name); q != nil {
		return q
	}
	b.queuesMu.Lock()
	defer b.queuesMu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q
	}
	q := newRequestQueue(name, b.config.MaxQueueLength)
	b.queues[name] = q
	b.logger.V(logutil.VERBOSE).Info("Queue created", "queue", name)
	return q
}

func (b *Broker) queue(name string) *requestQueue {
	b.queuesMu.RLock()
	defer b.queuesMu.RUnlock()
	return b.queues[name]
}

// QueueNames returns the names of all known queues, sorted.
func (b *Broker) QueueNames() []string {
	b.queuesMu.RLock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	b.queuesMu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of entries held by the named queue, or 0 if it is unknown.
func (b *Broker) Len(queueName string) int {
	if q := b.queue(queueName); q != nil {
		return q.Len()
	}
	return 0
}

// Send submits req to its queue and blocks until a worker resolves it, timeout elapses or ctx ends. On success it
// returns the worker's raw JSON document. A non-positive timeout selects the configured default.
func (b *Broker) Send(ctx context.Context, req *Request, timeout time.Duration) (json.RawMessage, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if timeout <= 0 {
		timeout = b.config.DefaultRequestTimeout
	}
	logger := b.logger.WithValues("requestID", req.ID, "queue", req.QueueName, "command", req.Command)

	q := b.getOrCreateQueue(req.QueueName)
	enqueuedAt := b.clock.Now()
	if !q.hasCapacity(enqueuedAt) {
		logger.V(logutil.DEFAULT).Info("Rejecting request, queue is full", "capacity", b.config.MaxQueueLength)
		metrics.RecordBrokerRequest(req.QueueName, OutcomeRejectedQueueFull.String(), 0)
		return nil, ErrQueueFull
	}

	slot := newPendingSlot(req, enqueuedAt, timeout)
	if !b.addPending(slot) {
		logger.V(logutil.DEFAULT).Info("Rejecting request, id is already pending")
		metrics.RecordBrokerRequest(req.QueueName, OutcomeRejectedDuplicate.String(), 0)
		return nil, fmt.Errorf("Unable to add pending response id %s: %w", req.ID, ErrDuplicateRequestID)
	}
	if !q.add(slot, enqueuedAt) {
		b.removePending(slot)
		logger.V(logutil.DEFAULT).Info("Rejecting request, queue is full", "capacity", b.config.MaxQueueLength)
		metrics.RecordBrokerRequest(req.QueueName, OutcomeRejectedQueueFull.String(), 0)
		return nil, ErrQueueFull
	}
	metrics.SetBrokerQueueSize(req.QueueName, q.Len())
	logger.V(logutil.TRACE).Info("Request enqueued", "timeout", timeout)

	timer := b.clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-slot.Done():
	case <-timer.C():
		slot.finalize(OutcomeTimedOut, nil, ErrRequestTimeout)
	case <-ctx.Done():
		slot.finalize(OutcomeCanceled, nil, ErrRequestCanceled)
	}
	b.removePending(slot)

	outcome, response, err := slot.FinalState()
	b.recent.Set(req.ID, finalizedRequest{queueName: req.QueueName, outcome: outcome}, ttlcache.DefaultTTL)
	metrics.RecordBrokerRequest(req.QueueName, outcome.String(), b.clock.Since(enqueuedAt))
	metrics.SetBrokerQueueSize(req.QueueName, q.Len())
	if err != nil {
		logger.V(logutil.DEBUG).Info("Request finished without a response", "outcome", outcome, "error", err.Error())
		return nil, err
	}
	logger.V(logutil.TRACE).Info("Request resolved", "elapsed", b.clock.Since(enqueuedAt))
	return response, nil
}

// Submit is Send followed by decoding the worker's response into T. A response that does not fit T completes
// with ErrInvalidResponse.
func Submit[T any](ctx context.Context, b *Broker, req *Request, timeout time.Duration) (T, error) {
	var out T
	raw, err := b.Send(ctx, req, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		b.logger.V(logutil.DEBUG).Info("Response does not fit the expected shape", "requestID", req.ID,
			"type", fmt.Sprintf("%T", out), "error", err.Error())
		return out, ErrInvalidResponse
	}
	return out, nil
}

func (b *Broker) addPending(slot *pendingSlot) bool {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if _, exists := b.pending[slot.request.ID]; exists {
		return false
	}
	b.pending[slot.request.ID] = slot
	return true
}

// removePending deletes slot from the pending table unless the id was already reused by a newer request.
func (b *Broker) removePending(slot *pendingSlot) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if current, ok := b.pending[slot.request.ID]; ok && current == slot {
		delete(b.pending, slot.request.ID)
	}
}

// takePending removes and returns the pending slot for id.
func (b *Broker) takePending(id string) (*pendingSlot, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	slot, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return slot, ok
}

// Dequeue returns the next live request on the named queue, blocking until one arrives. It returns nil if the
// queue is unknown or ctx ends first.
func (b *Broker) Dequeue(ctx context.Context, queueName string) *Request {
	q := b.queue(queueName)
	if q == nil {
		return nil
	}
	for {
		slot, wait := q.popOrWait(b.clock.Now())
		if slot != nil {
			metrics.SetBrokerQueueSize(queueName, q.Len())
			return slot.request
		}
		select {
		case <-ctx.Done():
			return nil
		case <-wait:
		}
	}
}

// TryDequeue returns the next live request on the named queue, or nil if the queue is unknown or empty.
func (b *Broker) TryDequeue(queueName string) *Request {
	q := b.queue(queueName)
	if q == nil {
		return nil
	}
	slot, _ := q.popOrWait(b.clock.Now())
	if slot == nil {
		return nil
	}
	metrics.SetBrokerQueueSize(queueName, q.Len())
	return slot.request
}

// Resolve completes the pending request with the worker's response. raw == nil means the worker sent no body.
// Resolving an id that is no longer pending is a no-op. Resolve always returns true: the worker's part of the
// exchange is done whatever happened to the caller.
func (b *Broker) Resolve(requestID string, raw []byte) bool {
	slot, ok := b.takePending(requestID)
	if !ok {
		if item := b.recent.Get(requestID); item != nil {
			fr := item.Value()
			b.logger.V(logutil.DEBUG).Info("Response arrived after the request was finalized",
				"requestID", requestID, "queue", fr.queueName, "outcome", fr.outcome)
			metrics.RecordBrokerLateResponse(fr.queueName)
		} else {
			b.logger.V(logutil.DEBUG).Info("Response for unknown request id ignored", "requestID", requestID)
		}
		return true
	}

	switch {
	case raw == nil:
		slot.finalize(OutcomeMalformed, nil, ErrNullResponse)
	case !json.Valid(raw):
		slot.finalize(OutcomeMalformed, nil, ErrInvalidResponse)
	case bytes.Equal(bytes.TrimSpace(raw), []byte("null")):
		slot.finalize(OutcomeMalformed, nil, ErrNullObject)
	default:
		response := make(json.RawMessage, len(raw))
		copy(response, raw)
		slot.finalize(OutcomeResolved, response, nil)
	}
	return true
}
