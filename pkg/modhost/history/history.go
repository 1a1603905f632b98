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

// Package history keeps a log of module lifecycle transitions for the admin surface.
package history

import (
	"context"
	"sync"
	"time"
)

// Event is one module status transition.
type Event struct {
	ModuleID string    `json:"moduleId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	PID      int       `json:"pid,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder stores lifecycle events. Implementations must be safe for concurrent use.
type Recorder interface {
	// Record appends an event.
	Record(ctx context.Context, e Event) error
	// List returns up to limit events for moduleID, newest first. A non-positive limit returns all retained events.
	List(ctx context.Context, moduleID string, limit int) ([]Event, error)
}

// NewMemoryRecorder returns a Recorder that keeps the most recent maxEvents events in memory.
func NewMemoryRecorder(maxEvents int) Recorder {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	return &memoryRecorder{events: make([]Event, 0, maxEvents), max: maxEvents}
}

type memoryRecorder struct {
	mu     sync.RWMutex
	events []Event // oldest first
	max    int
}

func (m *memoryRecorder) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == m.max {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRecorder) List(_ context.Context, moduleID string, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Event{}
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].ModuleID != moduleID {
			continue
		}
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
