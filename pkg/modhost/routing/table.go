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

// Package routing maps inbound (method, path) pairs onto the module queue and command that serve them.
package routing

import (
	"sort"
	"strings"
	"sync"
)

// ModuleIDMacro is replaced by the owning module's id in registered paths and queue names.
const ModuleIDMacro = "%MODULE_ID%"

// Route is a resolved (method, path) → (queue, command) mapping.
type Route struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	QueueName string `json:"queue"`
	Command   string `json:"command"`
	ModuleID  string `json:"moduleId,omitempty"`
}

// Table is the route registry shared by the HTTP boundary (readers) and the module runner (writer).
type Table interface {
	// Register stores or overwrites the route for (method, path). moduleID may be empty.
	Register(method, path, queueName, command, moduleID string)
	// Resolve finds the route for an inbound request, first by exact match and then by longest registered prefix.
	// Two stored paths of equal length that both prefix the request path are the same path, and so the same key,
	// so the longest prefix is always unique.
	Resolve(path, method string) (Route, bool)
	// UnregisterModule drops every route owned by moduleID and returns how many were removed.
	UnregisterModule(moduleID string) int
	// Routes returns a snapshot of all routes ordered by path then method.
	Routes() []Route
}

// NewTable returns an empty route table.
func NewTable() Table {
	return &table{routes: make(map[string]Route)}
}

type table struct {
	mu sync.RWMutex
	// key: lower(method) + "_" + lower(path)
	routes map[string]Route
}

func routeKey(method, path string) string {
	return strings.ToLower(method) + "_" + strings.ToLower(path)
}

func (t *table) Register(method, path, queueName, command, moduleID string) {
	if moduleID != "" {
		path = strings.ReplaceAll(path, ModuleIDMacro, moduleID)
		queueName = strings.ReplaceAll(queueName, ModuleIDMacro, moduleID)
	}
	r := Route{
		Method:    strings.ToUpper(method),
		Path:      strings.ToLower(path),
		QueueName: queueName,
		Command:   command,
		ModuleID:  moduleID,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[routeKey(r.Method, r.Path)] = r
}

func (t *table) Resolve(path, method string) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if r, ok := t.routes[routeKey(method, path)]; ok {
		return r, true
	}

	lowerPath := strings.ToLower(path)
	var (
		best  Route
		found bool
	)
	for _, r := range t.routes {
		if !strings.EqualFold(r.Method, method) || !strings.HasPrefix(lowerPath, r.Path) {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}

func (t *table) UnregisterModule(moduleID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, r := range t.routes {
		if r.ModuleID == moduleID {
			delete(t.routes, key)
			removed++
		}
	}
	return removed
}

func (t *table) Routes() []Route {
	t.mu.RLock()
	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}
