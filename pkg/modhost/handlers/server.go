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

// Package handlers is the HTTP boundary of the orchestrator. It turns module requests into broker submissions,
// serves the worker long-poll and response endpoints, and exposes module status and admin operations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/metrics"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/supervisor"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

const (
	apiPrefix       = "/v1/"
	requestIDHeader = "X-Request-Id"
	tracerName      = "modhost"

	defaultMaxBodyBytes   = 64 << 20
	defaultHistoryLimit   = 50
	defaultDequeueTimeout = 15 * time.Second
	multipartMemoryBytes  = 32 << 20
)

// Broker is the part of *broker.Broker the HTTP boundary uses.
type Broker interface {
	Send(ctx context.Context, req *broker.Request, timeout time.Duration) (json.RawMessage, error)
	Dequeue(ctx context.Context, queueName string) *broker.Request
	Resolve(requestID string, raw []byte) bool
	QueueNames() []string
	Len(queueName string) int
}

// ModuleReporter receives worker activity and provides module status. *supervisor.Supervisor satisfies it.
type ModuleReporter interface {
	RecordSeen(moduleID string)
	RecordProcessed(moduleID string)
	Statuses() []supervisor.ProcessStatus
}

// ModuleAdmin carries out admin operations. *modulerunner.Runner satisfies it.
type ModuleAdmin interface {
	Ready() bool
	HasModule(moduleID string) bool
	Start(ctx context.Context, moduleID string) (bool, string)
	Stop(ctx context.Context, moduleID string) (bool, string)
	Restart(ctx context.Context, moduleID string) (bool, string)
}

// Config holds the HTTP boundary's timeouts and limits.
type Config struct {
	// RequestTimeout bounds how long a module request waits for a worker. Zero uses the broker's default.
	RequestTimeout time.Duration
	// DequeueTimeout bounds a worker's long-poll.
	DequeueTimeout time.Duration
	MaxBodyBytes   int64
}

// Server serves the orchestrator's HTTP API.
type Server struct {
	config  Config
	routes  routing.Table
	broker  Broker
	modules ModuleReporter
	admin   ModuleAdmin
	history history.Recorder
	clock   clock.PassiveClock
	tracer  trace.Tracer
	logger  logr.Logger
	handler http.Handler
}

type serverOption func(*Server)

// WithClock sets the clock used to time module requests.
func WithClock(clk clock.PassiveClock) serverOption {
	return func(s *Server) {
		s.clock = clk
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) serverOption {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// NewServer wires the API onto its collaborators. recorder may be nil, in which case history is always empty.
func NewServer(config Config, routes routing.Table, b Broker, reporter ModuleReporter, admin ModuleAdmin,
	recorder history.Recorder, logger logr.Logger, opts ...serverOption) *Server {
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = defaultDequeueTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		config:  config,
		routes:  routes,
		broker:  b,
		modules: reporter,
		admin:   admin,
		history: recorder,
		clock:   clock.RealClock{},
		tracer:  otel.Tracer(tracerName),
		logger:  logger.WithName("http"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/queue/{queue}", s.handleDequeue)
	mux.HandleFunc("POST /v1/queue/{requestId}", s.handleResponse)
	mux.HandleFunc("GET /v1/status/ready", s.handleReady)
	mux.HandleFunc("GET /v1/status/modules", s.handleModuleStatuses)
	mux.HandleFunc("GET /v1/status/routes", s.handleRoutes)
	mux.HandleFunc("GET /v1/status/queues", s.handleQueues)
	mux.HandleFunc("POST /v1/module/{action}/{id}", s.handleModuleAdmin)
	mux.HandleFunc("GET /v1/module/{id}/history", s.handleHistory)
	mux.HandleFunc(apiPrefix, s.handleModuleRequest)
	s.handler = s.withObservability(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withObservability puts a request-scoped logger in the context and counts every response by route pattern.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		logger := s.logger.WithValues("method", r.Method, "path", r.URL.Path)
		r = r.WithContext(log.IntoContext(r.Context(), logger))

		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(pattern, rec.status)
		logger.V(logutil.DEBUG).Info("Served request", "status", rec.status, "elapsed", s.clock.Since(start))
	})
}
