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

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/metrics"
)

const (
	// --- Subsystems ---
	BrokerComponent = "modhost_broker"
	ModuleComponent = "modhost_module"
	HTTPComponent   = "modhost_http"
	ModHost         = "modhost"
)

var (
	// RequestLatencyBuckets span fast classifiers through slow generative modules, 5ms to 10 minutes.
	RequestLatencyBuckets = []float64{
		0.005, 0.025, 0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.5, 2, 3, 5, 8,
		10, 15, 20, 30, 45, 60, 120, 180, 300, 600,
	}
)

// --- Broker Metrics ---
var (
	brokerQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: BrokerComponent,
			Name:      "queue_size",
			Help:      metricsutil.HelpMsgWithStability("Number of entries currently held by a module queue, including entries not yet swept after expiry.", compbasemetrics.ALPHA),
		},
		[]string{"queue"},
	)

	brokerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: BrokerComponent,
			Name:      "requests_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of submitted requests broken out by queue and final outcome.", compbasemetrics.ALPHA),
		},
		[]string{"queue", "outcome"},
	)

	brokerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: BrokerComponent,
			Name:      "request_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Time from submission to final outcome, broken out by queue and outcome.", compbasemetrics.ALPHA),
			Buckets:   RequestLatencyBuckets,
		},
		[]string{"queue", "outcome"},
	)

	brokerLateResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: BrokerComponent,
			Name:      "late_responses_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of worker responses that arrived after their request was already finalized.", compbasemetrics.ALPHA),
		},
		[]string{"queue"},
	)
)

// --- Module Metrics ---
var (
	moduleStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: ModuleComponent,
			Name:      "status",
			Help:      metricsutil.HelpMsgWithStability("Current lifecycle status of a module; the series for the active status is 1, all others 0.", compbasemetrics.ALPHA),
		},
		[]string{"module", "status"},
	)

	moduleRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ModuleComponent,
			Name:      "restarts_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of module restarts.", compbasemetrics.ALPHA),
		},
		[]string{"module"},
	)

	moduleCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: ModuleComponent,
			Name:      "crashes_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of module processes that exited without being asked to.", compbasemetrics.ALPHA),
		},
		[]string{"module"},
	)
)

// --- HTTP Metrics ---
var httpRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: HTTPComponent,
		Name:      "requests_total",
		Help:      metricsutil.HelpMsgWithStability("Counter of module requests served over HTTP, broken out by route and status code.", compbasemetrics.ALPHA),
	},
	[]string{"route", "code"},
)

// --- Info Metrics ---
var modhostInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: ModHost,
		Name:      "info",
		Help:      metricsutil.HelpMsgWithStability("General information of the current build of the orchestrator.", compbasemetrics.ALPHA),
	},
	[]string{"commit", "build_ref"},
)

var registerMetrics sync.Once

// Register all metrics.
func Register(customCollectors ...prometheus.Collector) {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(brokerQueueSize)
		metrics.Registry.MustRegister(brokerRequests)
		metrics.Registry.MustRegister(brokerRequestDuration)
		metrics.Registry.MustRegister(brokerLateResponses)
		metrics.Registry.MustRegister(moduleStatus)
		metrics.Registry.MustRegister(moduleRestarts)
		metrics.Registry.MustRegister(moduleCrashes)
		metrics.Registry.MustRegister(httpRequests)
		metrics.Registry.MustRegister(modhostInfo)
		for _, collector := range customCollectors {
			metrics.Registry.MustRegister(collector)
		}
	})
}

// Reset clears every series. Used by tests.
func Reset() {
	brokerQueueSize.Reset()
	brokerRequests.Reset()
	brokerRequestDuration.Reset()
	brokerLateResponses.Reset()
	moduleStatus.Reset()
	moduleRestarts.Reset()
	moduleCrashes.Reset()
	httpRequests.Reset()
	modhostInfo.Reset()
}

// SetBrokerQueueSize records the current length of a queue.
func SetBrokerQueueSize(queue string, size int) {
	brokerQueueSize.WithLabelValues(queue).Set(float64(size))
}

// RecordBrokerRequest records the final outcome of a submitted request and how long it took.
func RecordBrokerRequest(queue, outcome string, duration time.Duration) {
	brokerRequests.WithLabelValues(queue, outcome).Inc()
	brokerRequestDuration.WithLabelValues(queue, outcome).Observe(duration.Seconds())
}

func RecordBrokerLateResponse(queue string) {
	brokerLateResponses.WithLabelValues(queue).Inc()
}

// SetModuleStatus marks status as the active one for module. allStatuses lists every status name so stale series
// are zeroed instead of removed, keeping the gauge dense for dashboards.
func SetModuleStatus(module, status string, allStatuses []string) {
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		moduleStatus.WithLabelValues(module, s).Set(v)
	}
}

func RecordModuleRestart(module string) {
	moduleRestarts.WithLabelValues(module).Inc()
}

func RecordModuleCrash(module string) {
	moduleCrashes.WithLabelValues(module).Inc()
}

// RecordHTTPRequest counts a module request served over HTTP.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func RecordModHostInfo(commitSha, buildRef string) {
	modhostInfo.WithLabelValues(commitSha, buildRef).Set(1)
}
