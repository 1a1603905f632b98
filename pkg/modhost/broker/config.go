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
	"fmt"
	"time"

	"github.com/go-logr/logr"

	envutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/env"
)

const (
	// defaultMaxQueueLength is the default capacity of each named queue.
	defaultMaxQueueLength = 1024
	// defaultRequestTimeout applies when Submit is called without a positive timeout.
	defaultRequestTimeout = 2 * time.Minute
	// defaultExpiryCleanupInterval is the default frequency for sweeping dead entries out of the queues.
	defaultExpiryCleanupInterval = 1 * time.Second
	// defaultRecentResponseTTL is how long a finalized request id is remembered for late-response diagnostics.
	defaultRecentResponseTTL = 1 * time.Minute
	// defaultRecentResponseCapacity bounds the memory of finalized request ids.
	defaultRecentResponseCapacity = 10000
)

// Config holds the configuration for the Broker.
type Config struct {
	// MaxQueueLength is the capacity of every named queue. Submissions beyond it fail immediately.
	MaxQueueLength int

	// DefaultRequestTimeout is used when Submit is called with a non-positive timeout.
	DefaultRequestTimeout time.Duration

	// ExpiryCleanupInterval is the interval at which Run sweeps dead entries out of the queues.
	ExpiryCleanupInterval time.Duration

	// RecentResponseTTL is how long finalized request ids are remembered so that late worker responses can be told
	// apart from unknown ids.
	RecentResponseTTL time.Duration

	// RecentResponseCapacity bounds how many finalized ids are remembered.
	RecentResponseCapacity uint64
}

// ConfigOption is a functional option for configuring the Broker.
type ConfigOption func(*Config)

// NewConfig creates a new Config with the given options, applying defaults and validation.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := &Config{
		MaxQueueLength:         defaultMaxQueueLength,
		DefaultRequestTimeout:  defaultRequestTimeout,
		ExpiryCleanupInterval:  defaultExpiryCleanupInterval,
		RecentResponseTTL:      defaultRecentResponseTTL,
		RecentResponseCapacity: defaultRecentResponseCapacity,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigOptionsFromEnv returns options for the tunables that are only exposed through the environment.
func ConfigOptionsFromEnv(logger logr.Logger) []ConfigOption {
	return []ConfigOption{
		WithExpiryCleanupInterval(envutil.GetEnvDuration("MODHOST_BROKER_EXPIRY_CLEANUP_INTERVAL", defaultExpiryCleanupInterval, logger)),
		WithRecentResponseTTL(envutil.GetEnvDuration("MODHOST_BROKER_RECENT_RESPONSE_TTL", defaultRecentResponseTTL, logger)),
	}
}

// WithMaxQueueLength sets the per-queue capacity.
func WithMaxQueueLength(n int) ConfigOption {
	return func(c *Config) {
		c.MaxQueueLength = n
	}
}

// WithDefaultRequestTimeout sets the timeout used when a caller does not supply one.
func WithDefaultRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.DefaultRequestTimeout = d
	}
}

// WithExpiryCleanupInterval sets the sweep interval.
func WithExpiryCleanupInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ExpiryCleanupInterval = d
	}
}

// WithRecentResponseTTL sets how long finalized request ids are remembered.
func WithRecentResponseTTL(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RecentResponseTTL = d
	}
}

func (c *Config) validate() error {
	if c.MaxQueueLength <= 0 {
		return fmt.Errorf("MaxQueueLength must be positive, but got %d", c.MaxQueueLength)
	}
	if c.DefaultRequestTimeout <= 0 {
		return fmt.Errorf("DefaultRequestTimeout must be positive, but got %v", c.DefaultRequestTimeout)
	}
	if c.ExpiryCleanupInterval <= 0 {
		return fmt.Errorf("ExpiryCleanupInterval must be positive, but got %v", c.ExpiryCleanupInterval)
	}
	if c.RecentResponseTTL <= 0 {
		return fmt.Errorf("RecentResponseTTL must be positive, but got %v", c.RecentResponseTTL)
	}
	if c.RecentResponseCapacity == 0 {
		return fmt.Errorf("RecentResponseCapacity must be positive")
	}
	return nil
}
