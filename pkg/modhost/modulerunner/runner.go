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

// Package modulerunner brings the configured module set up at startup and down at shutdown, and carries out the
// per-module admin operations.
package modulerunner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modules"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/supervisor"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// ProcessSupervisor is the part of *supervisor.Supervisor the runner drives.
type ProcessSupervisor interface {
	AddModule(m *modules.ModuleConfig)
	SetPreLaunchStatus(moduleID string, launching bool) supervisor.Status
	SetEnabled(moduleID string, enabled bool) bool
	StartProcess(ctx context.Context, moduleID string) bool
	KillProcess(ctx context.Context, moduleID string) bool
	RestartProcess(ctx context.Context, moduleID string) bool
	Status(moduleID string) (supervisor.ProcessStatus, bool)
	Statuses() []supervisor.ProcessStatus
}

// QueueRegistrar creates module queues ahead of the first request. *broker.Broker satisfies it.
type QueueRegistrar interface {
	EnsureQueue(name string)
}

// Config controls startup and shutdown.
type Config struct {
	// LaunchModules is false when modules are run by hand, e.g. under a debugger.
	LaunchModules bool
	// ShutdownGraceDelay is waited after every module has been killed.
	ShutdownGraceDelay time.Duration
}

// Runner coordinates the route table, broker queues and supervisor for the configured modules.
type Runner struct {
	config     Config
	modules    *modules.Config
	routes     routing.Table
	queues     QueueRegistrar
	supervisor ProcessSupervisor
	clock      clock.Clock
	logger     logr.Logger

	ready atomic.Bool
}

type runnerOption func(*Runner)

// WithClock sets the clock used for the shutdown grace delay.
func WithClock(clk clock.Clock) runnerOption {
	return func(r *Runner) {
		r.clock = clk
	}
}

// NewRunner creates a runner for the modules in moduleConfig.
func NewRunner(config Config, moduleConfig *modules.Config, routes routing.Table, queues QueueRegistrar,
	sup ProcessSupervisor, logger logr.Logger, opts ...runnerOption) *Runner {
	r := &Runner{
		config:     config,
		modules:    moduleConfig,
		routes:     routes,
		queues:     queues,
		supervisor: sup,
		clock:      clock.RealClock{},
		logger:     logger.WithName("module-runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ready reports whether startup has finished.
func (r *Runner) Ready() bool {
	return r.ready.Load()
}

// Run performs Startup, waits for ctx to end and then performs Shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Startup(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	<-ctx.Done()
	return r.Shutdown(context.WithoutCancel(ctx))
}

// Startup registers every module's routes and queue and computes its pre-launch status. Unless launching is
// disabled, modules are then started one at a time. A module that fails to start is logged and skipped.
func (r *Runner) Startup(ctx context.Context) error {
	ordered := r.modules.Sorted()
	for _, m := range ordered {
		r.register(m)
		status := r.supervisor.SetPreLaunchStatus(m.ID, r.config.LaunchModules)
		r.logger.V(logutil.DEFAULT).Info("Module registered", "module", m.ID, "queue", m.Queue, "routes", len(m.Routes), "status", status)
	}

	if r.config.LaunchModules {
		for _, m := range ordered {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("startup interrupted before module %s - %w", m.ID, err)
			}
			status, _ := r.supervisor.Status(m.ID)
			if status.Status != supervisor.StatusEnabled {
				continue
			}
			if !r.supervisor.StartProcess(ctx, m.ID) {
				r.logger.Info("Module failed to start", "module", m.ID)
			}
		}
	} else {
		r.logger.Info("Module launching is disabled, waiting for modules to be started externally")
	}

	r.ready.Store(true)
	r.logger.Info("Module startup complete", "modules", len(ordered))
	return nil
}

// Shutdown kills every running module concurrently, then waits the shutdown grace delay.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.ready.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	for _, status := range r.supervisor.Statuses() {
		if !status.Status.IsRunning() {
			continue
		}
		moduleID := status.ModuleID
		g.Go(func() error {
			r.supervisor.KillProcess(gctx, moduleID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if r.config.ShutdownGraceDelay > 0 {
		select {
		case <-r.clock.After(r.config.ShutdownGraceDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.logger.Info("Module shutdown complete")
	return nil
}

// register makes the module's routes resolvable and its queue exist. Routes registered for the module earlier
// are dropped first, so a path removed from its configuration stops resolving.
func (r *Runner) register(m *modules.ModuleConfig) {
	r.supervisor.AddModule(m)
	if n := r.routes.UnregisterModule(m.ID); n > 0 {
		r.logger.V(logutil.DEBUG).Info("Dropped previous routes", "module", m.ID, "routes", n)
	}
	for _, route := range m.Routes {
		r.routes.Register(route.Method, route.Path, m.Queue, route.Command, m.ID)
	}
	r.queues.EnsureQueue(m.Queue)
}

// HasModule reports whether moduleID is part of the module configuration.
func (r *Runner) HasModule(moduleID string) bool {
	_, ok := r.modules.Module(moduleID)
	return ok
}

// Start enables a module and launches it.
func (r *Runner) Start(ctx context.Context, moduleID string) (bool, string) {
	m, ok := r.modules.Module(moduleID)
	if !ok {
		return false, fmt.Sprintf("Module %s is not configured", moduleID)
	}
	if status, _ := r.supervisor.Status(moduleID); status.Status.IsRunning() {
		return true, fmt.Sprintf("Module %s is already running", moduleID)
	}

	r.supervisor.SetEnabled(moduleID, true)
	r.register(m)
	if status := r.supervisor.SetPreLaunchStatus(moduleID, true); status != supervisor.StatusEnabled {
		return false, fmt.Sprintf("Module %s cannot be started: %s", moduleID, status)
	}
	if !r.supervisor.StartProcess(ctx, moduleID) {
		return false, fmt.Sprintf("Module %s failed to start", moduleID)
	}
	return true, fmt.Sprintf("Module %s started", moduleID)
}

// Stop disables a module and kills its process.
func (r *Runner) Stop(ctx context.Context, moduleID string) (bool, string) {
	if _, ok := r.modules.Module(moduleID); !ok {
		return false, fmt.Sprintf("Module %s is not configured", moduleID)
	}
	r.supervisor.SetEnabled(moduleID, false)
	r.supervisor.KillProcess(ctx, moduleID)
	return true, fmt.Sprintf("Module %s stopped", moduleID)
}

// Restart stops a module and starts it again if it is enabled and available.
func (r *Runner) Restart(ctx context.Context, moduleID string) (bool, string) {
	m, ok := r.modules.Module(moduleID)
	if !ok {
		return false, fmt.Sprintf("Module %s is not configured", moduleID)
	}
	r.register(m)
	if !r.supervisor.RestartProcess(ctx, moduleID) {
		return false, fmt.Sprintf("Module %s failed to restart", moduleID)
	}
	status, _ := r.supervisor.Status(moduleID)
	return true, fmt.Sprintf("Module %s restarted, status %s", moduleID, status.Status)
}
