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

// Package supervisor owns module processes: it computes each module's status, launches and watches worker
// processes, and stops them by asking politely through the broker before force-killing the process tree.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/metrics"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modules"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// QuitSender delivers the Quit command to a module's queue. *broker.Broker satisfies it.
type QuitSender interface {
	Send(ctx context.Context, req *broker.Request, timeout time.Duration) (json.RawMessage, error)
}

// processRecord is the supervisor's handle on a live process.
type processRecord struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	// exited is closed once the process has been reaped.
	exited chan struct{}
	// stopping is set before a deliberate stop so the exit is not reported as a crash.
	stopping atomic.Bool
}

func (r *processRecord) hasExited() bool {
	select {
	case <-r.exited:
		return true
	default:
		return false
	}
}

type moduleEntry struct {
	id string
	// config and available are replaced holding both opLock and mu.
	config    *modules.ModuleConfig
	available bool

	// opLock serializes lifecycle operations on the module.
	opLock sync.Mutex

	// mu guards the fields below. It is never held across a blocking call.
	mu      sync.Mutex
	enabled bool
	status  ProcessStatus
	proc    *processRecord
}

// Supervisor tracks every configured module and the process running it, if any.
type Supervisor struct {
	config    *Config
	sender    QuitSender
	recorder  history.Recorder
	clock     clock.Clock
	logger    logr.Logger
	platforms sets.Set[string]

	mu      sync.RWMutex
	modules map[string]*moduleEntry
}

type supervisorOption func(*Supervisor)

// WithClock sets the clock used for timestamps, pauses and grace periods.
func WithClock(clk clock.Clock) supervisorOption {
	return func(s *Supervisor) {
		s.clock = clk
	}
}

// WithPlatforms overrides the platform names the host answers to.
func WithPlatforms(platforms sets.Set[string]) supervisorOption {
	return func(s *Supervisor) {
		s.platforms = platforms
	}
}

// NewSupervisor creates a supervisor with no modules. Quit commands go through sender and transitions are recorded
// in recorder.
func NewSupervisor(config *Config, sender QuitSender, recorder history.Recorder, logger logr.Logger, opts ...supervisorOption) *Supervisor {
	s := &Supervisor{
		config:    config.withDefaults(),
		sender:    sender,
		recorder:  recorder,
		clock:     clock.RealClock{},
		logger:    logger.WithName("supervisor"),
		platforms: modules.CurrentPlatforms(),
		modules:   map[string]*moduleEntry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddModule starts tracking m with status Unknown. Adding a module that is already tracked replaces its
// configuration but keeps its state.
func (s *Supervisor) AddModule(m *modules.ModuleConfig) {
	available := m.IsAvailableOn(s.platforms) && m.SupportsServerVersion(s.config.ServerVersion)

	s.mu.Lock()
	e, ok := s.modules[m.ID]
	if !ok {
		s.modules[m.ID] = &moduleEntry{
			id:        m.ID,
			config:    m,
			available: available,
			enabled:   m.AutoStart(),
			status: ProcessStatus{
				ModuleID: m.ID,
				Name:     m.Name,
				Queue:    m.Queue,
				Status:   StatusUnknown,
			},
		}
	}
	s.mu.Unlock()

	if ok {
		e.opLock.Lock()
		e.mu.Lock()
		e.config = m
		e.available = available
		e.mu.Unlock()
		e.opLock.Unlock()
		return
	}
	metrics.SetModuleStatus(m.ID, string(StatusUnknown), allStatusNames)
}

func (s *Supervisor) entry(moduleID string) *moduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[moduleID]
}

// Module returns the configuration of a tracked module.
func (s *Supervisor) Module(moduleID string) (*modules.ModuleConfig, bool) {
	e := s.entry(moduleID)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config, true
}

// Status returns a snapshot of one module's state.
func (s *Supervisor) Status(moduleID string) (ProcessStatus, bool) {
	e := s.entry(moduleID)
	if e == nil {
		return ProcessStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// Statuses returns a snapshot of every module's state ordered by module id.
func (s *Supervisor) Statuses() []ProcessStatus {
	s.mu.RLock()
	entries := make([]*moduleEntry, 0, len(s.modules))
	for _, e := range s.modules {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]ProcessStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.status)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out
}

// RecordSeen notes that a worker of the module polled for work.
func (s *Supervisor) RecordSeen(moduleID string) {
	if e := s.entry(moduleID); e != nil {
		now := s.clock.Now()
		e.mu.Lock()
		e.status.LastSeen = &now
		e.mu.Unlock()
	}
}

// RecordProcessed notes that a worker of the module returned a response.
func (s *Supervisor) RecordProcessed(moduleID string) {
	if e := s.entry(moduleID); e != nil {
		now := s.clock.Now()
		e.mu.Lock()
		e.status.LastSeen = &now
		e.status.Processed++
		e.mu.Unlock()
	}
}

// SetEnabled changes whether the module is meant to run. It does not start or stop anything.
func (s *Supervisor) SetEnabled(moduleID string, enabled bool) bool {
	e := s.entry(moduleID)
	if e == nil {
		return false
	}
	e.opLock.Lock()
	defer e.opLock.Unlock()
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	return true
}

// SetPreLaunchStatus computes the status the module should have before a launch attempt: NotAvailable when the
// host or server version rules it out, NotEnabled when it is switched off, NotStarted when launching is disabled,
// and Enabled otherwise. A module with a live process keeps its status.
func (s *Supervisor) SetPreLaunchStatus(moduleID string, launching bool) Status {
	e := s.entry(moduleID)
	if e == nil {
		return StatusUnknown
	}
	e.opLock.Lock()
	defer e.opLock.Unlock()
	return s.setPreLaunchStatusLocked(e, launching)
}

func (s *Supervisor) setPreLaunchStatusLocked(e *moduleEntry, launching bool) Status {
	e.mu.Lock()
	current, running, enabled := e.status.Status, e.proc != nil, e.enabled
	e.mu.Unlock()
	if running {
		return current
	}

	next := StatusEnabled
	switch {
	case !e.available:
		next = StatusNotAvailable
	case !enabled:
		next = StatusNotEnabled
	case !launching:
		next = StatusNotStarted
	}
	s.setStatus(e, next, 0, "")
	return next
}

// setStatus moves the module to status and records the transition.
func (s *Supervisor) setStatus(e *moduleEntry, status Status, pid int, message string) {
	e.mu.Lock()
	from := e.status.Status
	e.status.Status = status
	e.mu.Unlock()
	s.transitioned(e.id, from, status, pid, message)
}

func (s *Supervisor) transitioned(moduleID string, from, to Status, pid int, message string) {
	metrics.SetModuleStatus(moduleID, string(to), allStatusNames)
	if from == to {
		return
	}
	s.logger.V(logutil.VERBOSE).Info("Module status changed", "module", moduleID, "from", from, "to", to)
	if s.recorder == nil {
		return
	}
	event := history.Event{ModuleID: moduleID, From: string(from), To: string(to), PID: pid, Message: message, At: s.clock.Now()}
	if err := s.recorder.Record(context.Background(), event); err != nil {
		s.logger.Error(err, "Failed to record module status change", "module", moduleID)
	}
}

// StartProcess launches the module's worker. The module must be Enabled. It returns once the post-start pause has
// elapsed, reporting whether the process is running.
func (s *Supervisor) StartProcess(ctx context.Context, moduleID string) bool {
	e := s.entry(moduleID)
	if e == nil {
		s.logger.Info("Cannot start unknown module", "module", moduleID)
		return false
	}
	e.opLock.Lock()
	defer e.opLock.Unlock()
	return s.startLocked(ctx, e)
}

func (s *Supervisor) startLocked(ctx context.Context, e *moduleEntry) bool {
	m := e.config
	logger := s.logger.WithValues("module", m.ID)

	e.mu.Lock()
	status := e.status.Status
	e.mu.Unlock()
	if status != StatusEnabled {
		logger.V(logutil.DEFAULT).Info("Not starting module", "status", status)
		return false
	}

	s.setStatus(e, StatusStarting, 0, "")

	desc, err := buildLaunchDescriptor(s.config, m)
	if err != nil {
		logger.Error(err, "Unable to work out how to launch module")
		s.setStatus(e, StatusFailedStart, 0, err.Error())
		return false
	}

	rec, err := s.spawn(e, desc, logger)
	if err != nil {
		logger.Error(err, "Failed to start module process. Did you run setup?", "executable", desc.Executable, "dir", desc.WorkingDir)
		s.setStatus(e, StatusFailedStart, 0, fmt.Sprintf("did you run setup? %v", err))
		return false
	}
	logger.Info("Started module process", "pid", rec.pid, "executable", desc.Executable)

	pause := time.Duration(postStartPauseSecs(m)) * time.Second
	if pause > 0 {
		select {
		case <-s.clock.After(pause):
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	if e.proc != rec {
		// The process died during the pause and has already been reported.
		e.mu.Unlock()
		return false
	}
	from := e.status.Status
	e.status.Status = StatusStarted
	e.mu.Unlock()
	s.transitioned(m.ID, from, StatusStarted, rec.pid, "")
	return true
}

// spawn starts the process, records it and wires its output into the log.
func (s *Supervisor) spawn(e *moduleEntry, desc *launchDescriptor, logger logr.Logger) (*processRecord, error) {
	cmd := exec.Command(desc.Executable, desc.Args...)
	cmd.Dir = desc.WorkingDir
	cmd.Env = append(os.Environ(), desc.environ()...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &processRecord{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: now,
		exited:    make(chan struct{}),
	}
	e.mu.Lock()
	e.proc = rec
	e.status.PID = rec.pid
	e.status.Started = &now
	e.mu.Unlock()

	lines := make(chan outputLine, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go readOutput(stdout, streamStdout, lines, &readers)
	go readOutput(stderr, streamStderr, lines, &readers)
	go logOutput(logger, lines)
	go s.watch(e, rec, lines, &readers, logger)
	return rec, nil
}

// watch reaps the process once its output is drained. An exit nobody asked for is a crash.
func (s *Supervisor) watch(e *moduleEntry, rec *processRecord, lines chan outputLine, readers *sync.WaitGroup, logger logr.Logger) {
	readers.Wait()
	close(lines)
	err := rec.cmd.Wait()
	close(rec.exited)

	if rec.stopping.Load() {
		logger.V(logutil.VERBOSE).Info("Module process exited", "pid", rec.pid)
		return
	}

	e.mu.Lock()
	if e.proc != rec {
		e.mu.Unlock()
		return
	}
	e.proc = nil
	e.status.PID = 0
	from := e.status.Status
	e.status.Status = StatusCrashed
	e.mu.Unlock()

	message := "process exited"
	if err != nil {
		message = err.Error()
	}
	logger.Error(err, "Module process exited unexpectedly", "pid", rec.pid)
	metrics.RecordModuleCrash(e.id)
	s.transitioned(e.id, from, StatusCrashed, rec.pid, message)
}

// KillProcess stops the module's process. The worker is first sent Quit through its queue and given the module's
// shutdown grace period to exit; a process still alive after that has its whole tree killed. The process record is
// always cleared and failures are only logged, so the result is always true. Cancelling ctx does not cut the grace
// period short.
func (s *Supervisor) KillProcess(ctx context.Context, moduleID string) bool {
	e := s.entry(moduleID)
	if e == nil {
		return true
	}
	e.opLock.Lock()
	defer e.opLock.Unlock()
	return s.killLocked(ctx, e)
}

func (s *Supervisor) killLocked(ctx context.Context, e *moduleEntry) bool {
	m := e.config
	logger := s.logger.WithValues("module", m.ID)

	e.mu.Lock()
	rec := e.proc
	e.mu.Unlock()
	if rec == nil {
		return true
	}
	defer s.clearRecord(e, rec)

	if rec.hasExited() {
		return true
	}
	rec.stopping.Store(true)
	s.setStatus(e, StatusStopping, rec.pid, "")

	grace := time.Duration(shutdownGraceSecs(m)) * time.Second
	ctx = context.WithoutCancel(ctx)
	quitCtx, cancelQuit := context.WithCancel(ctx)
	defer cancelQuit()
	go func() {
		quit := broker.NewQuitRequest(uuid.NewString(), m.Queue, m.ID)
		if _, err := s.sender.Send(quitCtx, quit, grace); err != nil {
			logger.V(logutil.DEBUG).Info("Quit was not acknowledged", "reason", err.Error())
		}
	}()

	select {
	case <-rec.exited:
		logger.V(logutil.DEFAULT).Info("Module exited on request", "pid", rec.pid)
		return true
	case <-s.clock.After(grace):
	}

	logger.Info("Module did not exit in time, killing process tree", "pid", rec.pid, "grace", grace)
	if err := killProcessTree(rec.pid); err != nil {
		logger.Error(err, "Failed to kill module process", "pid", rec.pid)
		return true
	}
	select {
	case <-rec.exited:
	case <-s.clock.After(s.config.KillWait):
		logger.Error(nil, "Module process still not reaped after kill", "pid", rec.pid, "wait", s.config.KillWait)
	}
	return true
}

// clearRecord drops rec and, if the module was still counted as running, marks it Stopped.
func (s *Supervisor) clearRecord(e *moduleEntry, rec *processRecord) {
	e.mu.Lock()
	if e.proc != rec {
		e.mu.Unlock()
		return
	}
	e.proc = nil
	e.status.PID = 0
	from := e.status.Status
	if !from.IsRunning() {
		e.mu.Unlock()
		return
	}
	e.status.Status = StatusStopped
	e.mu.Unlock()
	s.transitioned(e.id, from, StatusStopped, rec.pid, "")
}

// RestartProcess stops the module if it is running, then starts it again unless it is disabled or unavailable,
// in which case it stays stopped and the call still succeeds.
func (s *Supervisor) RestartProcess(ctx context.Context, moduleID string) bool {
	e := s.entry(moduleID)
	if e == nil {
		s.logger.Info("Cannot restart unknown module", "module", moduleID)
		return false
	}
	e.opLock.Lock()
	defer e.opLock.Unlock()

	s.killLocked(ctx, e)

	e.mu.Lock()
	enabled := e.enabled
	e.mu.Unlock()
	if !e.available || !enabled {
		return true
	}

	metrics.RecordModuleRestart(e.id)
	s.setStatus(e, StatusEnabled, 0, "restart")
	return s.startLocked(ctx, e)
}
