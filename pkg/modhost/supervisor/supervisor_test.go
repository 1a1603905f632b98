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

package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"
	testclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modules"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// fakeSender records Quit requests. onSend, if set, runs before Send waits for its context or timeout.
type fakeSender struct {
	mu       sync.Mutex
	requests []*broker.Request
	onSend   func(req *broker.Request)
}

func (f *fakeSender) Send(ctx context.Context, req *broker.Request, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend(req)
	}
	select {
	case <-ctx.Done():
		return nil, broker.ErrRequestCanceled
	case <-time.After(timeout):
		return nil, broker.ErrRequestTimeout
	}
}

func (f *fakeSender) sent() []*broker.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*broker.Request(nil), f.requests...)
}

func newTestSupervisor(t *testing.T, sender QuitSender, opts ...supervisorOption) (*Supervisor, history.Recorder) {
	t.Helper()
	recorder := history.NewMemoryRecorder(100)
	return NewSupervisor(&Config{ServerVersion: "2.9.0"}, sender, recorder, logutil.NewTestLogger(), opts...), recorder
}

func TestSetPreLaunchStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		module    func(m *modules.ModuleConfig)
		launching bool
		want      Status
	}{
		{name: "enabled", launching: true, want: StatusEnabled},
		{name: "launching disabled", launching: false, want: StatusNotStarted},
		{
			name:      "auto start off",
			module:    func(m *modules.ModuleConfig) { m.Launch.AutoStart = ptr.To(false) },
			launching: true,
			want:      StatusNotEnabled,
		},
		{
			name:      "wrong platform",
			module:    func(m *modules.ModuleConfig) { m.Platforms = []string{"windows"} },
			launching: true,
			want:      StatusNotAvailable,
		},
		{
			name:      "excluded platform",
			module:    func(m *modules.ModuleConfig) { m.Platforms = []string{"all", "!linux"} },
			launching: true,
			want:      StatusNotAvailable,
		},
		{
			name:      "server too old",
			module:    func(m *modules.ModuleConfig) { m.MinServerVersion = "3.0" },
			launching: true,
			want:      StatusNotAvailable,
		},
		{
			name: "unavailable wins over disabled",
			module: func(m *modules.ModuleConfig) {
				m.Platforms = []string{"macos"}
				m.Launch.AutoStart = ptr.To(false)
			},
			launching: false,
			want:      StatusNotAvailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, recorder := newTestSupervisor(t, &fakeSender{}, WithPlatforms(sets.New("linux", "linux-amd64")))
			m := testModule("Detect", modules.LaunchSettings{FilePath: "detect.py"})
			if tc.module != nil {
				tc.module(m)
			}
			s.AddModule(m)

			status, ok := s.Status("Detect")
			require.True(t, ok)
			assert.Equal(t, StatusUnknown, status.Status)

			assert.Equal(t, tc.want, s.SetPreLaunchStatus("Detect", tc.launching))
			status, _ = s.Status("Detect")
			assert.Equal(t, tc.want, status.Status)

			events, err := recorder.List(context.Background(), "Detect", 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, string(StatusUnknown), events[0].From)
			assert.Equal(t, string(tc.want), events[0].To)
		})
	}
}

func TestSetEnabledChangesPreLaunchStatus(t *testing.T) {
	t.Parallel()

	s, _ := newTestSupervisor(t, &fakeSender{})
	m := testModule("Detect", modules.LaunchSettings{FilePath: "detect.py", AutoStart: ptr.To(false)})
	s.AddModule(m)

	assert.Equal(t, StatusNotEnabled, s.SetPreLaunchStatus("Detect", true))
	require.True(t, s.SetEnabled("Detect", true))
	assert.Equal(t, StatusEnabled, s.SetPreLaunchStatus("Detect", true))
	assert.False(t, s.SetEnabled("Missing", true))
}

func TestKillProcessOnIdleModule(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, recorder := newTestSupervisor(t, sender)
	s.AddModule(testModule("Idle", modules.LaunchSettings{FilePath: "idle.py"}))
	s.SetPreLaunchStatus("Idle", false)

	assert.True(t, s.KillProcess(context.Background(), "Idle"))
	assert.True(t, s.KillProcess(context.Background(), "NeverConfigured"))

	assert.Empty(t, sender.sent(), "no Quit should be sent without a process")
	status, _ := s.Status("Idle")
	assert.Equal(t, StatusNotStarted, status.Status)
	events, err := recorder.List(context.Background(), "Idle", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the pre-launch transition is recorded")
}

func TestStartProcessRequiresEnabled(t *testing.T) {
	t.Parallel()

	s, _ := newTestSupervisor(t, &fakeSender{})
	s.AddModule(testModule("Detect", modules.LaunchSettings{Command: "/bin/does-not-matter"}))

	assert.False(t, s.StartProcess(context.Background(), "Detect"), "Unknown is not Enabled")
	s.SetPreLaunchStatus("Detect", false)
	assert.False(t, s.StartProcess(context.Background(), "Detect"), "NotStarted is not Enabled")
	assert.False(t, s.StartProcess(context.Background(), "Missing"))

	status, _ := s.Status("Detect")
	assert.Equal(t, StatusNotStarted, status.Status)
}

func TestStartProcessSpawnFailure(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSupervisor(t, &fakeSender{})
	s.AddModule(testModule("Broken", modules.LaunchSettings{Command: "/nonexistent/modhost-test-binary"}))
	s.SetPreLaunchStatus("Broken", true)

	assert.False(t, s.StartProcess(context.Background(), "Broken"))

	status, _ := s.Status("Broken")
	assert.Equal(t, StatusFailedStart, status.Status)
	events, err := recorder.List(context.Background(), "Broken", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "did you run setup?")
}

func TestStartProcessBadLaunchSettings(t *testing.T) {
	t.Parallel()

	s, _ := newTestSupervisor(t, &fakeSender{})
	s.AddModule(testModule("Ruby", modules.LaunchSettings{FilePath: "main.rb"}))
	s.SetPreLaunchStatus("Ruby", true)

	assert.False(t, s.StartProcess(context.Background(), "Ruby"))
	status, _ := s.Status("Ruby")
	assert.Equal(t, StatusFailedStart, status.Status)
}

func TestRestartDisabledModuleStaysDown(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, _ := newTestSupervisor(t, sender)
	s.AddModule(testModule("Off", modules.LaunchSettings{FilePath: "off.py", AutoStart: ptr.To(false)}))
	s.SetPreLaunchStatus("Off", true)

	assert.True(t, s.RestartProcess(context.Background(), "Off"))
	status, _ := s.Status("Off")
	assert.Equal(t, StatusNotEnabled, status.Status)
	assert.Empty(t, sender.sent())
	assert.False(t, s.RestartProcess(context.Background(), "Missing"))
}

func TestRecordSeenAndProcessed(t *testing.T) {
	t.Parallel()

	fakeClock := testclock.NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	s, _ := newTestSupervisor(t, &fakeSender{}, WithClock(fakeClock))
	s.AddModule(testModule("Detect", modules.LaunchSettings{FilePath: "detect.py"}))

	s.RecordSeen("Detect")
	status, _ := s.Status("Detect")
	require.NotNil(t, status.LastSeen)
	assert.Equal(t, fakeClock.Now(), *status.LastSeen)
	assert.Zero(t, status.Processed)

	fakeClock.Step(time.Minute)
	s.RecordProcessed("Detect")
	s.RecordProcessed("Detect")
	s.RecordProcessed("Unknown")
	status, _ = s.Status("Detect")
	assert.Equal(t, int64(2), status.Processed)
	assert.Equal(t, fakeClock.Now(), *status.LastSeen)
}

func TestStatusesSortedByID(t *testing.T) {
	t.Parallel()

	s, _ := newTestSupervisor(t, &fakeSender{})
	for _, id := range []string{"Zeta", "Alpha", "Mid"} {
		s.AddModule(testModule(id, modules.LaunchSettings{FilePath: "x.py"}))
	}
	var ids []string
	for _, st := range s.Statuses() {
		ids = append(ids, st.ModuleID)
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, ids)

	_, ok := s.Status("Nope")
	assert.False(t, ok)
	_, ok = s.Module("Alpha")
	assert.True(t, ok)
}

func TestStatusIsRunning(t *testing.T) {
	t.Parallel()
	running := sets.New(StatusStarting, StatusStarted, StatusStopping)
	for _, st := range allStatuses {
		assert.Equal(t, running.Has(st), st.IsRunning(), "status %s", st)
	}
}
