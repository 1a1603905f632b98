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

package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorders(t *testing.T, maxRows int) map[string]Recorder {
	t.Helper()
	sqlite, err := NewSQLiteRecorder(context.Background(), filepath.Join(t.TempDir(), "history", "events.db"), maxRows)
	require.NoError(t, err, "NewSQLiteRecorder should succeed")
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Recorder{
		"memory": NewMemoryRecorder(maxRows),
		"sqlite": sqlite,
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1_700_000_000_000).UTC()
	for name, rec := range newRecorders(t, 100) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			events := []Event{
				{ModuleID: "A", From: "Enabled", To: "Starting", At: at},
				{ModuleID: "B", From: "Enabled", To: "Starting", At: at},
				{ModuleID: "A", From: "Starting", To: "Started", PID: 4242, At: at.Add(time.Second)},
				{ModuleID: "A", From: "Started", To: "Crashed", PID: 4242, Message: "exit status 1", At: at.Add(2 * time.Second)},
			}
			for _, e := range events {
				require.NoError(t, rec.Record(ctx, e))
			}

			got, err := rec.List(ctx, "A", 0)
			require.NoError(t, err)
			want := []Event{events[3], events[2], events[0]}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Unexpected events (-want +got): %s", diff)
			}

			got, err = rec.List(ctx, "A", 1)
			require.NoError(t, err)
			assert.Equal(t, []Event{events[3]}, got, "limit should keep the newest event")

			got, err = rec.List(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestRecorderTrim(t *testing.T) {
	t.Parallel()

	for name, rec := range newRecorders(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				require.NoError(t, rec.Record(ctx, Event{ModuleID: "A", To: fmt.Sprintf("s%d", i), At: time.Now()}))
			}
			got, err := rec.List(ctx, "A", 0)
			require.NoError(t, err)
			require.Len(t, got, 3, "only the most recent rows are retained")
			assert.Equal(t, "s4", got[0].To)
			assert.Equal(t, "s2", got[2].To)
		})
	}
}

func TestNewSQLiteRecorder_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewSQLiteRecorder(context.Background(), "", 10)
	assert.Error(t, err)
}
