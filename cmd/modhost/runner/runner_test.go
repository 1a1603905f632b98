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

package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	runserver "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/server"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

func TestBindEnvToFlags(t *testing.T) {
	t.Setenv("CPAI_PORT", "5000")
	t.Setenv("MODHOST_LAUNCH_MODULES", "false")
	t.Setenv("MODHOST_REQUEST_TIMEOUT", "45s")
	t.Setenv("MODHOST_HISTORY_DB", "/tmp/history.db")

	opts := runserver.NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	bindEnvToFlags(fs)
	require.NoError(t, fs.Parse([]string{"--history-db", "/var/lib/modhost/history.db"}))

	assert.Equal(t, 5000, opts.HTTPPort)
	assert.False(t, opts.LaunchModules)
	assert.Equal(t, "45s", opts.RequestTimeout.String())
	assert.Equal(t, "/var/lib/modhost/history.db", opts.HistoryDB, "explicit flags win over the environment")
}

func TestWorkerLogVerbosity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    int
		want string
	}{
		{v: 0, want: "Quiet"},
		{v: logutil.DEFAULT, want: "Info"},
		{v: logutil.VERBOSE, want: "Info"},
		{v: logutil.DEBUG, want: "Loud"},
		{v: logutil.TRACE, want: "Loud"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, workerLogVerbosity(tt.v), "verbosity %d", tt.v)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		enablePprof bool
		path        string
		wantCode    int
	}{
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK},
		{name: "pprof disabled", path: "/debug/pprof/heap", wantCode: http.StatusNotFound},
		{name: "pprof enabled", enablePprof: true, path: "/debug/pprof/heap", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			metricsHandler(tt.enablePprof).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestNewRecorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		opts := runserver.NewOptions()
		recorder, closeFn, err := newRecorder(ctx, opts)
		require.NoError(t, err)
		defer closeFn()
		_, isSQLite := recorder.(*history.SQLiteRecorder)
		assert.False(t, isSQLite)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		opts := runserver.NewOptions()
		opts.HistoryDB = filepath.Join(t.TempDir(), "history.db")
		recorder, closeFn, err := newRecorder(ctx, opts)
		require.NoError(t, err)
		defer closeFn()
		_, isSQLite := recorder.(*history.SQLiteRecorder)
		assert.True(t, isSQLite)
	})
}

func TestRunFailsBeforeServing(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"--no-such-flag"}},
		{name: "invalid port", args: []string{"--http-port", "0"}},
		{name: "port conflict", args: []string{"--http-port", "9090"}},
		{name: "missing module config", args: []string{"--modules-config", filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner().WithExecutableName("modhost-test").WithArgs(tt.args)
			assert.Error(t, r.Run(context.Background()))
		})
	}
}
