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
	"fmt"
	"net/http"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/codeproject/CodeProject.AI-Server-sub000/internal/runnable"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/handlers"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/metrics"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modulerunner"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modules"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	runserver "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/server"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/supervisor"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/telemetry"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/profiling"
	"github.com/codeproject/CodeProject.AI-Server-sub000/version"
)

var setupLog = ctrl.Log.WithName("setup")

func NewRunner() *Runner {
	return &Runner{
		executableName: "modhost",
		args:           os.Args[1:],
	}
}

// Runner wires the broker, supervisor, module runner and servers together and runs them until the context ends.
type Runner struct {
	executableName string
	args           []string
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.executableName = exeName
	return r
}

// WithArgs replaces the command-line arguments that are parsed.
func (r *Runner) WithArgs(args []string) *Runner {
	r.args = args
	return r
}

// bindEnvToFlags loads environment variables as "soft" overrides. Explicit flags still win.
func bindEnvToFlags(fs *pflag.FlagSet) {
	// map[ENV_VAR]flagName
	for env, flg := range map[string]string{
		"CPAI_PORT":                "http-port",
		"MODHOST_GRPC_HEALTH_PORT": "grpc-health-port",
		"MODHOST_METRICS_PORT":     "metrics-port",
		"MODHOST_MODULES_CONFIG":   "modules-config",
		"MODHOST_ROOT_PATH":        "root-path",
		"MODHOST_MODULES_PATH":     "modules-path",
		"MODHOST_RUNTIMES_PATH":    "runtimes-path",
		"MODHOST_PYTHON_PATH":      "python-path",
		"MODHOST_LAUNCH_MODULES":   "launch-modules",
		"MODHOST_MAX_QUEUE_LENGTH": "max-queue-length",
		"MODHOST_HISTORY_DB":       "history-db",
		// durations & bools work too; Set expects the *string* form
		"MODHOST_REQUEST_TIMEOUT": "request-timeout",
		"MODHOST_TRACING":         "tracing",
	} {
		if v := os.Getenv(env); v != "" {
			// ignore error; Validate() catches unusable values later
			_ = fs.Set(flg, v)
		}
	}
}

func (r *Runner) Run(ctx context.Context) error {
	logutil.InitSetupLogging()

	opts := runserver.NewOptions()
	fs := pflag.NewFlagSet(r.executableName, pflag.ContinueOnError)
	opts.AddFlags(fs)
	bindEnvToFlags(fs)
	if err := fs.Parse(r.args); err != nil {
		setupLog.Error(err, "Failed to parse flags")
		return err
	}
	if err := opts.Complete(); err != nil {
		setupLog.Error(err, "Failed to complete options")
		return err
	}
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate flags")
		return err
	}
	logutil.InitLogging(&opts.ZapOptions)

	setupLog.Info(r.executableName+" build", "commit-sha", version.CommitSHA, "build-ref", version.BuildRef,
		"server-version", version.ServerVersion)

	// Print all flag values
	flags := make(map[string]any)
	fs.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	if opts.Tracing {
		if err := telemetry.InitTracing(ctx, setupLog); err != nil {
			setupLog.Error(err, "Failed to initialize tracing")
			return err
		}
	}

	// --- Load the module configuration ---
	moduleConfig, err := modules.LoadConfigFile(opts.ModulesConfig, opts.ModulesPath, ctrl.Log.WithName("modules"))
	if err != nil {
		setupLog.Error(err, "Failed to load module configuration", "path", opts.ModulesConfig)
		return err
	}
	setupLog.Info("Loaded module configuration", "path", opts.ModulesConfig, "modules", len(moduleConfig.Modules))

	// --- Setup Broker ---
	brokerConfig, err := broker.NewConfig(append([]broker.ConfigOption{
		broker.WithMaxQueueLength(opts.MaxQueueLength),
		broker.WithDefaultRequestTimeout(opts.RequestTimeout),
	}, broker.ConfigOptionsFromEnv(setupLog)...)...)
	if err != nil {
		setupLog.Error(err, "Failed to create broker config")
		return err
	}
	requestBroker := broker.NewBroker(brokerConfig, ctrl.Log.WithName("broker"))

	// --- Setup History ---
	recorder, closeRecorder, err := newRecorder(ctx, opts)
	if err != nil {
		setupLog.Error(err, "Failed to open lifecycle history", "path", opts.HistoryDB)
		return err
	}
	defer closeRecorder()

	// --- Setup Supervisor and Module Runner ---
	routes := routing.NewTable()
	sup := supervisor.NewSupervisor(&supervisor.Config{
		RootPath:      opts.RootPath,
		ModulesPath:   opts.ModulesPath,
		RuntimesPath:  opts.RuntimesPath,
		PythonPath:    opts.PythonPath,
		ServerVersion: version.ServerVersion,
		Port:          opts.HTTPPort,
		LogVerbosity:  workerLogVerbosity(opts.LogVerbosity),
		Env:           moduleConfig.Env,
	}, requestBroker, recorder, ctrl.Log.WithName("supervisor"))

	moduleRunner := modulerunner.NewRunner(modulerunner.Config{
		LaunchModules:      opts.LaunchModules,
		ShutdownGraceDelay: opts.ShutdownGraceDelay,
	}, moduleConfig, routes, requestBroker, sup, ctrl.Log.WithName("module-runner"))

	apiServer := handlers.NewServer(handlers.Config{
		RequestTimeout: opts.RequestTimeout,
		DequeueTimeout: opts.DequeueTimeout,
	}, routes, requestBroker, sup, moduleRunner, recorder, ctrl.Log.WithName("api"))

	// --- Setup Metrics ---
	metrics.Register()
	metrics.RecordModHostInfo(version.CommitSHA, version.BuildRef)

	servers := []manager.Runnable{
		runnable.HTTPServer("api", &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.HTTPPort),
			Handler: apiServer.Handler(),
		}, ctrl.Log),
		runnable.HTTPServer("metrics", &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.MetricsPort),
			Handler: metricsHandler(opts.EnablePprof),
		}, ctrl.Log),
		newHealthServer(moduleRunner.Ready, opts.GRPCHealthPort, ctrl.Log.WithName("health")),
		runnable.Func(requestBroker.Run),
	}

	// The servers and the broker outlive module shutdown so workers can still collect their Quit command.
	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	for _, srv := range servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	moduleCtx, stopModules := context.WithCancel(ctx)
	defer stopModules()
	stopAfter := context.AfterFunc(gctx, stopModules)
	defer stopAfter()
	g.Go(func() error {
		defer stopServing()
		return moduleRunner.Run(moduleCtx)
	})

	setupLog.Info("modhost starting", "http-port", opts.HTTPPort)
	if err := g.Wait(); err != nil {
		setupLog.Error(err, "modhost terminated with error")
		return err
	}
	setupLog.Info("modhost terminated")
	return nil
}

// newRecorder opens the SQLite history store when a path is configured and an in-memory ring otherwise.
func newRecorder(ctx context.Context, opts *runserver.Options) (history.Recorder, func(), error) {
	if opts.HistoryDB == "" {
		return history.NewMemoryRecorder(opts.HistoryMaxRows), func() {}, nil
	}
	store, err := history.NewSQLiteRecorder(ctx, opts.HistoryDB, opts.HistoryMaxRows)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			setupLog.Error(err, "Failed to close lifecycle history")
		}
	}, nil
}

// metricsHandler serves the controller-runtime registry the modhost metrics are registered with.
func metricsHandler(enablePprof bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	if enablePprof {
		setupLog.Info("Setting pprof handlers")
		profiling.SetupPprofHandlers(mux)
	}
	return mux
}

// newHealthServer returns the gRPC liveness and readiness server as a runnable.
func newHealthServer(ready func() bool, port int, logger logr.Logger) manager.Runnable {
	srv := grpc.NewServer()
	healthPb.RegisterHealthServer(srv, &healthServer{
		logger: logger,
		ready:  ready,
	})
	return runnable.GRPCServer("health", srv, port, ctrl.Log)
}

// workerLogVerbosity maps -v onto the verbosity names workers understand.
func workerLogVerbosity(v int) string {
	switch {
	case v >= logutil.DEBUG:
		return "Loud"
	case v < logutil.DEFAULT:
		return "Quiet"
	default:
		return "Info"
	}
}
