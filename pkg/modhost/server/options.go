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

package server

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

const (
	DefaultHTTPPort           = 32168
	DefaultMetricsPort        = 9090
	DefaultGrpcHealthPort     = 9003
	DefaultMaxQueueLength     = 1024
	DefaultRequestTimeout     = 2 * time.Minute
	DefaultDequeueTimeout     = 15 * time.Second
	DefaultShutdownGraceDelay = 3 * time.Second
	DefaultHistoryMaxRows     = 10000
	DefaultModulesConfigFile  = "modules.yaml"
	ZapLogLevelFlagName       = "zap-log-level"
)

// Options contains the command-line configuration for the orchestrator.
type Options struct {
	//
	// Serving.
	//
	HTTPPort       int  // Port of the module, worker and admin API.
	GRPCHealthPort int  // The port for gRPC liveness and readiness checks.
	MetricsPort    int  // The metrics port.
	EnablePprof    bool // Enables pprof handlers on the metrics port.
	//
	// Modules.
	//
	ModulesConfig string // Path of the module configuration file.
	RootPath      string // Install root, exposed to modules as %ROOT_PATH%.
	ModulesPath   string // Directory holding module installs.
	RuntimesPath  string // Directory holding shared runtimes.
	PythonPath    string // Interpreter used for python modules. Empty resolves by runtime name.
	LaunchModules bool   // Launch module processes at startup.
	//
	// Broker.
	//
	MaxQueueLength     int
	RequestTimeout     time.Duration
	DequeueTimeout     time.Duration
	ShutdownGraceDelay time.Duration
	//
	// History.
	//
	HistoryDB      string // SQLite file for module lifecycle history. Empty keeps history in memory.
	HistoryMaxRows int
	//
	// Diagnostics.
	//
	Tracing      bool        // Enables OpenTelemetry tracing.
	LogVerbosity int         // Number for the log level verbosity.
	ZapOptions   zap.Options // Zap logging options.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		HTTPPort:           DefaultHTTPPort,
		GRPCHealthPort:     DefaultGrpcHealthPort,
		MetricsPort:        DefaultMetricsPort,
		EnablePprof:        true,
		LaunchModules:      true,
		MaxQueueLength:     DefaultMaxQueueLength,
		RequestTimeout:     DefaultRequestTimeout,
		DequeueTimeout:     DefaultDequeueTimeout,
		ShutdownGraceDelay: DefaultShutdownGraceDelay,
		HistoryMaxRows:     DefaultHistoryMaxRows,
		LogVerbosity:       logging.DEFAULT,
		ZapOptions:         zap.Options{Development: true},
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.IntVar(&opts.HTTPPort, "http-port", opts.HTTPPort,
		"The port serving module requests, the worker queue API and admin endpoints.")
	fs.IntVar(&opts.GRPCHealthPort, "grpc-health-port", opts.GRPCHealthPort,
		"The port used for gRPC liveness and readiness checks.")
	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers. Defaults to true. Set to false to disable pprof handlers.")

	fs.StringVar(&opts.ModulesConfig, "modules-config", opts.ModulesConfig,
		"Path of the module configuration file. Defaults to modules.yaml in the modules path.")
	fs.StringVar(&opts.RootPath, "root-path", opts.RootPath,
		"Install root of the orchestrator. Defaults to the working directory.")
	fs.StringVar(&opts.ModulesPath, "modules-path", opts.ModulesPath,
		"Directory holding module installs. Defaults to <root-path>/modules.")
	fs.StringVar(&opts.RuntimesPath, "runtimes-path", opts.RuntimesPath,
		"Directory holding shared runtimes. Defaults to <root-path>/runtimes.")
	fs.StringVar(&opts.PythonPath, "python-path", opts.PythonPath,
		"Python interpreter for python modules. Empty resolves the interpreter from each module's runtime.")
	fs.BoolVar(&opts.LaunchModules, "launch-modules", opts.LaunchModules,
		"Launch module processes at startup. Set to false when modules are run by hand.")

	fs.IntVar(&opts.MaxQueueLength, "max-queue-length", opts.MaxQueueLength,
		"Maximum number of requests held by one module queue.")
	fs.DurationVar(&opts.RequestTimeout, "request-timeout", opts.RequestTimeout,
		"How long a module request waits for a worker response.")
	fs.DurationVar(&opts.DequeueTimeout, "dequeue-timeout", opts.DequeueTimeout,
		"How long a worker's long-poll waits for a request.")
	fs.DurationVar(&opts.ShutdownGraceDelay, "shutdown-grace-delay", opts.ShutdownGraceDelay,
		"Delay after all modules have been stopped before the process exits.")

	fs.StringVar(&opts.HistoryDB, "history-db", opts.HistoryDB,
		"SQLite file for module lifecycle history. Empty keeps history in memory.")
	fs.IntVar(&opts.HistoryMaxRows, "history-max-rows", opts.HistoryMaxRows,
		"Maximum number of lifecycle events kept.")

	fs.BoolVar(&opts.Tracing, "tracing", opts.Tracing,
		"Enables emitting traces.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	// Derive the zap log level from the -v flag when --zap-log-level is not set explicitly.
	if opts.fs != nil {
		zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
		if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
			// See https://pkg.go.dev/sigs.k8s.io/controller-runtime/pkg/log/zap#Options.Level
			lvl := -1 * (opts.LogVerbosity)
			opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
			zapLogLevelFlag.Changed = true
		}
	}

	if opts.RootPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine the root path: %w", err)
		}
		opts.RootPath = wd
	}
	if opts.ModulesPath == "" {
		opts.ModulesPath = filepath.Join(opts.RootPath, "modules")
	}
	if opts.RuntimesPath == "" {
		opts.RuntimesPath = filepath.Join(opts.RootPath, "runtimes")
	}
	if opts.ModulesConfig == "" {
		opts.ModulesConfig = filepath.Join(opts.ModulesPath, DefaultModulesConfigFile)
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values. Every problem found is reported.
func (opts *Options) Validate() error {
	var errs error

	ports := []struct {
		name string
		port int
	}{
		{"http-port", opts.HTTPPort},
		{"grpc-health-port", opts.GRPCHealthPort},
		{"metrics-port", opts.MetricsPort},
	}
	seen := sets.New[int]()
	for _, pc := range ports {
		if pc.port < 1 || pc.port > 65535 {
			errs = multierr.Append(errs, fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", pc.port, pc.name))
		}
		seen.Insert(pc.port)
	}
	if seen.Len() < len(ports) {
		errs = multierr.Append(errs, fmt.Errorf("port conflict: http-port (%d), grpc-health-port (%d), and metrics-port (%d) must all be different",
			opts.HTTPPort, opts.GRPCHealthPort, opts.MetricsPort))
	}

	if opts.MaxQueueLength <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid value %d for flag %q: must be > 0", opts.MaxQueueLength, "max-queue-length"))
	}
	for _, dc := range []struct {
		name string
		d    time.Duration
	}{
		{"request-timeout", opts.RequestTimeout},
		{"dequeue-timeout", opts.DequeueTimeout},
	} {
		if dc.d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("invalid value %s for flag %q: must be > 0", dc.d, dc.name))
		}
	}
	if opts.ShutdownGraceDelay < 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid value %s for flag %q: must be >= 0", opts.ShutdownGraceDelay, "shutdown-grace-delay"))
	}
	if opts.HistoryMaxRows <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid value %d for flag %q: must be > 0", opts.HistoryMaxRows, "history-max-rows"))
	}
	if opts.ModulesConfig == "" {
		errs = multierr.Append(errs, fmt.Errorf("flag %q is required", "modules-config"))
	}
	if opts.LogVerbosity < 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v"))
	}
	return errs
}
