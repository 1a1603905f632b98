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

package logging

import (
	"context"

	"github.com/go-logr/logr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// atomicLevel is shared between InitSetupLogging and InitLogging so the level chosen from flags
// reaches loggers handed out before flag parsing finished.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitSetupLogging installs the process logger with the default level.
func InitSetupLogging() {
	logger := zap.New(zap.Level(atomicLevel), zap.RawZapOpts(uberzap.AddCaller()))
	ctrl.SetLogger(logger)
}

// InitLogging applies the parsed zap options to the logger installed by InitSetupLogging.
// ctrl.SetLogger only fulfills its delegation once, so the level is changed in place.
func InitLogging(opts *zap.Options) {
	if opts.Level != nil {
		switch lvl := opts.Level.(type) {
		case uberzap.AtomicLevel:
			atomicLevel.SetLevel(lvl.Level())
		case zapcore.Level:
			atomicLevel.SetLevel(lvl)
		}
	}
}

// LevelFromVerbosity converts a "-v" style verbosity into the zap level used by logr.
// See https://pkg.go.dev/sigs.k8s.io/controller-runtime/pkg/log/zap#Options.Level
func LevelFromVerbosity(verbosity int) uberzap.AtomicLevel {
	return uberzap.NewAtomicLevelAt(zapcore.Level(int8(-1 * verbosity)))
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	return zap.New(
		zap.UseDevMode(true),
		zap.Level(LevelFromVerbosity(TRACE)),
		zap.RawZapOpts(uberzap.AddCaller()),
	)
}

// NewTestLoggerIntoContext creates a new Zap logger using the dev mode and inserts it into the given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return log.IntoContext(ctx, NewTestLogger())
}
