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
	"runtime"
	"time"
)

const (
	defaultDotnetPath = "dotnet"
	defaultKillWait   = 5 * time.Second
)

// Config holds the host-wide settings every module launch is built from.
type Config struct {
	// RootPath is the orchestrator's install root, exposed to modules as %ROOT_PATH%.
	RootPath     string
	ModulesPath  string
	RuntimesPath string
	// PythonPath overrides interpreter resolution for python modules.
	PythonPath string
	DotnetPath string
	// ServerVersion is compared with each module's minimum server version.
	ServerVersion string
	// Port is the HTTP port workers poll, passed as CPAI_PORT.
	Port int
	// LogVerbosity is forwarded to workers as CPAI_LOG_VERBOSITY.
	LogVerbosity string
	// Env is passed to every module before its own variables.
	Env map[string]string
	// KillWait bounds how long a force-killed process may take to be reaped.
	KillWait time.Duration
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.DotnetPath == "" {
		out.DotnetPath = defaultDotnetPath
	}
	if out.KillWait <= 0 {
		out.KillWait = defaultKillWait
	}
	return &out
}

func (c *Config) pythonFor(runtimeName string) string {
	if c.PythonPath != "" {
		return c.PythonPath
	}
	if runtime.GOOS == "windows" {
		return "python"
	}
	if runtimeName == "" || runtimeName == "python" {
		return "python3"
	}
	// A versioned runtime such as "python3.9" names its own interpreter.
	return runtimeName
}
