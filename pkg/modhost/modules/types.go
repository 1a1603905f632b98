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

// Package modules describes the configured module set: what each module serves, how it is launched and where it
// may run.
package modules

// Config is the root of the module configuration file.
type Config struct {
	// Env holds environment variables passed to every module.
	Env map[string]string `json:"env,omitempty"`
	// Modules is keyed by module id.
	Modules map[string]*ModuleConfig `json:"modules"`
}

// ModuleConfig is the static description of one module.
type ModuleConfig struct {
	// ID is filled from the key of Config.Modules.
	ID      string `json:"-"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Path is the module's install directory. Defaults to <modules-path>/<id>.
	Path string `json:"path,omitempty"`
	// Queue is the name of the queue the module drains. Defaults to lower(<id>)_queue.
	Queue string `json:"queue,omitempty"`
	// Platforms lists where the module may run, e.g. "all", "linux", "macos-arm64", "!windows".
	Platforms []string `json:"platforms,omitempty"`
	// MinServerVersion is the oldest orchestrator version the module supports.
	MinServerVersion string `json:"minServerVersion,omitempty"`

	Launch LaunchSettings    `json:"launch"`
	GPU    GPUOptions        `json:"gpu,omitempty"`
	Env    map[string]string `json:"env,omitempty"`
	Routes []RouteConfig     `json:"routes,omitempty"`
}

// LaunchSettings controls how the module's process is started and stopped.
type LaunchSettings struct {
	// AutoStart defaults to true when omitted.
	AutoStart *bool `json:"autoStart,omitempty"`
	// Runtime names the interpreter, e.g. "python3.9", "dotnet", "execute".
	Runtime string `json:"runtime,omitempty"`
	// Command overrides interpreter resolution when set.
	Command string `json:"command,omitempty"`
	// FilePath is the entry point relative to the module path.
	FilePath         string `json:"filePath,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	// Args are appended after the entry point.
	Args []string `json:"args,omitempty"`
	// PostStartPauseSecs lets slow-to-initialize resources settle before the module is considered started.
	PostStartPauseSecs *int `json:"postStartPauseSecs,omitempty"`
	// ShutdownGraceSecs is how long a module may take to honour Quit before it is killed.
	ShutdownGraceSecs *int `json:"shutdownGraceSecs,omitempty"`
	// Parallelism is a hint for the number of concurrent requests the module processes; 0 lets the module decide.
	Parallelism int `json:"parallelism,omitempty"`
}

// GPUOptions are forwarded to the module through its environment.
type GPUOptions struct {
	EnableGPU             *bool  `json:"enableGPU,omitempty"`
	AcceleratorDeviceName string `json:"acceleratorDeviceName,omitempty"`
	// HalfPrecision is one of "enable", "disable" or "force".
	HalfPrecision string `json:"halfPrecision,omitempty"`
}

// RouteConfig maps an HTTP endpoint onto a module command.
type RouteConfig struct {
	Name        string            `json:"name,omitempty"`
	Method      string            `json:"method,omitempty"`
	Path        string            `json:"path"`
	Command     string            `json:"command"`
	Description string            `json:"description,omitempty"`
	Inputs      []ParameterConfig `json:"inputs,omitempty"`
	Outputs     []ParameterConfig `json:"outputs,omitempty"`
}

// ParameterConfig documents one input or output of a route.
type ParameterConfig struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Description  string `json:"description,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}
