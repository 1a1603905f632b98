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

package modules

import (
	"path/filepath"
	"strings"

	"k8s.io/utils/ptr"
)

const (
	// DefaultRouteMethod is used for routes that do not name a method.
	DefaultRouteMethod = "POST"
	// DefaultPostStartPauseSecs is used when a module does not set launch.postStartPauseSecs.
	DefaultPostStartPauseSecs = 1
	// DefaultShutdownGraceSecs is used when a module does not set launch.shutdownGraceSecs.
	DefaultShutdownGraceSecs = 3
)

// setDefaults fills in everything a module may omit. modulesPath is the directory holding module installs.
func setDefaults(cfg *Config, modulesPath string) {
	for id, m := range cfg.Modules {
		if m == nil {
			continue
		}
		m.ID = id
		if m.Name == "" {
			m.Name = id
		}
		if m.Path == "" && modulesPath != "" {
			m.Path = filepath.Join(modulesPath, id)
		}
		if m.Queue == "" {
			m.Queue = strings.ToLower(id) + "_queue"
		}
		if len(m.Platforms) == 0 {
			m.Platforms = []string{PlatformAll}
		}
		if m.Launch.AutoStart == nil {
			m.Launch.AutoStart = ptr.To(true)
		}
		if m.Launch.PostStartPauseSecs == nil {
			m.Launch.PostStartPauseSecs = ptr.To(DefaultPostStartPauseSecs)
		}
		if m.Launch.ShutdownGraceSecs == nil {
			m.Launch.ShutdownGraceSecs = ptr.To(DefaultShutdownGraceSecs)
		}
		for i := range m.Routes {
			if m.Routes[i].Method == "" {
				m.Routes[i].Method = DefaultRouteMethod
			}
		}
	}
}

// AutoStart reports whether the module should be launched when the orchestrator starts.
func (m *ModuleConfig) AutoStart() bool {
	return ptr.Deref(m.Launch.AutoStart, true)
}

// GPUEnabled reports whether the module is allowed to use a GPU.
func (m *ModuleConfig) GPUEnabled() bool {
	return ptr.Deref(m.GPU.EnableGPU, true)
}
