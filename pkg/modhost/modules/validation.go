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
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
)

var (
	validMethods        = sets.New("GET", "POST", "PUT", "DELETE", "PATCH")
	validHalfPrecisions = sets.New("", "enable", "disable", "force")
)

// validateModule reports every problem found in m, combined.
func validateModule(m *ModuleConfig) error {
	var errs error
	if m.Queue == "" {
		errs = multierr.Append(errs, fmt.Errorf("module %q has no queue", m.ID))
	}
	if m.Launch.FilePath == "" && m.Launch.Command == "" {
		errs = multierr.Append(errs, fmt.Errorf("module %q needs launch.filePath or launch.command", m.ID))
	}
	if m.Launch.PostStartPauseSecs != nil && *m.Launch.PostStartPauseSecs < 0 {
		errs = multierr.Append(errs, fmt.Errorf("module %q has a negative launch.postStartPauseSecs", m.ID))
	}
	if m.Launch.ShutdownGraceSecs != nil && *m.Launch.ShutdownGraceSecs < 0 {
		errs = multierr.Append(errs, fmt.Errorf("module %q has a negative launch.shutdownGraceSecs", m.ID))
	}
	if m.Launch.Parallelism < 0 {
		errs = multierr.Append(errs, fmt.Errorf("module %q has a negative launch.parallelism", m.ID))
	}
	if !validHalfPrecisions.Has(strings.ToLower(m.GPU.HalfPrecision)) {
		errs = multierr.Append(errs, fmt.Errorf("module %q has unknown gpu.halfPrecision %q", m.ID, m.GPU.HalfPrecision))
	}

	seenRoutes := sets.New[string]()
	for i, r := range m.Routes {
		if r.Path == "" {
			errs = multierr.Append(errs, fmt.Errorf("module %q routes[%d] is missing a path", m.ID, i))
		}
		if r.Command == "" {
			errs = multierr.Append(errs, fmt.Errorf("module %q routes[%d] is missing a command", m.ID, i))
		}
		method := strings.ToUpper(r.Method)
		if !validMethods.Has(method) {
			errs = multierr.Append(errs, fmt.Errorf("module %q routes[%d] has unsupported method %q", m.ID, i, r.Method))
		}
		key := method + " " + strings.ToLower(r.Path)
		if seenRoutes.Has(key) {
			errs = multierr.Append(errs, fmt.Errorf("module %q declares route %s more than once", m.ID, key))
		}
		seenRoutes.Insert(key)
	}
	return errs
}
