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
	"os"
	"sort"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// LoadConfig parses a module configuration document (YAML or JSON), applies defaults and drops invalid modules.
// Dropped modules are logged with every problem found; the remaining modules are returned. An error is returned
// only when the document itself cannot be parsed.
func LoadConfig(configBytes []byte, modulesPath string, logger logr.Logger) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(configBytes, cfg); err != nil {
		return nil, fmt.Errorf("the module configuration is invalid - %w", err)
	}
	if cfg.Modules == nil {
		cfg.Modules = map[string]*ModuleConfig{}
	}

	setDefaults(cfg, modulesPath)

	for id, m := range cfg.Modules {
		if m == nil {
			logger.Info("Skipping module with an empty configuration", "module", id)
			delete(cfg.Modules, id)
			continue
		}
		if err := validateModule(m); err != nil {
			logger.Error(err, "Skipping invalid module", "module", id)
			delete(cfg.Modules, id)
		}
	}

	logger.V(logutil.VERBOSE).Info("Loaded module configuration", "modules", len(cfg.Modules))
	return cfg, nil
}

// LoadConfigFile reads and parses the module configuration at path.
func LoadConfigFile(path, modulesPath string, logger logr.Logger) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load module configuration from %s - %w", path, err)
	}
	return LoadConfig(configBytes, modulesPath, logger)
}

// Sorted returns the modules ordered by id, the order in which they are started.
func (c *Config) Sorted() []*ModuleConfig {
	out := make([]*ModuleConfig, 0, len(c.Modules))
	for _, m := range c.Modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Module returns the module with the given id.
func (c *Config) Module(id string) (*ModuleConfig, bool) {
	m, ok := c.Modules[id]
	return m, ok
}
