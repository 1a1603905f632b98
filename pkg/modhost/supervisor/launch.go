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
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"k8s.io/utils/ptr"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/modules"
)

// Path markers understood in launch settings and environment values.
const (
	MacroRootPath          = "%ROOT_PATH%"
	MacroModulesPath       = "%MODULES_PATH%"
	MacroRuntimesPath      = "%RUNTIMES_PATH%"
	MacroCurrentModulePath = "%CURRENT_MODULE_PATH%"
	MacroModuleID          = "%MODULE_ID%"
	MacroPlatform          = "%PLATFORM%"
	MacroOS                = "%OS%"
)

// launchDescriptor is everything needed to spawn a module's process.
type launchDescriptor struct {
	Executable string
	Args       []string
	WorkingDir string
	// Env holds only the variables added on top of the orchestrator's own environment.
	Env map[string]string
}

// environ renders Env as KEY=VALUE pairs in key order.
func (d *launchDescriptor) environ() []string {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+d.Env[k])
	}
	return out
}

func (c *Config) macroReplacer(m *modules.ModuleConfig) *strings.Replacer {
	return strings.NewReplacer(
		MacroRootPath, c.RootPath,
		MacroModulesPath, c.ModulesPath,
		MacroRuntimesPath, c.RuntimesPath,
		MacroCurrentModulePath, m.Path,
		MacroModuleID, m.ID,
		MacroPlatform, modules.HostPlatform(),
		MacroOS, modules.OSName(runtime.GOOS),
	)
}

// buildLaunchDescriptor resolves the executable, arguments, working directory and environment for m. The
// executable comes from the explicit command if set, else the declared runtime, else the entry point's extension.
// splitCommand splits a launch command into words. Single or double quotes group words containing spaces.
// Backslashes are kept literally so Windows paths survive.
func splitCommand(command string) ([]string, error) {
	var (
		words  []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	for _, c := range command {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				word.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote, inWord = c, true
		case unicode.IsSpace(c):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in launch command %q", quote, command)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

func buildLaunchDescriptor(c *Config, m *modules.ModuleConfig) (*launchDescriptor, error) {
	macros := c.macroReplacer(m)
	launch := m.Launch

	filePath := macros.Replace(launch.FilePath)
	if filePath != "" && !filepath.IsAbs(filePath) {
		filePath = filepath.Join(m.Path, filePath)
	}

	desc := &launchDescriptor{}
	switch {
	case launch.Command != "":
		parts, err := splitCommand(macros.Replace(launch.Command))
		if err != nil {
			return nil, fmt.Errorf("module %s - %w", m.ID, err)
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("module %s has a blank launch command", m.ID)
		}
		desc.Executable = parts[0]
		desc.Args = parts[1:]
		if filePath != "" {
			desc.Args = append(desc.Args, filePath)
		}
	case launch.Runtime != "":
		exe, args, err := c.resolveRuntime(strings.ToLower(launch.Runtime), filePath)
		if err != nil {
			return nil, fmt.Errorf("module %s - %w", m.ID, err)
		}
		desc.Executable, desc.Args = exe, args
	default:
		exe, args, err := c.resolveByExtension(filePath)
		if err != nil {
			return nil, fmt.Errorf("module %s - %w", m.ID, err)
		}
		desc.Executable, desc.Args = exe, args
	}
	for _, arg := range launch.Args {
		desc.Args = append(desc.Args, macros.Replace(arg))
	}

	desc.WorkingDir = macros.Replace(launch.WorkingDirectory)
	switch {
	case desc.WorkingDir == "":
		desc.WorkingDir = m.Path
	case !filepath.IsAbs(desc.WorkingDir):
		desc.WorkingDir = filepath.Join(m.Path, desc.WorkingDir)
	}

	desc.Env = c.moduleEnv(m, macros)
	return desc, nil
}

func (c *Config) resolveRuntime(runtimeName, filePath string) (string, []string, error) {
	switch {
	case strings.HasPrefix(runtimeName, "python"):
		return c.pythonFor(runtimeName), argsFor(filePath), nil
	case runtimeName == "dotnet":
		return c.DotnetPath, argsFor(filePath), nil
	case runtimeName == "execute":
		if filePath == "" {
			return "", nil, fmt.Errorf("runtime %q needs a file path", runtimeName)
		}
		return filePath, nil, nil
	default:
		return runtimeName, argsFor(filePath), nil
	}
}

func (c *Config) resolveByExtension(filePath string) (string, []string, error) {
	if filePath == "" {
		return "", nil, fmt.Errorf("no command, runtime or file path to launch")
	}
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".py":
		return c.pythonFor(""), []string{filePath}, nil
	case ".dll":
		return c.DotnetPath, []string{filePath}, nil
	case ".exe", "":
		return filePath, nil, nil
	default:
		return "", nil, fmt.Errorf("cannot infer how to launch %q files", ext)
	}
}

func argsFor(filePath string) []string {
	if filePath == "" {
		return nil
	}
	return []string{filePath}
}

// moduleEnv merges global, module and computed variables, later sources winning. Values are macro expanded.
func (c *Config) moduleEnv(m *modules.ModuleConfig, macros *strings.Replacer) map[string]string {
	env := map[string]string{}
	for k, v := range c.Env {
		env[k] = macros.Replace(v)
	}
	for k, v := range m.Env {
		env[k] = macros.Replace(v)
	}

	env["CPAI_MODULE_ID"] = m.ID
	env["CPAI_MODULE_NAME"] = m.Name
	env["CPAI_MODULE_PATH"] = m.Path
	env["CPAI_MODULE_QUEUENAME"] = m.Queue
	env["CPAI_MODULE_PARALLELISM"] = strconv.Itoa(m.Launch.Parallelism)
	env["CPAI_MODULE_ENABLE_GPU"] = strconv.FormatBool(m.GPUEnabled())
	env["CPAI_ACCEL_DEVICE_NAME"] = m.GPU.AcceleratorDeviceName
	env["CPAI_HALF_PRECISION"] = m.GPU.HalfPrecision
	env["CPAI_LOG_VERBOSITY"] = c.LogVerbosity
	if c.Port > 0 {
		env["CPAI_PORT"] = strconv.Itoa(c.Port)
	}
	return env
}

func postStartPauseSecs(m *modules.ModuleConfig) int {
	return ptr.Deref(m.Launch.PostStartPauseSecs, modules.DefaultPostStartPauseSecs)
}

func shutdownGraceSecs(m *modules.ModuleConfig) int {
	return ptr.Deref(m.Launch.ShutdownGraceSecs, modules.DefaultShutdownGraceSecs)
}
