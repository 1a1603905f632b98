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
	"runtime"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// PlatformAll matches every platform.
const PlatformAll = "all"

// OSName maps a GOOS value onto the name used in module configuration.
func OSName(goos string) string {
	if goos == "darwin" {
		return "macos"
	}
	return goos
}

// HostPlatform names the running host the way modules expect, e.g. "linux", "macos-arm64".
func HostPlatform() string {
	if runtime.GOARCH == "arm64" {
		return OSName(runtime.GOOS) + "-arm64"
	}
	return OSName(runtime.GOOS)
}

// CurrentPlatforms returns the names the running host answers to, e.g. {"linux", "linux-arm64"}.
func CurrentPlatforms() sets.Set[string] {
	return platformsFor(runtime.GOOS, runtime.GOARCH)
}

func platformsFor(goos, goarch string) sets.Set[string] {
	os := OSName(goos)
	return sets.New(os, os+"-"+goarch)
}

// IsAvailableOn reports whether the module may run on a host answering to the given platform names. An entry
// prefixed with "!" excludes a platform and wins over any inclusion.
func (m *ModuleConfig) IsAvailableOn(host sets.Set[string]) bool {
	included := false
	for _, p := range m.Platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if excluded, ok := strings.CutPrefix(p, "!"); ok {
			if host.Has(excluded) {
				return false
			}
			continue
		}
		if p == PlatformAll || host.Has(p) {
			included = true
		}
	}
	return included
}

// SupportsServerVersion reports whether serverVersion satisfies the module's MinServerVersion.
func (m *ModuleConfig) SupportsServerVersion(serverVersion string) bool {
	if m.MinServerVersion == "" || serverVersion == "" {
		return true
	}
	return compareVersions(serverVersion, m.MinServerVersion) >= 0
}

// compareVersions compares dotted numeric versions. Missing or non-numeric components count as zero.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
