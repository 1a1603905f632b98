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

package version

var (
	// The git hash of the latest commit in the build.
	CommitSHA string

	// The build ref of the release, e.g. a tag name.
	BuildRef string

	// ServerVersion is the orchestrator version compared with each module's minimum server version.
	// Overridden at link time with -ldflags "-X .../version.ServerVersion=<version>".
	ServerVersion = "2.9.5"
)
