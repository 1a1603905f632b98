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

import "time"

// Status is the lifecycle state of a module.
type Status string

const (
	StatusUnknown      Status = "Unknown"
	StatusNotAvailable Status = "NotAvailable"
	StatusNotEnabled   Status = "NotEnabled"
	StatusNotStarted   Status = "NotStarted"
	StatusEnabled      Status = "Enabled"
	StatusStarting     Status = "Starting"
	StatusStarted      Status = "Started"
	StatusStopping     Status = "Stopping"
	StatusStopped      Status = "Stopped"
	StatusFailedStart  Status = "FailedStart"
	StatusCrashed      Status = "Crashed"
)

var allStatuses = []Status{
	StatusUnknown, StatusNotAvailable, StatusNotEnabled, StatusNotStarted, StatusEnabled,
	StatusStarting, StatusStarted, StatusStopping, StatusStopped, StatusFailedStart, StatusCrashed,
}

// allStatusNames feeds the one-hot status gauge.
var allStatusNames = func() []string {
	names := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		names[i] = string(s)
	}
	return names
}()

// IsRunning reports whether a process record exists in this state.
func (s Status) IsRunning() bool {
	return s == StatusStarting || s == StatusStarted || s == StatusStopping
}

// ProcessStatus is a point-in-time snapshot of a module's state.
type ProcessStatus struct {
	ModuleID  string     `json:"moduleId"`
	Name      string     `json:"name"`
	Queue     string     `json:"queue"`
	Status    Status     `json:"status"`
	PID       int        `json:"pid,omitempty"`
	Started   *time.Time `json:"started,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	Processed int64      `json:"processed"`
}
