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

package broker

// QuitCommand is the command a worker must treat as an instruction to exit when the payload carries its own
// module id.
const QuitCommand = "Quit"

// Request is the unit of work carried through a queue. It is immutable once submitted; the same pointer handed to
// Submit is the one returned by Dequeue.
type Request struct {
	// ID correlates the worker's response with the waiting caller. It must be unique among outstanding requests.
	ID        string          `json:"reqid"`
	QueueName string          `json:"queue"`
	Command   string          `json:"command"`
	Payload   *RequestPayload `json:"payload,omitempty"`
}

// RequestPayload is the data a worker needs to execute a command.
type RequestPayload struct {
	Command  string `json:"command"`
	Queue    string `json:"queue"`
	ModuleID string `json:"moduleId,omitempty"`
	// URLSegments are the path segments following the matched route, e.g. a custom model name.
	URLSegments []string            `json:"urlSegments,omitempty"`
	Values      map[string][]string `json:"values,omitempty"`
	Files       []RequestFile       `json:"files,omitempty"`
}

// RequestFile is an uploaded file forwarded to the worker. Data is base64 encoded on the wire.
type RequestFile struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// NewQuitRequest builds the shutdown request sent to moduleID's queue.
func NewQuitRequest(id, queueName, moduleID string) *Request {
	return &Request{
		ID:        id,
		QueueName: queueName,
		Command:   QuitCommand,
		Payload: &RequestPayload{
			Command:  QuitCommand,
			Queue:    queueName,
			ModuleID: moduleID,
		},
	}
}
