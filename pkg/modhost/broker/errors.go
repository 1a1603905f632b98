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

import (
	"errors"
)

// The messages of these errors are part of the HTTP contract with callers and must not change.
var (
	// ErrQueueFull indicates the target queue already holds MaxQueueLength entries. Returned immediately by Submit.
	ErrQueueFull = errors.New("request queue is full.")

	// ErrRequestTimeout indicates no worker resolved the request before its deadline.
	ErrRequestTimeout = errors.New("The request timed out.")

	// ErrRequestCanceled indicates the caller's context ended before a worker resolved the request.
	ErrRequestCanceled = errors.New("the request was canceled by caller.")

	// ErrDuplicateRequestID indicates a request id was reused while an earlier request with the same id is still
	// pending. Errors returned by Submit wrap it with the offending id.
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// Malformed worker responses. Each completes the pending request with the matching error.
var (
	// ErrNullResponse indicates the worker posted no body at all.
	ErrNullResponse = errors.New("null json returned from backend.")

	// ErrInvalidResponse indicates the worker posted a body that is not valid JSON, or JSON that does not fit the
	// response shape the caller asked for.
	ErrInvalidResponse = errors.New("Invalid JSON response from backend.")

	// ErrNullObject indicates the worker posted the JSON literal null.
	ErrNullObject = errors.New("null object from JSON string.")
)

// ErrNilRequest is returned by Submit when called without an envelope.
var ErrNilRequest = errors.New("request cannot be nil")

// IsMalformedResponse reports whether err is one of the malformed-response errors.
func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrNullResponse) || errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrNullObject)
}
