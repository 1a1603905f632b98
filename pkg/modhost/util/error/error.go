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

package error

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error struct for errors returned to HTTP callers of the orchestrator.
type Error struct {
	Code string
	Msg  string
}

const (
	Unknown            = "Unknown"
	BadRequest         = "BadRequest"
	Internal           = "Internal"
	RouteNotFound      = "RouteNotFound"
	ModuleNotFound     = "ModuleNotFound"
	QueueFull          = "QueueFull"
	RequestTimeout     = "RequestTimeout"
	RequestCanceled    = "RequestCanceled"
	DuplicateRequestID = "DuplicateRequestId"
	MalformedResponse  = "MalformedResponse"
)

// StatusClientClosedRequest is the non-standard status used when the caller went away before a response was
// produced.
const StatusClientClosedRequest = 499

// Error returns a string version of the error.
func (e Error) Error() string {
	return fmt.Sprintf("modhost: %s - %s", e.Code, e.Msg)
}

// CanonicalCode returns the error's code, looking through wrapped errors.
func CanonicalCode(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// HTTPStatus maps an error code onto the HTTP status returned to callers.
func HTTPStatus(code string) int {
	switch code {
	case BadRequest:
		return http.StatusBadRequest
	case RouteNotFound, ModuleNotFound:
		return http.StatusNotFound
	case QueueFull:
		return http.StatusTooManyRequests
	case RequestTimeout:
		return http.StatusGatewayTimeout
	case RequestCanceled:
		return StatusClientClosedRequest
	case DuplicateRequestID:
		return http.StatusConflict
	case MalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
