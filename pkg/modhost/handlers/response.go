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

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	errutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/error"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.FromContext(r.Context()).Error(err, "Failed to write response body")
	}
}

// writeError answers with the status of err's canonical code. Errors without a code are reported as Unknown.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.CanonicalCode(err)
	msg := err.Error()
	var mhErr errutil.Error
	if errors.As(err, &mhErr) {
		msg = mhErr.Msg
	}
	writeJSON(w, r, errutil.HTTPStatus(code), errorResponse{Success: false, Error: msg, Code: code})
}

// brokerError classifies an error returned by the broker.
func brokerError(err error) errutil.Error {
	code := errutil.Internal
	switch {
	case errors.Is(err, broker.ErrQueueFull):
		code = errutil.QueueFull
	case errors.Is(err, broker.ErrRequestTimeout):
		code = errutil.RequestTimeout
	case errors.Is(err, broker.ErrRequestCanceled):
		code = errutil.RequestCanceled
	case errors.Is(err, broker.ErrDuplicateRequestID):
		code = errutil.DuplicateRequestID
	case broker.IsMalformedResponse(err):
		code = errutil.MalformedResponse
	case errors.Is(err, broker.ErrNilRequest):
		code = errutil.BadRequest
	}
	return errutil.Error{Code: code, Msg: err.Error()}
}
