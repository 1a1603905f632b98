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
	"bytes"
	"context"
	"io"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	errutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/error"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

type successResponse struct {
	Success bool `json:"success"`
}

// handleDequeue is the worker long-poll. It answers with the next request on the queue, or null when none arrived
// within the dequeue timeout.
func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	if moduleID := r.URL.Query().Get("moduleId"); moduleID != "" {
		s.modules.RecordSeen(moduleID)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.DequeueTimeout)
	defer cancel()
	req := s.broker.Dequeue(ctx, queue)
	if req != nil {
		log.FromContext(r.Context()).V(logutil.TRACE).Info("Handed request to worker", "requestID", req.ID, "queue", queue)
	}
	writeJSON(w, r, http.StatusOK, req)
}

// handleResponse accepts a worker's answer to a request it dequeued.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		writeError(w, r, errutil.Error{Code: errutil.BadRequest, Msg: "unable to read response body: " + err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = nil
	}

	s.broker.Resolve(requestID, body)
	if moduleID := r.URL.Query().Get("moduleId"); moduleID != "" {
		s.modules.RecordProcessed(moduleID)
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
