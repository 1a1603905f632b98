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
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	errutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/error"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

// handleModuleRequest resolves /v1/<path> to a module route, queues the request and returns the worker's answer.
func (s *Server) handleModuleRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/")

	route, ok := s.routes.Resolve(path, r.Method)
	if !ok {
		writeError(w, r, errutil.Error{Code: errutil.RouteNotFound, Msg: fmt.Sprintf("No route found for %s %s", r.Method, r.URL.Path)})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	req, err := buildRequest(r, route, path)
	if err != nil {
		writeError(w, r, errutil.Error{Code: errutil.BadRequest, Msg: err.Error()})
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "modhost.module_request", trace.WithAttributes(
		attribute.String("modhost.request_id", req.ID),
		attribute.String("modhost.queue", req.QueueName),
		attribute.String("modhost.command", req.Command),
		attribute.String("modhost.module_id", route.ModuleID),
	))
	defer span.End()

	start := s.clock.Now()
	raw, err := s.broker.Send(ctx, req, s.config.RequestTimeout)
	elapsed := s.clock.Since(start)
	if err != nil {
		mhErr := brokerError(err)
		span.SetAttributes(attribute.String("modhost.outcome", mhErr.Code))
		span.RecordError(err)
		span.SetStatus(codes.Error, mhErr.Msg)
		logger.V(logutil.DEFAULT).Info("Module request failed", "requestID", req.ID, "queue", req.QueueName, "code", mhErr.Code)
		writeError(w, r, mhErr)
		return
	}
	span.SetAttributes(attribute.String("modhost.outcome", "Resolved"))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(decorateResponse(raw, route.ModuleID, elapsed.Milliseconds())); err != nil {
		logger.Error(err, "Failed to write module response")
	}
}

// buildRequest turns the inbound HTTP request into a broker envelope. Form values, uploaded files and any path
// segments following the matched route are carried in the payload.
func buildRequest(r *http.Request, route routing.Route, path string) (*broker.Request, error) {
	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	payload := &broker.RequestPayload{
		Command:  route.Command,
		Queue:    route.QueueName,
		ModuleID: route.ModuleID,
	}

	if len(path) > len(route.Path) {
		if rest := strings.Trim(path[len(route.Path):], "/"); rest != "" {
			payload.URLSegments = strings.Split(rest, "/")
		}
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
			return nil, fmt.Errorf("unable to read multipart form: %w", err)
		}
		files, err := readFiles(r.MultipartForm)
		if err != nil {
			return nil, err
		}
		payload.Files = files
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("unable to read form: %w", err)
	}
	if len(r.Form) > 0 {
		payload.Values = r.Form
	}

	return &broker.Request{
		ID:        id,
		QueueName: route.QueueName,
		Command:   route.Command,
		Payload:   payload,
	}, nil
}

func readFiles(form *multipart.Form) ([]broker.RequestFile, error) {
	if form == nil || len(form.File) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)

	var files []broker.RequestFile
	for _, name := range names {
		for _, fh := range form.File[name] {
			data, err := readFile(fh)
			if err != nil {
				return nil, fmt.Errorf("unable to read uploaded file %s: %w", fh.Filename, err)
			}
			files = append(files, broker.RequestFile{
				Name:        name,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return files, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// decorateResponse adds the serving module and round trip time to a JSON object response. Anything that is not a
// JSON object is returned untouched.
func decorateResponse(raw json.RawMessage, moduleID string, elapsedMs int64) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw
	}
	if _, ok := fields["moduleId"]; !ok && moduleID != "" {
		fields["moduleId"], _ = json.Marshal(moduleID)
	}
	fields["analysisRoundTripMs"], _ = json.Marshal(elapsedMs)
	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}
