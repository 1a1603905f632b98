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
	"context"
	"fmt"
	"net/http"
	"strconv"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/supervisor"
	errutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/error"
)

var adminActions = sets.New("start", "stop", "restart")

type readyResponse struct {
	Success bool `json:"success"`
	Ready   bool `json:"ready"`
}

type statusesResponse struct {
	Success  bool                       `json:"success"`
	Statuses []supervisor.ProcessStatus `json:"statuses"`
}

type routesResponse struct {
	Success bool            `json:"success"`
	Routes  []routing.Route `json:"routes"`
}

type queueInfo struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

type queuesResponse struct {
	Success bool        `json:"success"`
	Queues  []queueInfo `json:"queues"`
}

type adminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type historyResponse struct {
	Success bool            `json:"success"`
	History []history.Event `json:"history"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.admin.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, readyResponse{Success: ready, Ready: ready})
}

func (s *Server) handleModuleStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, statusesResponse{Success: true, Statuses: s.modules.Statuses()})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, routesResponse{Success: true, Routes: s.routes.Routes()})
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	names := s.broker.QueueNames()
	queues := make([]queueInfo, 0, len(names))
	for _, name := range names {
		queues = append(queues, queueInfo{Name: name, Length: s.broker.Len(name)})
	}
	writeJSON(w, r, http.StatusOK, queuesResponse{Success: true, Queues: queues})
}

func (s *Server) handleModuleAdmin(w http.ResponseWriter, r *http.Request) {
	action, moduleID := r.PathValue("action"), r.PathValue("id")
	if !adminActions.Has(action) {
		writeError(w, r, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("unknown module action %q", action)})
		return
	}
	if !s.admin.HasModule(moduleID) {
		writeError(w, r, errutil.Error{Code: errutil.ModuleNotFound, Msg: fmt.Sprintf("Module %s is not configured", moduleID)})
		return
	}

	// The operation runs to completion even if the caller disconnects.
	ctx := context.WithoutCancel(r.Context())
	var ok bool
	var message string
	switch action {
	case "start":
		ok, message = s.admin.Start(ctx, moduleID)
	case "stop":
		ok, message = s.admin.Stop(ctx, moduleID)
	case "restart":
		ok, message = s.admin.Restart(ctx, moduleID)
	}
	writeJSON(w, r, http.StatusOK, adminResponse{Success: ok, Message: message})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, errutil.Error{Code: errutil.BadRequest, Msg: fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}

	events := []history.Event{}
	if s.history != nil {
		listed, err := s.history.List(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			writeError(w, r, errutil.Error{Code: errutil.Internal, Msg: err.Error()})
			return
		}
		if listed != nil {
			events = listed
		}
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Success: true, History: events})
}
