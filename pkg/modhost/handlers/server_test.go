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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/broker"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/history"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/routing"
	"github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/supervisor"
	errutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/error"
	logutil "github.com/codeproject/CodeProject.AI-Server-sub000/pkg/modhost/util/logging"
)

const (
	detectQueue = "detect_queue"
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

type fakeReporter struct {
	mu        sync.Mutex
	seen      []string
	processed []string
	statuses  []supervisor.ProcessStatus
}

func (f *fakeReporter) RecordSeen(moduleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, moduleID)
}

func (f *fakeReporter) RecordProcessed(moduleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, moduleID)
}

func (f *fakeReporter) Statuses() []supervisor.ProcessStatus {
	return f.statuses
}

func (f *fakeReporter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen), len(f.processed)
}

type fakeAdmin struct {
	mu    sync.Mutex
	ready bool
	calls []string
}

func (f *fakeAdmin) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeAdmin) op(name string) func(context.Context, string) (bool, string) {
	return func(_ context.Context, moduleID string) (bool, string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, name+":"+moduleID)
		if moduleID == "missing" {
			return false, fmt.Sprintf("Module %s is not configured", moduleID)
		}
		return true, fmt.Sprintf("Module %s %s", moduleID, name)
	}
}

func (f *fakeAdmin) HasModule(moduleID string) bool { return moduleID != "missing" }

func (f *fakeAdmin) Start(ctx context.Context, id string) (bool, string)   { return f.op("start")(ctx, id) }
func (f *fakeAdmin) Stop(ctx context.Context, id string) (bool, string)    { return f.op("stop")(ctx, id) }
func (f *fakeAdmin) Restart(ctx context.Context, id string) (bool, string) { return f.op("restart")(ctx, id) }

type testEnv struct {
	server   *httptest.Server
	broker   *broker.Broker
	routes   routing.Table
	reporter *fakeReporter
	admin    *fakeAdmin
	history  history.Recorder
	spans    *tracetest.SpanRecorder
}

func newTestEnv(t *testing.T, config Config) *testEnv {
	t.Helper()
	brokerConfig, err := broker.NewConfig(broker.WithMaxQueueLength(4))
	require.NoError(t, err)
	env := &testEnv{
		broker:   broker.NewBroker(brokerConfig, logutil.NewTestLogger()),
		routes:   routing.NewTable(),
		reporter: &fakeReporter{},
		admin:    &fakeAdmin{},
		history:  history.NewMemoryRecorder(10),
		spans:    tracetest.NewSpanRecorder(),
	}
	env.routes.Register("POST", "vision/detection", detectQueue, "detect", "detect")
	env.routes.Register("POST", "vision/custom", "custom_queue", "custom", "custom")
	env.broker.EnsureQueue(detectQueue)

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(env.spans))
	s := NewServer(config, env.routes, env.broker, env.reporter, env.admin, env.history, logutil.NewTestLogger(),
		WithTracer(provider.Tracer("test")))
	env.server = httptest.NewServer(s.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) url(path string) string {
	return e.server.URL + path
}

// runWorker polls queue once over HTTP and answers with respond's body.
func (e *testEnv) runWorker(t *testing.T, queue string, respond func(req *broker.Request) string) <-chan *broker.Request {
	t.Helper()
	got := make(chan *broker.Request, 1)
	go func() {
		defer close(got)
		for {
			resp, err := http.Get(e.url("/v1/queue/" + queue + "?moduleId=detect"))
			if err != nil {
				return
			}
			var req *broker.Request
			err = json.NewDecoder(resp.Body).Decode(&req)
			resp.Body.Close()
			if err != nil {
				return
			}
			if req == nil {
				continue
			}
			got <- req
			answer, err := http.Post(e.url("/v1/queue/"+req.ID+"?moduleId=detect"), "application/json", strings.NewReader(respond(req)))
			if err == nil {
				answer.Body.Close()
			}
			return
		}
	}()
	return got
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestModuleRequestRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{RequestTimeout: waitFor, DequeueTimeout: time.Second})
	worker := env.runWorker(t, detectQueue, func(*broker.Request) string { return `{"success":true,"label":"Bob"}` })

	form := url.Values{"min_confidence": {"0.4"}}
	httpReq, err := http.NewRequest(http.MethodPost, env.url("/v1/vision/detection"), strings.NewReader(form.Encode()))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set(requestIDHeader, "req-1")

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Bob", body["label"])
	assert.Equal(t, "detect", body["moduleId"])
	assert.Contains(t, body, "analysisRoundTripMs")

	req := <-worker
	require.NotNil(t, req)
	want := &broker.Request{
		ID:        "req-1",
		QueueName: detectQueue,
		Command:   "detect",
		Payload: &broker.RequestPayload{
			Command:  "detect",
			Queue:    detectQueue,
			ModuleID: "detect",
			Values:   map[string][]string{"min_confidence": {"0.4"}},
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}

	require.Eventually(t, func() bool {
		seen, processed := env.reporter.counts()
		return seen >= 1 && processed == 1
	}, waitFor, tick)

	require.Eventually(t, func() bool { return len(env.spans.Ended()) == 1 }, waitFor, tick)
	spans := env.spans.Ended()
	assert.Equal(t, "modhost.module_request", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("modhost.queue", detectQueue))
	assert.Contains(t, spans[0].Attributes(), attribute.String("modhost.outcome", "Resolved"))
}

func TestModuleRequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		respond    string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "route not found",
			path:       "/v1/vision/unknown",
			wantStatus: http.StatusNotFound,
			wantCode:   errutil.RouteNotFound,
			wantError:  "No route found for POST /v1/vision/unknown",
		},
		{
			name:       "timeout",
			path:       "/v1/vision/custom",
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   errutil.RequestTimeout,
			wantError:  "The request timed out.",
		},
		{
			name:       "invalid json",
			path:       "/v1/vision/detection",
			respond:    "This is not JSON",
			wantStatus: http.StatusBadGateway,
			wantCode:   errutil.MalformedResponse,
			wantError:  "Invalid JSON response from backend.",
		},
		{
			name:       "json null",
			path:       "/v1/vision/detection",
			respond:    "null",
			wantStatus: http.StatusBadGateway,
			wantCode:   errutil.MalformedResponse,
			wantError:  "null object from JSON string.",
		},
		{
			name:       "empty body",
			path:       "/v1/vision/detection",
			respond:    "   ",
			wantStatus: http.StatusBadGateway,
			wantCode:   errutil.MalformedResponse,
			wantError:  "null json returned from backend.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			timeout := waitFor
			if tc.respond == "" {
				timeout = 200 * time.Millisecond
			}
			env := newTestEnv(t, Config{RequestTimeout: timeout, DequeueTimeout: time.Second})
			if tc.respond != "" {
				env.runWorker(t, detectQueue, func(*broker.Request) string { return tc.respond })
			}

			resp, err := http.Post(env.url(tc.path), "application/json", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			body := decodeBody[errorResponse](t, resp)
			assert.Equal(t, errorResponse{Success: false, Error: tc.wantError, Code: tc.wantCode}, body)
		})
	}
}

func TestModuleRequestSpanRecordsFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{RequestTimeout: 50 * time.Millisecond})
	resp, err := http.Post(env.url("/v1/vision/custom"), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool { return len(env.spans.Ended()) == 1 }, waitFor, tick)
	span := env.spans.Ended()[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "The request timed out.", span.Status().Description)
	assert.Contains(t, span.Attributes(), attribute.String("modhost.outcome", errutil.RequestTimeout))
}

func TestDuplicateRequestID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{RequestTimeout: time.Second})
	post := func() (*http.Response, error) {
		req, err := http.NewRequest(http.MethodPost, env.url("/v1/vision/detection"), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(requestIDHeader, "dup")
		return http.DefaultClient.Do(req)
	}

	first := make(chan *http.Response, 1)
	go func() {
		resp, _ := post()
		first <- resp
	}()
	require.Eventually(t, func() bool { return env.broker.Len(detectQueue) == 1 }, waitFor, tick)

	resp, err := post()
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	assert.True(t, strings.HasPrefix(body.Error, "Unable to add pending response id dup"), body.Error)
	assert.Equal(t, errutil.DuplicateRequestID, body.Code)

	firstResp := <-first
	require.NotNil(t, firstResp)
	assert.Equal(t, http.StatusGatewayTimeout, firstResp.StatusCode)
	firstResp.Body.Close()
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{RequestTimeout: time.Second})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp, err := http.Post(env.url("/v1/vision/detection"), "application/json", nil); err == nil {
				resp.Body.Close()
			}
		}()
	}
	require.Eventually(t, func() bool { return env.broker.Len(detectQueue) == 4 }, waitFor, tick)

	resp, err := http.Post(env.url("/v1/vision/detection"), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "request queue is full.", decodeBody[errorResponse](t, resp).Error)
	wg.Wait()
}

func TestMultipartUploadAndURLSegments(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{RequestTimeout: waitFor})
	env.broker.EnsureQueue("custom_queue")
	got := make(chan *broker.Request, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		req := env.broker.Dequeue(ctx, "custom_queue")
		got <- req
		if req != nil {
			env.broker.Resolve(req.ID, []byte(`{"success":true,"moduleId":"from-worker"}`))
		}
	}()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("min_confidence", "0.6"))
	fw, err := mw.CreateFormFile("image", "car.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.url("/v1/vision/custom/License-Plate"), mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "from-worker", body["moduleId"], "a worker supplied moduleId is kept")

	req := <-got
	require.NotNil(t, req)
	assert.Equal(t, []string{"License-Plate"}, req.Payload.URLSegments)
	assert.Equal(t, []string{"0.6"}, req.Payload.Values["min_confidence"])
	require.Len(t, req.Payload.Files, 1)
	assert.Equal(t, "image", req.Payload.Files[0].Name)
	assert.Equal(t, "car.jpg", req.Payload.Files[0].Filename)
	assert.Equal(t, []byte("jpeg-bytes"), req.Payload.Files[0].Data)
}

func TestDequeueReturnsNullOnTimeout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{DequeueTimeout: 50 * time.Millisecond})
	resp, err := http.Get(env.url("/v1/queue/" + detectQueue + "?moduleId=detect"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(raw)))

	seen, processed := env.reporter.counts()
	assert.Equal(t, 1, seen)
	assert.Zero(t, processed)
}

func TestResponseForUnknownRequest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	resp, err := http.Post(env.url("/v1/queue/no-such-request"), "application/json", strings.NewReader(`{"success":true}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, successResponse{Success: true}, decodeBody[successResponse](t, resp))
	_, processed := env.reporter.counts()
	assert.Zero(t, processed, "no moduleId means nothing to record")
}

func TestStatusEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.reporter.statuses = []supervisor.ProcessStatus{{ModuleID: "detect", Name: "Detect", Status: supervisor.StatusStarted, Processed: 3}}

	resp, err := http.Get(env.url("/v1/status/modules"))
	require.NoError(t, err)
	statuses := decodeBody[statusesResponse](t, resp)
	assert.Equal(t, statusesResponse{Success: true, Statuses: env.reporter.statuses}, statuses)

	resp, err = http.Get(env.url("/v1/status/routes"))
	require.NoError(t, err)
	routes := decodeBody[routesResponse](t, resp)
	require.Len(t, routes.Routes, 2)
	assert.Equal(t, "vision/custom", routes.Routes[0].Path)
	assert.Equal(t, "vision/detection", routes.Routes[1].Path)

	resp, err = http.Get(env.url("/v1/status/queues"))
	require.NoError(t, err)
	queues := decodeBody[queuesResponse](t, resp)
	assert.Equal(t, queuesResponse{Success: true, Queues: []queueInfo{{Name: detectQueue, Length: 0}}}, queues)
}

func TestReadyEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	resp, err := http.Get(env.url("/v1/status/ready"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	env.admin.mu.Lock()
	env.admin.ready = true
	env.admin.mu.Unlock()
	resp, err = http.Get(env.url("/v1/status/ready"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, readyResponse{Success: true, Ready: true}, decodeBody[readyResponse](t, resp))
}

func TestModuleAdminEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path       string
		wantStatus int
		want       adminResponse
	}{
		{path: "/v1/module/start/detect", wantStatus: http.StatusOK, want: adminResponse{Success: true, Message: "Module detect start"}},
		{path: "/v1/module/stop/detect", wantStatus: http.StatusOK, want: adminResponse{Success: true, Message: "Module detect stop"}},
		{path: "/v1/module/restart/detect", wantStatus: http.StatusOK, want: adminResponse{Success: true, Message: "Module detect restart"}},
	}
	env := newTestEnv(t, Config{})
	for _, tc := range tests {
		resp, err := http.Post(env.url(tc.path), "application/json", nil)
		require.NoError(t, err)
		assert.Equal(t, tc.wantStatus, resp.StatusCode, tc.path)
		assert.Equal(t, tc.want, decodeBody[adminResponse](t, resp), tc.path)
	}
	env.admin.mu.Lock()
	calls := append([]string(nil), env.admin.calls...)
	env.admin.mu.Unlock()
	assert.Equal(t, []string{"start:detect", "stop:detect", "restart:detect"}, calls)

	resp, err := http.Post(env.url("/v1/module/restart/missing"), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errorResponse{Success: false, Error: "Module missing is not configured", Code: errutil.ModuleNotFound},
		decodeBody[errorResponse](t, resp))

	resp, err = http.Post(env.url("/v1/module/explode/detect"), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errutil.BadRequest, decodeBody[errorResponse](t, resp).Code)
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, to := range []string{"Enabled", "Starting", "Started"} {
		require.NoError(t, env.history.Record(context.Background(), history.Event{ModuleID: "detect", To: to, At: at.Add(time.Duration(i) * time.Second)}))
	}

	resp, err := http.Get(env.url("/v1/module/detect/history?limit=2"))
	require.NoError(t, err)
	got := decodeBody[historyResponse](t, resp)
	require.Len(t, got.History, 2)
	assert.Equal(t, "Started", got.History[0].To)
	assert.Equal(t, "Starting", got.History[1].To)

	resp, err = http.Get(env.url("/v1/module/other/history"))
	require.NoError(t, err)
	assert.Equal(t, historyResponse{Success: true, History: []history.Event{}}, decodeBody[historyResponse](t, resp))

	resp, err = http.Get(env.url("/v1/module/detect/history?limit=zero"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDecorateResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "object", raw: `{"success":true}`, want: `{"analysisRoundTripMs":12,"moduleId":"detect","success":true}`},
		{name: "worker module id kept", raw: `{"moduleId":"w"}`, want: `{"analysisRoundTripMs":12,"moduleId":"w"}`},
		{name: "array untouched", raw: `[1,2]`, want: `[1,2]`},
		{name: "string untouched", raw: `"hi"`, want: `"hi"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.JSONEq(t, tc.want, string(decorateResponse([]byte(tc.raw), "detect", 12)))
		})
	}
}

func TestBrokerError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{err: broker.ErrQueueFull, wantCode: errutil.QueueFull, wantStatus: http.StatusTooManyRequests},
		{err: broker.ErrRequestTimeout, wantCode: errutil.RequestTimeout, wantStatus: http.StatusGatewayTimeout},
		{err: broker.ErrRequestCanceled, wantCode: errutil.RequestCanceled, wantStatus: errutil.StatusClientClosedRequest},
		{err: fmt.Errorf("Unable to add pending response id x: %w", broker.ErrDuplicateRequestID), wantCode: errutil.DuplicateRequestID, wantStatus: http.StatusConflict},
		{err: broker.ErrNullResponse, wantCode: errutil.MalformedResponse, wantStatus: http.StatusBadGateway},
		{err: broker.ErrInvalidResponse, wantCode: errutil.MalformedResponse, wantStatus: http.StatusBadGateway},
		{err: broker.ErrNullObject, wantCode: errutil.MalformedResponse, wantStatus: http.StatusBadGateway},
		{err: broker.ErrNilRequest, wantCode: errutil.BadRequest, wantStatus: http.StatusBadRequest},
		{err: errors.New("boom"), wantCode: errutil.Internal, wantStatus: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		got := brokerError(tc.err)
		assert.Equal(t, tc.wantCode, got.Code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), got.Msg)
		assert.Equal(t, tc.wantStatus, errutil.HTTPStatus(got.Code))
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       errorResponse
	}{
		{
			name:       "coded",
			err:        errutil.Error{Code: errutil.ModuleNotFound, Msg: "Module x is not configured"},
			wantStatus: http.StatusNotFound,
			want:       errorResponse{Error: "Module x is not configured", Code: errutil.ModuleNotFound},
		},
		{
			name:       "wrapped",
			err:        fmt.Errorf("admin: %w", errutil.Error{Code: errutil.QueueFull, Msg: "request queue is full."}),
			wantStatus: http.StatusTooManyRequests,
			want:       errorResponse{Error: "request queue is full.", Code: errutil.QueueFull},
		},
		{
			name:       "uncoded",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			want:       errorResponse{Error: "boom", Code: errutil.Unknown},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/v1/x", nil), tc.err)
			assert.Equal(t, tc.wantStatus, rec.Code)
			var got errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tc.want, got)
		})
	}
}
