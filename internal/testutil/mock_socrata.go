// Package testutil provides testing utilities for the permits exporter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSocrata is a mock Socrata resource endpoint that serves a scripted
// sequence of responses and records every request.
type MockSocrata struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses []MockResponse

	// Tracking
	RequestCount      int
	Queries           []url.Values
	Paths             []string
	LastRequestHeader http.Header
}

// NewMockSocrata creates a new mock server. Requests past the end of the
// script get an empty JSON array.
func NewMockSocrata(responses ...MockResponse) *MockSocrata {
	mock := &MockSocrata{responses: responses}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		n := mock.RequestCount
		mock.RequestCount++
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.Paths = append(mock.Paths, r.URL.Path)
		mock.LastRequestHeader = r.Header.Clone()

		resp := MockResponse{StatusCode: http.StatusOK, Body: "[]"}
		if n < len(mock.responses) {
			resp = mock.responses[n]
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSocrata) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockSocrata) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockSocrata) Close() {
	m.server.Close()
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSocrata) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Offsets returns the $offset parameter of every request, in order.
func (m *MockSocrata) Offsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int, 0, len(m.Queries))
	for _, q := range m.Queries {
		n, err := strconv.Atoi(q.Get("$offset"))
		if err != nil {
			n = -1
		}
		out = append(out, n)
	}
	return out
}

// NewPageResponse creates a 200 OK response with n permit rows starting at id start.
func NewPageResponse(start, n int) MockResponse {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id":            fmt.Sprintf("%d", start+i),
			"permit_":       fmt.Sprintf("P%06d", start+i),
			"reported_cost": 1000 * (start + i),
		})
	}
	return NewJSONResponse(rows)
}

// NewJSONResponse creates a 200 OK response with v encoded as JSON.
func NewJSONResponse(v any) MockResponse {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return MockResponse{StatusCode: http.StatusOK, Body: string(data)}
}

// NewEmptyPageResponse creates a 200 OK response with no rows.
func NewEmptyPageResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: "[]"}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"internal_error","error":true,"message":"Internal error"}`,
	}
}

// NewThrottledResponse creates a 429 Too Many Requests response.
func NewThrottledResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"code":"throttled","error":true,"message":"Too many requests"}`,
	}
}

// NewQueryErrorResponse creates a 400 response for a bad SoQL query.
func NewQueryErrorResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       fmt.Sprintf(`{"code":"query.compiler.malformed","error":true,"message":%q}`, message),
	}
}
