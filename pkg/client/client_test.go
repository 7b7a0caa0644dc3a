package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/permits-export/internal/testutil"
	"github.com/Sternrassler/permits-export/pkg/pagination"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig("TestApp/1.0.0 (test@example.com)")
	cfg.BaseURL = baseURL
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("TestApp/1.0.0"),
		},
		{
			name: "zero timeout uses default",
			config: Config{
				BaseURL:   "https://data.cityofchicago.org",
				UserAgent: "TestApp/1.0.0",
			},
		},
		{
			name: "empty base url",
			config: Config{
				UserAgent: "TestApp/1.0.0",
			},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name: "empty user agent",
			config: Config{
				BaseURL: "https://data.cityofchicago.org",
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "relative base url",
			config: Config{
				BaseURL:   "data.cityofchicago.org",
				UserAgent: "TestApp/1.0.0",
			},
			expectError: true,
			errorMsg:    `base url must be absolute (got "data.cityofchicago.org")`,
		},
		{
			name: "negative timeout",
			config: Config{
				BaseURL:   "https://data.cityofchicago.org",
				UserAgent: "TestApp/1.0.0",
				Timeout:   -time.Second,
			},
			expectError: true,
			errorMsg:    "timeout must be >= 0 (got -1s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("TestApp/1.0.0")

	if cfg.BaseURL != "https://data.cityofchicago.org" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserAgent != "TestApp/1.0.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
}

func TestResourceURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://data.cityofchicago.org", "https://data.cityofchicago.org/resource/ydr8-5enu.json"},
		{"https://data.cityofchicago.org/", "https://data.cityofchicago.org/resource/ydr8-5enu.json"},
		{"http://localhost:8080/proxy", "http://localhost:8080/proxy/resource/ydr8-5enu.json"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c := newTestClient(t, tt.base)
			if got := c.ResourceURL("ydr8-5enu"); got != tt.want {
				t.Errorf("ResourceURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageParams(t *testing.T) {
	params := PageParams(pagination.PageRequest{
		Limit:  5000,
		Offset: 10000,
		Order:  "issue_date DESC",
		Where:  "reported_cost > 50000",
	})

	if params.Get("$limit") != "5000" {
		t.Errorf("$limit = %q", params.Get("$limit"))
	}
	if params.Get("$offset") != "10000" {
		t.Errorf("$offset = %q", params.Get("$offset"))
	}
	if params.Get("$order") != "issue_date DESC" {
		t.Errorf("$order = %q", params.Get("$order"))
	}
	if params.Get("$where") != "reported_cost > 50000" {
		t.Errorf("$where = %q", params.Get("$where"))
	}
	if _, ok := params["$select"]; ok {
		t.Error("$select should be omitted when empty")
	}
}

func TestDo_HeadersSet(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := DefaultConfig("TestApp/1.0.0 (test@example.com)")
	cfg.BaseURL = server.URL
	cfg.AppToken = "token-123"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.Get(context.Background(), "ydr8-5enu", nil); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if got.Get("User-Agent") != cfg.UserAgent {
		t.Errorf("User-Agent = %q, want %q", got.Get("User-Agent"), cfg.UserAgent)
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
	if got.Get("X-App-Token") != "token-123" {
		t.Errorf("X-App-Token = %q", got.Get("X-App-Token"))
	}
}

func TestDo_NoAppTokenHeader(t *testing.T) {
	mock := testutil.NewMockSocrata(testutil.NewEmptyPageResponse())
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	if _, err := client.Get(context.Background(), "ydr8-5enu", nil); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if _, ok := mock.LastRequestHeader["X-App-Token"]; ok {
		t.Error("X-App-Token should not be sent without a token")
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockSocrata(testutil.NewPageResponse(0, 3))
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	page, err := client.FetchPage(context.Background(), "ydr8-5enu", pagination.PageRequest{
		Limit:  3,
		Offset: 0,
		Order:  "issue_date DESC",
	})
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	if len(page) != 3 {
		t.Fatalf("len(page) = %d, want 3", len(page))
	}
	if id, _ := page[2].Get("id"); id != "2" {
		t.Errorf("page[2].id = %q, want 2", id)
	}
	if mock.Paths[0] != "/resource/ydr8-5enu.json" {
		t.Errorf("path = %q", mock.Paths[0])
	}

	q := mock.Queries[0]
	if q.Get("$limit") != "3" || q.Get("$offset") != "0" || q.Get("$order") != "issue_date DESC" {
		t.Errorf("query = %v", q)
	}
}

func TestFetchPage_EmptyBody(t *testing.T) {
	mock := testutil.NewMockSocrata(testutil.MockResponse{StatusCode: http.StatusOK})
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	page, err := client.FetchPage(context.Background(), "ydr8-5enu", pagination.PageRequest{Limit: 10})
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("len(page) = %d, want 0", len(page))
	}
}

func TestFetchPage_MalformedBody(t *testing.T) {
	mock := testutil.NewMockSocrata(testutil.MockResponse{StatusCode: http.StatusOK, Body: `[{"id":`})
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	_, err := client.FetchPage(context.Background(), "ydr8-5enu", pagination.PageRequest{Limit: 10})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.ErrorClass != ErrorClassDecode {
		t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, ErrorClassDecode)
	}
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		resp     testutil.MockResponse
		status   int
		expected ErrorClass
		message  string
	}{
		{"bad query", testutil.NewQueryErrorResponse("No such column: foo"), 400, ErrorClassClient, "query.compiler.malformed: No such column: foo"},
		{"not found", testutil.MockResponse{StatusCode: 404, Body: "nope"}, 404, ErrorClassClient, "404 Not Found"},
		{"throttled", testutil.NewThrottledResponse(), 429, ErrorClassRateLimit, "throttled: Too many requests"},
		{"server error", testutil.NewServerErrorResponse(), 500, ErrorClassServer, "internal_error: Internal error"},
		{"not modified", testutil.MockResponse{StatusCode: 304}, 304, ErrorClassClient, "304 Not Modified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSocrata(tt.resp)
			defer mock.Close()

			client := newTestClient(t, mock.URL())
			_, err := client.Get(context.Background(), "ydr8-5enu", nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.ErrorClass != tt.expected {
				t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, tt.expected)
			}
			if apiErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.message)
			}
			if mock.GetRequestCount() != 1 {
				t.Errorf("requests = %d, want 1 (no retry)", mock.GetRequestCount())
			}
		})
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.Get(context.Background(), "ydr8-5enu", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, ErrorClassNetwork)
	}
	if apiErr.Err == nil {
		t.Error("Expected wrapped transport error")
	}
}

func TestDo_Timeout(t *testing.T) {
	mock := testutil.NewMockSocrata(testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "[]",
		Delay:      200 * time.Millisecond,
	})
	defer mock.Close()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 20 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Get(context.Background(), "ydr8-5enu", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestGet_EmptyDataset(t *testing.T) {
	client := newTestClient(t, "https://data.cityofchicago.org")
	_, err := client.Get(context.Background(), "", nil)
	if !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("Expected ErrEmptyDataset, got %v", err)
	}
}

func TestSetHTTPClient(t *testing.T) {
	client := newTestClient(t, "https://data.cityofchicago.org")
	custom := &http.Client{Timeout: time.Second}
	client.SetHTTPClient(custom)

	if client.httpClient != custom {
		t.Error("SetHTTPClient did not replace the HTTP client")
	}
}
