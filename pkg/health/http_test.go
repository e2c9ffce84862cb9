package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker("hsm", server.URL).Check(context.Background())

	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, "hsm", result.Service)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestHTTPChecker_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		lo, hi  int
		healthy bool
	}{
		{name: "ok", status: http.StatusOK, healthy: true},
		{name: "no content", status: http.StatusNoContent, healthy: true},
		{name: "unauthorized", status: http.StatusUnauthorized, healthy: false},
		{name: "server error", status: http.StatusServiceUnavailable, healthy: false},
		{name: "custom range", status: http.StatusFound, lo: 200, hi: 399, healthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			checker := NewHTTPChecker("cfs", server.URL)
			if tt.lo != 0 {
				checker.WithStatusRange(tt.lo, tt.hi)
			}
			checker.Client.CheckRedirect = func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}

			result := checker.Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
		})
	}
}

func TestHTTPChecker_BearerToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	result := NewHTTPChecker("pcs", server.URL).WithBearerToken("tok").Check(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, "Bearer tok", auth)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	result := NewHTTPChecker("ims", server.URL).WithTimeout(20 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPChecker_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result := NewHTTPChecker("bss", url).Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Result{{Healthy: true}, {Healthy: false}, {Healthy: true}})
	assert.Equal(t, Summary{Healthy: 2, Unhealthy: 1}, s)
}
