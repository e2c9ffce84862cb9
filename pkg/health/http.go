package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker checks a service liveness endpoint
type HTTPChecker struct {
	// Name is the service the endpoint belongs to
	Name string

	// URL is the full liveness URL
	URL string

	// Headers are added to every check request, typically the bearer credential
	Headers map[string]string

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 299)
	ExpectedStatusMax int

	Client *http.Client
}

// NewHTTPChecker creates a checker for one service endpoint
func NewHTTPChecker(service, url string) *HTTPChecker {
	return &HTTPChecker{
		Name:              service,
		URL:               url,
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 299,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Check performs the request
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{Service: h.Name, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		result.Message = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		result.Message = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Healthy = resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	result.Message = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !result.Healthy {
		result.Message = fmt.Sprintf("%s (expected %d-%d)", result.Message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	result.Duration = time.Since(start)
	return result
}

// Service returns the checked service name
func (h *HTTPChecker) Service() string {
	return h.Name
}

// WithHeader adds a custom HTTP header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithBearerToken authenticates the check request
func (h *HTTPChecker) WithBearerToken(token string) *HTTPChecker {
	if token == "" {
		return h
	}
	return h.WithHeader("Authorization", "Bearer "+token)
}

// WithStatusRange sets the expected status code range
func (h *HTTPChecker) WithStatusRange(lo, hi int) *HTTPChecker {
	h.ExpectedStatusMin = lo
	h.ExpectedStatusMax = hi
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

// WithClient replaces the HTTP client, e.g. to share the gateway transport
func (h *HTTPChecker) WithClient(c *http.Client) *HTTPChecker {
	if c != nil {
		h.Client = c
	}
	return h
}
