package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Service names used in errors, logs and metrics
const (
	ServiceHSM   = "hsm"
	ServiceBSS   = "bss"
	ServiceBOS   = "bos"
	ServiceCFS   = "cfs"
	ServiceIMS   = "ims"
	ServicePCS   = "pcs"
	ServiceCAPMC = "capmc"
)

// Versions selects the wire schema spoken by the versioned services
type Versions struct {
	CFS string // "v2" or "v3"
	BOS string // "v1" or "v2"
}

// Config is passed once at startup. The gateway never reads process
// environment; proxy and CA settings must be explicit.
type Config struct {
	// BaseURL is the API gateway root, e.g. https://api.example.com/apis
	BaseURL string

	// Token is the bearer access token
	Token string

	// CACertFile is an optional PEM bundle trusted in addition to the system pool
	CACertFile string

	// ProxyURL routes every request through an HTTP(S) or SOCKS5 proxy
	ProxyURL string

	// Timeout bounds each individual call
	Timeout time.Duration

	// RateLimit is the maximum request rate (per second); 0 disables limiting
	RateLimit float64
	RateBurst int

	Versions Versions

	// HTTPClient overrides the transport, mostly for tests
	HTTPClient *http.Client
}

// Client performs authenticated calls against the cluster services
type Client struct {
	base     string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	versions Versions
	logger   zerolog.Logger
}

// New builds a client from cfg
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		var err error
		hc, err = newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	versions := cfg.Versions
	if versions.CFS == "" {
		versions.CFS = "v3"
	}
	if versions.BOS == "" {
		versions.BOS = "v2"
	}
	switch versions.CFS {
	case "v2", "v3":
	default:
		return nil, fmt.Errorf("unsupported cfs api version %q", versions.CFS)
	}
	switch versions.BOS {
	case "v1", "v2":
	default:
		return nil, fmt.Errorf("unsupported bos api version %q", versions.BOS)
	}

	return &Client{
		base:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    cfg.Token,
		http:     hc,
		limiter:  limiter,
		versions: versions,
		logger:   log.WithComponent("gateway"),
	}, nil
}

// Versions returns the wire schema versions in use
func (c *Client) Versions() Versions {
	return c.versions
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	tran := http.DefaultTransport.(*http.Transport).Clone()
	tran.Proxy = nil

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		tran.Proxy = http.ProxyURL(proxy)
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertFile)
		}
		tran.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: tran, Timeout: timeout}, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.base + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one call. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, service, op, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Service: service, Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: failed to encode request: %w", service, op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
	if err != nil {
		return &TransportError{Service: service, Op: op, Err: err}
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	timer := metrics.NewTimer()
	resp, err := c.http.Do(req)
	timer.ObserveDurationVec(metrics.GatewayRequestDuration, service)
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(service, "error").Inc()
		return &TransportError{Service: service, Op: op, Err: err}
	}
	defer resp.Body.Close()

	metrics.GatewayRequestsTotal.WithLabelValues(service, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("service", service).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("duration", timer.Duration()).
		Msg("Service call")

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Service: service, Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{Service: service, Op: op, StatusCode: resp.StatusCode, Payload: payload}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: unexpected response (status %d): %w", service, op, resp.StatusCode, err)
	}
	return nil
}

// Endpoint is a service liveness endpoint
type Endpoint struct {
	Service string
	URL     string
}

// Endpoints lists the liveness endpoint of each service
func (c *Client) Endpoints() []Endpoint {
	return []Endpoint{
		{Service: ServiceHSM, URL: c.url("/smd/hsm/v2/service/liveness", nil)},
		{Service: ServiceBSS, URL: c.url("/bss/boot/v1/service/status", nil)},
		{Service: ServiceBOS, URL: c.url("/bos/"+c.versions.BOS, nil)},
		{Service: ServiceCFS, URL: c.url("/cfs/healthz", nil)},
		{Service: ServiceIMS, URL: c.url("/ims/v3/version", nil)},
		{Service: ServicePCS, URL: c.url("/power-control/v1/liveness", nil)},
	}
}

// HTTPClient returns the configured transport so health checks share its TLS and
// proxy settings
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
