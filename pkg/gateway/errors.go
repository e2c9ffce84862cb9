package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TransportError means the call could not be completed: connectivity, TLS,
// timeouts or a cancelled context.
type TransportError struct {
	Service string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError means the service answered with a failure. Payload is the
// response body exactly as received, so the upstream diagnostic reaches the
// operator unchanged.
type ServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Payload    []byte
}

func (e *ServiceError) Error() string {
	msg := strings.TrimSpace(string(e.Payload))
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Op, e.StatusCode, msg)
}

// Problem is an RFC 7807 problem document, the structured error format most
// of the services use.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Problem decodes the payload as a problem document. It returns nil when the
// service answered with plain text or another shape.
func (e *ServiceError) Problem() *Problem {
	p := &Problem{}
	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil
	}
	if p.Title == "" && p.Detail == "" {
		return nil
	}
	return p
}

// NotFound reports whether the service answered 404
func (e *ServiceError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
