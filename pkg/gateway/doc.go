/*
Package gateway is the HTTP client for the cluster services behind the API
gateway.

One Client serves every service. Each request carries the bearer token and an
X-Request-ID, passes through a shared rate limiter and is recorded in the
gateway metrics. Per-service API versions are configurable, and each version's
wire shapes are translated into pkg/types by pure adapter functions, so the
rest of mantle never sees version differences.

Failures are typed:

  - TransportError when no response arrived (DNS, TLS, refused, timeout)
  - ServiceError when the service answered with a non-2xx status; the body is
    kept verbatim and Problem decodes it when it is an RFC 7807 document

Power can be driven through the power control service (SubmitTransition,
GetTransition, GetPowerStatus) or through the legacy interface returned by
LegacyPower.
*/
package gateway
