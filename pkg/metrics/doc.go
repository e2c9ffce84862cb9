/*
Package metrics defines the Prometheus collectors for mantle.

Collectors register on the default registry at init and are served by Handler
when the CLI runs with --metrics-addr.

# Metrics

Bulk execution:

	mantle_bulk_batches_total{executor,result}
	mantle_bulk_batch_duration_seconds{executor}
	mantle_bulk_batches_in_flight{executor}

Polling:

	mantle_poll_attempts_total{kind}
	mantle_poll_outcomes_total{kind,outcome}

Service requests:

	mantle_gateway_requests_total{service,code}
	mantle_gateway_request_duration_seconds{service}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BatchDuration, "power")
*/
package metrics
