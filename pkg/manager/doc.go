/*
Package manager composes the service gateway, access control, correlation,
bulk execution and polling into the operations the CLI exposes.

# Architecture

	┌──────────────────────── MANAGER ─────────────────────────┐
	│                                                          │
	│   groups + nodes ──► targets (resolve members, dedupe)   │
	│                          │                               │
	│          ┌───────────────┼────────────────┐              │
	│          ▼               ▼                ▼              │
	│     bulk.Execute    collect (errgroup)  poller.Wait      │
	│     (batches)       templates,          transitions,     │
	│          │          sessions,           power state,     │
	│          │          components          sessions         │
	│          ▼               ▼                │              │
	│      Services       correlate.*           ▼              │
	│                                      events.Broker       │
	└──────────────────────────────────────────────────────────┘

Services is satisfied by *gateway.Client and by in-memory fakes in tests.

# Partial results

Batched reads (NodeStates, PowerStatus, NodeImages) return whatever the
successful batches produced together with the joined batch errors. Write
operations return the results of the batches that succeeded and an error when
any batch failed. Component lookups used for correlation tolerate failed
batches.

# Access control

CheckAccess compares requested groups against the roles of the bearer token.
The manager never refuses an operation on its own; callers decide what to do
with DeniedError.
*/
package manager
