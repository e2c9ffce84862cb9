package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/metrics"
)

// Policy bounds a poll loop. Total wait is at most MaxAttempts*Interval.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// TransitionPolicy polls power transitions every 3s for up to 15 minutes
func TransitionPolicy() Policy {
	return Policy{Interval: 3 * time.Second, MaxAttempts: 300}
}

// PowerPolicy re-issues legacy power commands every 3s, 60 times
func PowerPolicy() Policy {
	return Policy{Interval: 3 * time.Second, MaxAttempts: 60}
}

// SessionPolicy polls configuration sessions every 10s for up to an hour
func SessionPolicy() Policy {
	return Policy{Interval: 10 * time.Second, MaxAttempts: 360}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// State is the poller state reported with every progress notification
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed-out"

	// level-triggered variant
	StateReissued   State = "reissued"
	StateConverged  State = "converged"
	StateMismatched State = "mismatched"
)

// Progress describes one poll attempt. Value holds the payload observed in
// that attempt (*types.Transition, *PowerResult, ...).
type Progress struct {
	Kind        string
	Attempt     int
	MaxAttempts int
	State       State
	Value       any
}

// Observer receives progress notifications. It runs on the polling
// goroutine and must not block.
type Observer func(Progress)

func (o Observer) notify(p Progress) {
	if o != nil {
		o(p)
	}
}

// ExhaustedError is returned when the attempt budget runs out before the
// operation reaches a terminal state. Last carries the last observed payload.
type ExhaustedError[T any] struct {
	Kind     string
	Attempts int
	Last     T
}

func (e *ExhaustedError[T]) Error() string {
	return fmt.Sprintf("%s did not complete after %d attempts, last observed: %+v", e.Kind, e.Attempts, e.Last)
}

// Wait polls fetch until done reports a terminal value, the attempt budget
// is exhausted or ctx is cancelled. Cancellation only stops client-side
// polling; the remote operation keeps running.
//
// A fetch error aborts the loop and is returned wrapped. On exhaustion the
// last value is returned together with an *ExhaustedError.
func Wait[T any](ctx context.Context, kind string, policy Policy, fetch func(ctx context.Context) (T, error), done func(T) bool, observe Observer) (T, error) {
	logger := log.WithComponent("poller").With().Str("kind", kind).Logger()
	budget := policy.attempts()

	var last T
	for attempt := 1; attempt <= budget; attempt++ {
		metrics.PollAttemptsTotal.WithLabelValues(kind).Inc()

		v, err := fetch(ctx)
		if err != nil {
			metrics.PollOutcomesTotal.WithLabelValues(kind, "error").Inc()
			return last, fmt.Errorf("%s poll attempt %d: %w", kind, attempt, err)
		}
		last = v

		if done(v) {
			metrics.PollOutcomesTotal.WithLabelValues(kind, "completed").Inc()
			logger.Info().Int("attempt", attempt).Msg("Operation completed")
			observe.notify(Progress{Kind: kind, Attempt: attempt, MaxAttempts: budget, State: StateCompleted, Value: v})
			return v, nil
		}

		logger.Debug().Int("attempt", attempt).Int("max_attempts", budget).Msg("Operation still running")
		observe.notify(Progress{Kind: kind, Attempt: attempt, MaxAttempts: budget, State: StatePolling, Value: v})

		if attempt == budget {
			break
		}
		if err := sleep(ctx, policy.Interval); err != nil {
			metrics.PollOutcomesTotal.WithLabelValues(kind, "cancelled").Inc()
			return last, fmt.Errorf("%s polling stopped: %w", kind, err)
		}
	}

	metrics.PollOutcomesTotal.WithLabelValues(kind, "timed_out").Inc()
	logger.Warn().Int("attempts", budget).Msg("Attempt budget exhausted")
	observe.notify(Progress{Kind: kind, Attempt: budget, MaxAttempts: budget, State: StateTimedOut, Value: last})
	return last, &ExhaustedError[T]{Kind: kind, Attempts: budget, Last: last}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
