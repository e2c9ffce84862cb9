package poller

import (
	"context"
	"fmt"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/metrics"
	"github.com/cuemby/mantle/pkg/types"
)

// KindPower labels level-triggered power polls
const KindPower = "power"

// PowerSource issues idempotent power commands and reads power status for
// services that do not hand out an operation id.
type PowerSource interface {
	SetPower(ctx context.Context, state types.PowerState, nodes []string) error
	GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error)
}

// PowerResult is the last observation of a level-triggered power change
type PowerResult struct {
	Desired    types.PowerState
	Status     *types.PowerStatus
	Mismatched []string
	Attempts   int
	Converged  bool
}

// PollUntilPowerState drives nodes to the desired power state.
//
// Each attempt re-issues the command for the entire original node set, waits
// one interval, re-reads status and recomputes the mismatched subset. The
// loop ends as soon as no node is mismatched. A node that refuses the
// command and a node that is merely slow look the same: both are reported
// in Mismatched with Converged=false once the budget is spent, which is not
// an error. Service and context errors are returned as errors.
func PollUntilPowerState(ctx context.Context, src PowerSource, state types.PowerState, nodes []string, policy Policy, observe Observer) (*PowerResult, error) {
	logger := log.WithComponent("poller").With().Str("kind", KindPower).Str("desired", string(state)).Logger()
	budget := policy.attempts()

	status, err := src.GetPowerStatus(ctx, nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to read power status: %w", err)
	}

	res := &PowerResult{
		Desired:    state,
		Status:     status,
		Mismatched: status.Mismatched(state, nodes),
	}
	if len(res.Mismatched) == 0 {
		res.Converged = true
		metrics.PollOutcomesTotal.WithLabelValues(KindPower, "converged").Inc()
		observe.notify(Progress{Kind: KindPower, MaxAttempts: budget, State: StateConverged, Value: res})
		return res, nil
	}

	for attempt := 1; attempt <= budget; attempt++ {
		metrics.PollAttemptsTotal.WithLabelValues(KindPower).Inc()

		if err := src.SetPower(ctx, state, nodes); err != nil {
			metrics.PollOutcomesTotal.WithLabelValues(KindPower, "error").Inc()
			return res, fmt.Errorf("power %s attempt %d: %w", state, attempt, err)
		}
		observe.notify(Progress{Kind: KindPower, Attempt: attempt, MaxAttempts: budget, State: StateReissued, Value: res})

		if err := sleep(ctx, policy.Interval); err != nil {
			metrics.PollOutcomesTotal.WithLabelValues(KindPower, "cancelled").Inc()
			return res, fmt.Errorf("power polling stopped: %w", err)
		}

		status, err := src.GetPowerStatus(ctx, nodes)
		if err != nil {
			metrics.PollOutcomesTotal.WithLabelValues(KindPower, "error").Inc()
			return res, fmt.Errorf("failed to read power status: %w", err)
		}

		res.Attempts = attempt
		res.Status = status
		res.Mismatched = status.Mismatched(state, nodes)

		logger.Debug().
			Int("attempt", attempt).
			Int("max_attempts", budget).
			Int("mismatched", len(res.Mismatched)).
			Msg("Power status observed")

		if len(res.Mismatched) == 0 {
			res.Converged = true
			metrics.PollOutcomesTotal.WithLabelValues(KindPower, "converged").Inc()
			observe.notify(Progress{Kind: KindPower, Attempt: attempt, MaxAttempts: budget, State: StateConverged, Value: res})
			return res, nil
		}
		observe.notify(Progress{Kind: KindPower, Attempt: attempt, MaxAttempts: budget, State: StatePolling, Value: res})
	}

	metrics.PollOutcomesTotal.WithLabelValues(KindPower, "mismatched").Inc()
	logger.Warn().
		Int("attempts", budget).
		Strs("mismatched", res.Mismatched).
		Msg("Nodes did not reach desired power state")
	observe.notify(Progress{Kind: KindPower, Attempt: budget, MaxAttempts: budget, State: StateMismatched, Value: res})
	return res, nil
}
