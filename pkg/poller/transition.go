package poller

import (
	"context"
	"fmt"

	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/types"
)

// KindTransition labels power transition polls
const KindTransition = "transition"

// TransitionSource submits and reads power transitions
type TransitionSource interface {
	SubmitTransition(ctx context.Context, op types.PowerOperation, nodes []string) (*types.Transition, error)
	GetTransition(ctx context.Context, id string) (*types.Transition, error)
}

// PollTransition polls a transition by id until its status is completed.
//
// A completed transition may still contain failed node tasks; callers check
// Transition.PartialFailure. On budget exhaustion the last observed
// transition is returned with an *ExhaustedError[*types.Transition].
func PollTransition(ctx context.Context, src TransitionSource, id string, policy Policy, observe Observer) (*types.Transition, error) {
	logger := log.WithTransitionID(id)
	logger.Debug().Msg("Polling transition")

	t, err := Wait(ctx, KindTransition, policy,
		func(ctx context.Context) (*types.Transition, error) {
			return src.GetTransition(ctx, id)
		},
		func(t *types.Transition) bool {
			return t != nil && t.Completed()
		},
		observe,
	)
	if err != nil {
		return t, err
	}

	if t.PartialFailure() {
		logger.Warn().
			Int("failed", t.TaskCounts.Failed).
			Int("succeeded", t.TaskCounts.Succeeded).
			Int("total", t.TaskCounts.Total).
			Msg("Transition completed with failed tasks")
	}
	return t, nil
}

// SubmitAndPollTransition submits op for nodes and polls the returned handle
func SubmitAndPollTransition(ctx context.Context, src TransitionSource, op types.PowerOperation, nodes []string, policy Policy, observe Observer) (*types.Transition, error) {
	submitted, err := src.SubmitTransition(ctx, op, nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s transition: %w", op, err)
	}
	if submitted == nil || submitted.ID == "" {
		return nil, fmt.Errorf("power service returned no transition id for %s", op)
	}

	observe.notify(Progress{Kind: KindTransition, MaxAttempts: policy.attempts(), State: StateSubmitted, Value: submitted})
	return PollTransition(ctx, src, submitted.ID, policy, observe)
}
