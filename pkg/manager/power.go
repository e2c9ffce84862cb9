package manager

import (
	"context"
	"fmt"

	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/poller"
	"github.com/cuemby/mantle/pkg/types"
)

// PowerRequest targets groups and/or explicit nodes with a power operation
type PowerRequest struct {
	Groups    []string
	Nodes     []string
	Operation types.PowerOperation

	// Wait polls each submitted transition to completion
	Wait bool
}

// PowerReport is the outcome of a power request. Exactly one of Transitions
// and Legacy is populated, depending on the backend.
type PowerReport struct {
	Operation   types.PowerOperation
	Nodes       []string
	Transitions []*types.Transition
	Legacy      []*poller.PowerResult
}

// FailedNodes lists nodes whose task failed or that never reached the
// desired state
func (r *PowerReport) FailedNodes() []string {
	var lists [][]string
	for _, t := range r.Transitions {
		lists = append(lists, t.FailedNodes())
	}
	for _, res := range r.Legacy {
		if !res.Converged {
			lists = append(lists, res.Mismatched)
		}
	}
	return unique(lists...)
}

// Power runs a power operation over the target nodes in batches. Batch
// failures are joined into the returned error; the report still carries the
// batches that succeeded.
func (m *Manager) Power(ctx context.Context, req PowerRequest) (*PowerReport, error) {
	nodes, err := m.targets(ctx, req.Groups, req.Nodes)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes to power %s", req.Operation)
	}

	report := &PowerReport{Operation: req.Operation, Nodes: nodes}
	logger := log.WithOperation("manager", string(req.Operation)).With().Int("nodes", len(nodes)).Logger()

	if m.opts.LegacyPower != nil {
		state, force, err := legacyState(req.Operation)
		if err != nil {
			return nil, err
		}
		src := m.opts.LegacyPower
		if force {
			forcer, ok := src.(ForcedPowerSource)
			if !ok {
				return nil, fmt.Errorf("power operation %q needs a backend that can force power off", req.Operation)
			}
			src = forcedPower{forcer}
		}

		outcome := bulk.Execute(ctx, m.bulkOptions("legacy-power", m.opts.PowerStatusBatchSize), nodes,
			func(ctx context.Context, batch []string) (*poller.PowerResult, error) {
				if !req.Wait {
					if err := src.SetPower(ctx, state, batch); err != nil {
						return nil, err
					}
					return &poller.PowerResult{Desired: state, Mismatched: batch, Attempts: 1}, nil
				}
				return poller.PollUntilPowerState(ctx, src, state, batch, m.opts.PowerPolicy, m.powerObserver())
			})
		publishFailures(m, "legacy-power", outcome)
		report.Legacy = outcome.Results

		logger.Info().Int("batches", outcome.Batches).Int("failed", len(outcome.Failures)).Msg("Legacy power command issued")
		return report, outcome.Err()
	}

	if !types.ValidPowerOperation(req.Operation) {
		return nil, fmt.Errorf("unsupported power operation %q", req.Operation)
	}

	observe := m.transitionObserver()
	outcome := bulk.Execute(ctx, m.bulkOptions("power-transition", m.opts.PowerStatusBatchSize), nodes,
		func(ctx context.Context, batch []string) (*types.Transition, error) {
			if req.Wait {
				return poller.SubmitAndPollTransition(ctx, m.svc, req.Operation, batch, m.opts.TransitionPolicy, observe)
			}
			t, err := m.svc.SubmitTransition(ctx, req.Operation, batch)
			if err != nil {
				return nil, err
			}
			observe(poller.Progress{Kind: poller.KindTransition, State: poller.StateSubmitted, Value: t})
			return t, nil
		})
	publishFailures(m, "power-transition", outcome)
	report.Transitions = outcome.Results

	logger.Info().Int("batches", outcome.Batches).Int("failed", len(outcome.Failures)).Msg("Power transitions submitted")
	return report, outcome.Err()
}

// ForcedPowerSource is a legacy power source that can skip the graceful
// shutdown. *gateway.LegacyPower implements it.
type ForcedPowerSource interface {
	poller.PowerSource
	SetPowerForced(ctx context.Context, state types.PowerState, nodes []string) error
}

// forcedPower issues every command of the level-triggered loop forced
type forcedPower struct {
	ForcedPowerSource
}

func (f forcedPower) SetPower(ctx context.Context, state types.PowerState, nodes []string) error {
	return f.SetPowerForced(ctx, state, nodes)
}

// legacyState maps an operation onto the two states the legacy service can
// drive nodes to, and whether the command is forced
func legacyState(op types.PowerOperation) (types.PowerState, bool, error) {
	switch op {
	case types.PowerOn:
		return types.PowerStateOn, false, nil
	case types.PowerOff, types.PowerSoftOff:
		return types.PowerStateOff, false, nil
	case types.PowerForceOff:
		return types.PowerStateOff, true, nil
	default:
		return "", false, fmt.Errorf("power operation %q is not supported by the legacy backend", op)
	}
}

// PowerStatus reads the power state of the target nodes in batches. The
// states of the batches that succeeded are returned with the joined error.
func (m *Manager) PowerStatus(ctx context.Context, groups, nodes []string) (*types.PowerStatus, error) {
	targets, err := m.targets(ctx, groups, nodes)
	if err != nil {
		return nil, err
	}

	var read func(ctx context.Context, batch []string) (*types.PowerStatus, error) = m.svc.GetPowerStatus
	if m.opts.LegacyPower != nil {
		read = m.opts.LegacyPower.GetPowerStatus
	}

	outcome := bulk.Execute(ctx, m.bulkOptions("power-status", m.opts.PowerStatusBatchSize), targets, read)
	publishFailures(m, "power-status", outcome)

	merged := &types.PowerStatus{On: []string{}, Off: []string{}}
	for _, s := range outcome.Results {
		merged.On = append(merged.On, s.On...)
		merged.Off = append(merged.Off, s.Off...)
		merged.Undefined = append(merged.Undefined, s.Undefined...)
	}
	return merged, outcome.Err()
}
