package manager

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/mantle/pkg/auth"
	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/events"
	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/health"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/poller"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/rs/zerolog"
)

// Services is the set of remote calls the manager composes. *gateway.Client
// implements it.
type Services interface {
	auth.GroupLister
	poller.TransitionSource

	GetGroup(ctx context.Context, label string) (*types.Group, error)
	AddGroupMember(ctx context.Context, label, xname string) error
	GetNodeStates(ctx context.Context, ids []string) ([]types.NodeState, error)
	GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error)

	ListBootTemplates(ctx context.Context) ([]types.BootTemplate, error)
	GetBootParameters(ctx context.Context, hosts []string) ([]types.BootParameters, error)
	ListImages(ctx context.Context) ([]types.Image, error)

	ListSessions(ctx context.Context, filter gateway.SessionFilter) ([]types.AutomationSession, error)
	GetSession(ctx context.Context, name string) (*types.AutomationSession, error)
	CreateSession(ctx context.Context, spec gateway.SessionSpec) (*types.AutomationSession, error)
	ListConfigurations(ctx context.Context) ([]types.Configuration, error)
	GetComponents(ctx context.Context, ids []string) ([]types.Component, error)
	PatchComponents(ctx context.Context, components []types.Component) ([]types.Component, error)
}

// Options tunes the manager. Zero values fall back to the service defaults.
type Options struct {
	// Token is the caller credential used for authorization decisions
	Token   string
	Filters auth.Filters

	StatusBatchSize      int
	ComponentBatchSize   int
	PowerStatusBatchSize int
	MaxConcurrency       int

	TransitionPolicy poller.Policy
	PowerPolicy      poller.Policy
	SessionPolicy    poller.Policy

	// LegacyPower switches power commands to the level-triggered backend
	LegacyPower poller.PowerSource

	// Checkers check service liveness for Health
	Checkers []health.Checker

	// Events receives progress notifications; nil disables publishing
	Events *events.Broker
}

func (o *Options) setDefaults() {
	if o.StatusBatchSize <= 0 {
		o.StatusBatchSize = bulk.StatusBatchSize
	}
	if o.ComponentBatchSize <= 0 {
		o.ComponentBatchSize = bulk.ComponentBatchSize
	}
	if o.PowerStatusBatchSize <= 0 {
		o.PowerStatusBatchSize = bulk.StatusBatchSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = bulk.DefaultMaxConcurrency
	}
	if o.TransitionPolicy.Interval <= 0 {
		o.TransitionPolicy = poller.TransitionPolicy()
	}
	if o.PowerPolicy.Interval <= 0 {
		o.PowerPolicy = poller.PowerPolicy()
	}
	if o.SessionPolicy.Interval <= 0 {
		o.SessionPolicy = poller.SessionPolicy()
	}
}

// Manager runs caller-facing operations over the cluster services
type Manager struct {
	svc      Services
	opts     Options
	resolver *auth.Resolver
	events   *events.Broker
	logger   zerolog.Logger
}

// New creates a manager
func New(svc Services, opts Options) (*Manager, error) {
	if svc == nil {
		return nil, fmt.Errorf("services are required")
	}
	opts.setDefaults()

	return &Manager{
		svc:      svc,
		opts:     opts,
		resolver: auth.NewResolver(opts.Filters, svc),
		events:   opts.Events,
		logger:   log.WithComponent("manager"),
	}, nil
}

func (m *Manager) bulkOptions(name string, size int) bulk.Options {
	return bulk.Options{Name: name, BatchSize: size, MaxConcurrency: m.opts.MaxConcurrency}
}

func (m *Manager) publish(t events.EventType, message string, attempt, attempts int, metadata map[string]string) {
	if m.events == nil {
		return
	}
	m.events.Publish(&events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Message:   message,
		Attempt:   attempt,
		Attempts:  attempts,
		Metadata:  metadata,
	})
}

// publishFailures reports every failed batch of a bulk execution
func publishFailures[R any](m *Manager, executor string, outcome *bulk.Outcome[R]) {
	for _, f := range outcome.Failures {
		m.publish(events.EventBatchFailed, f.Err.Error(), 0, 0, map[string]string{
			"executor": executor,
			"batch":    strconv.Itoa(f.Index),
			"size":     strconv.Itoa(f.Size),
		})
	}
}

// transitionObserver turns poller progress into transition events
func (m *Manager) transitionObserver() poller.Observer {
	return func(p poller.Progress) {
		t, _ := p.Value.(*types.Transition)
		meta := map[string]string{"state": string(p.State)}
		msg := string(p.State)
		if t != nil {
			meta["transition_id"] = t.ID
			meta["status"] = string(t.Status)
			msg = fmt.Sprintf("transition %s %s: %d/%d succeeded, %d failed",
				t.ID, t.Status, t.TaskCounts.Succeeded, t.TaskCounts.Total, t.TaskCounts.Failed)
		}

		switch p.State {
		case poller.StateSubmitted:
			m.publish(events.EventTransitionSubmitted, msg, p.Attempt, p.MaxAttempts, meta)
		case poller.StateCompleted:
			m.publish(events.EventTransitionCompleted, msg, p.Attempt, p.MaxAttempts, meta)
		case poller.StateTimedOut:
			m.publish(events.EventTransitionTimedOut, msg, p.Attempt, p.MaxAttempts, meta)
		default:
			m.publish(events.EventTransitionProgress, msg, p.Attempt, p.MaxAttempts, meta)
		}
	}
}

// powerObserver turns level-triggered progress into power events
func (m *Manager) powerObserver() poller.Observer {
	return func(p poller.Progress) {
		res, _ := p.Value.(*poller.PowerResult)
		meta := map[string]string{"state": string(p.State)}
		msg := string(p.State)
		if res != nil {
			meta["desired"] = string(res.Desired)
			meta["mismatched"] = strconv.Itoa(len(res.Mismatched))
			msg = fmt.Sprintf("%d nodes not yet %s", len(res.Mismatched), res.Desired)
		}

		switch p.State {
		case poller.StateConverged:
			m.publish(events.EventPowerConverged, msg, p.Attempt, p.MaxAttempts, meta)
		case poller.StateMismatched:
			m.publish(events.EventPowerMismatched, msg, p.Attempt, p.MaxAttempts, meta)
		default:
			m.publish(events.EventPowerProgress, msg, p.Attempt, p.MaxAttempts, meta)
		}
	}
}

// sessionObserver turns session polling into session events
func (m *Manager) sessionObserver() poller.Observer {
	return func(p poller.Progress) {
		s, _ := p.Value.(*types.AutomationSession)
		meta := map[string]string{"state": string(p.State)}
		msg := string(p.State)
		if s != nil {
			meta["session"] = s.Name
			meta["status"] = string(s.Status.Status)
			msg = fmt.Sprintf("session %s %s", s.Name, s.Status.Status)
		}

		if p.State == poller.StateCompleted {
			m.publish(events.EventSessionCompleted, msg, p.Attempt, p.MaxAttempts, meta)
			return
		}
		m.publish(events.EventSessionProgress, msg, p.Attempt, p.MaxAttempts, meta)
	}
}

// unique keeps the first occurrence of every non-empty name
func unique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
