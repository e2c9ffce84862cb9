package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/poller"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

// fakeServices is an in-memory cluster. Every method is safe for the
// concurrent use the bulk executor makes of it.
type fakeServices struct {
	mu sync.Mutex

	groups         map[string]*types.Group
	nodeStates     map[string]types.NodeState
	templates      []types.BootTemplate
	sessions       []types.AutomationSession
	configurations []types.Configuration
	components     map[string]types.Component
	images         []types.Image
	bootParams     []types.BootParameters
	power          map[string]types.PowerState

	// failIDs makes any batch containing one of these ids fail
	failIDs map[string]bool

	// sessionStates is replayed by GetSession, the last state sticking
	sessionStates    []types.SessionState
	sessionSucceeded string

	transitions    map[string]*types.Transition
	transitionGets map[string]int
	submitted      [][]string
	created        []gateway.SessionSpec
	added          []string
	patched        [][]types.Component
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		groups:         map[string]*types.Group{},
		nodeStates:     map[string]types.NodeState{},
		components:     map[string]types.Component{},
		power:          map[string]types.PowerState{},
		failIDs:        map[string]bool{},
		transitions:    map[string]*types.Transition{},
		transitionGets: map[string]int{},
	}
}

func (f *fakeServices) addGroup(label string, members ...string) {
	f.groups[label] = &types.Group{Label: label, Members: members}
}

func (f *fakeServices) failing(ids []string) error {
	for _, id := range ids {
		if f.failIDs[id] {
			return fmt.Errorf("service rejected %s", id)
		}
	}
	return nil
}

func (f *fakeServices) ListGroups(ctx context.Context) ([]types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Group
	for _, g := range f.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (f *fakeServices) GetGroup(ctx context.Context, label string) (*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[label]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", label, errNotFound)
	}
	cp := *g
	cp.Members = append([]string{}, g.Members...)
	return &cp, nil
}

func (f *fakeServices) AddGroupMember(ctx context.Context, label, xname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing([]string{xname}); err != nil {
		return err
	}
	g := f.groups[label]
	g.Members = append(g.Members, xname)
	f.added = append(f.added, xname)
	return nil
}

func (f *fakeServices) GetNodeStates(ctx context.Context, ids []string) ([]types.NodeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing(ids); err != nil {
		return nil, err
	}
	var out []types.NodeState
	for _, id := range ids {
		if s, ok := f.nodeStates[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeServices) GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing(nodes); err != nil {
		return nil, err
	}
	out := &types.PowerStatus{On: []string{}, Off: []string{}}
	for _, n := range nodes {
		switch f.power[n] {
		case types.PowerStateOn:
			out.On = append(out.On, n)
		case types.PowerStateOff:
			out.Off = append(out.Off, n)
		default:
			out.Undefined = append(out.Undefined, n)
		}
	}
	return out, nil
}

func (f *fakeServices) SubmitTransition(ctx context.Context, op types.PowerOperation, nodes []string) (*types.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing(nodes); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("t-%d", len(f.submitted))
	f.submitted = append(f.submitted, append([]string{}, nodes...))
	t := &types.Transition{
		ID:         id,
		Operation:  op,
		Location:   append([]string{}, nodes...),
		Status:     types.TransitionNew,
		TaskCounts: types.TaskCounts{Total: len(nodes), New: len(nodes)},
	}
	f.transitions[id] = t
	cp := *t
	return &cp, nil
}

// GetTransition reports in-progress once, then completed with every task
// succeeded
func (f *fakeServices) GetTransition(ctx context.Context, id string) (*types.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transitions[id]
	if !ok {
		return nil, errNotFound
	}
	f.transitionGets[id]++
	cp := *t
	if f.transitionGets[id] == 1 {
		cp.Status = types.TransitionInProgress
		cp.TaskCounts = types.TaskCounts{Total: len(t.Location), InProgress: len(t.Location)}
		return &cp, nil
	}
	cp.Status = types.TransitionCompleted
	cp.TaskCounts = types.TaskCounts{Total: len(t.Location), Succeeded: len(t.Location)}
	for _, n := range t.Location {
		cp.Tasks = append(cp.Tasks, types.TransitionTask{Xname: n, Status: "succeeded"})
	}
	return &cp, nil
}

func (f *fakeServices) ListBootTemplates(ctx context.Context) ([]types.BootTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates, nil
}

func (f *fakeServices) GetBootParameters(ctx context.Context, hosts []string) ([]types.BootParameters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing(hosts); err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, h := range hosts {
		want[h] = true
	}
	var out []types.BootParameters
	for _, b := range f.bootParams {
		for _, h := range b.Hosts {
			if want[h] {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeServices) ListImages(ctx context.Context) ([]types.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images, nil
}

func (f *fakeServices) ListSessions(ctx context.Context, filter gateway.SessionFilter) ([]types.AutomationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.AutomationSession
	for _, s := range f.sessions {
		if strings.Contains(s.Name, filter.NameContains) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeServices) GetSession(ctx context.Context, name string) (*types.AutomationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := types.SessionStatePending
	if len(f.sessionStates) > 0 {
		state = f.sessionStates[0]
		if len(f.sessionStates) > 1 {
			f.sessionStates = f.sessionStates[1:]
		}
	}
	s := &types.AutomationSession{Name: name, Status: types.SessionStatus{Status: state}}
	if state == types.SessionStateComplete {
		s.Status.Succeeded = f.sessionSucceeded
	}
	return s, nil
}

func (f *fakeServices) CreateSession(ctx context.Context, spec gateway.SessionSpec) (*types.AutomationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	return &types.AutomationSession{
		Name:              spec.Name,
		ConfigurationName: spec.ConfigurationName,
		AnsibleLimit:      spec.AnsibleLimit,
		Target:            types.SessionTarget{Definition: spec.Definition, Groups: spec.Groups},
		Status:            types.SessionStatus{Status: types.SessionStatePending},
	}, nil
}

func (f *fakeServices) ListConfigurations(ctx context.Context) ([]types.Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configurations, nil
}

func (f *fakeServices) GetComponents(ctx context.Context, ids []string) ([]types.Component, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing(ids); err != nil {
		return nil, err
	}
	var out []types.Component
	for _, id := range ids {
		if c, ok := f.components[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeServices) PatchComponents(ctx context.Context, components []types.Component) ([]types.Component, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, c := range components {
		ids = append(ids, c.ID)
	}
	if err := f.failing(ids); err != nil {
		return nil, err
	}
	f.patched = append(f.patched, components)
	for _, c := range components {
		f.components[c.ID] = c
	}
	return components, nil
}

// convergingPower reaches the desired state after `after` commands
type convergingPower struct {
	mu     sync.Mutex
	after  int
	sets   int
	forced int
	states map[string]types.PowerState
}

func (c *convergingPower) SetPowerForced(ctx context.Context, state types.PowerState, nodes []string) error {
	c.mu.Lock()
	c.forced++
	c.mu.Unlock()
	return c.SetPower(ctx, state, nodes)
}

func (c *convergingPower) SetPower(ctx context.Context, state types.PowerState, nodes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.sets >= c.after {
		for _, n := range nodes {
			c.states[n] = state
		}
	}
	return nil
}

func (c *convergingPower) GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &types.PowerStatus{On: []string{}, Off: []string{}}
	for _, n := range nodes {
		if c.states[n] == types.PowerStateOn {
			out.On = append(out.On, n)
		} else {
			out.Off = append(out.Off, n)
		}
	}
	return out, nil
}

var _ ForcedPowerSource = (*convergingPower)(nil)

// gracefulOnly hides SetPowerForced of the wrapped source
type gracefulOnly struct {
	poller.PowerSource
}

func fastOptions() Options {
	return Options{
		TransitionPolicy: poller.Policy{Interval: time.Millisecond, MaxAttempts: 5},
		PowerPolicy:      poller.Policy{Interval: time.Millisecond, MaxAttempts: 5},
		SessionPolicy:    poller.Policy{Interval: time.Millisecond, MaxAttempts: 5},
	}
}

func newTestManager(t *testing.T, svc *fakeServices, opts Options) *Manager {
	t.Helper()
	m, err := New(svc, opts)
	require.NoError(t, err)
	return m
}

func signedToken(t *testing.T, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{"realm_access": map[string]any{"roles": roles}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}
