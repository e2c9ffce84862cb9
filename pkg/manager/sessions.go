package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/log"
	"github.com/cuemby/mantle/pkg/poller"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/google/uuid"
)

// SessionRequest describes a configuration session to start. A session
// either builds images (Image groups set) or configures running nodes
// (Groups and/or Nodes resolved into the ansible limit).
type SessionRequest struct {
	// Name defaults to a generated unique name
	Name               string
	ConfigurationName  string
	ConfigurationLimit string

	Groups []string
	Nodes  []string

	// Image targets an image build instead of running nodes
	Image []types.TargetGroup

	Tags map[string]string
	Wait bool
}

// SessionFailedError is returned by WaitSession when a session completed
// without succeeding
type SessionFailedError struct {
	Session *types.AutomationSession
}

func (e *SessionFailedError) Error() string {
	return fmt.Sprintf("session %s completed without success", e.Session.Name)
}

// CreateSession starts a configuration session and optionally waits for it
func (m *Manager) CreateSession(ctx context.Context, req SessionRequest) (*types.AutomationSession, error) {
	if req.ConfigurationName == "" {
		return nil, fmt.Errorf("configuration name is required")
	}

	spec := gateway.SessionSpec{
		Name:               req.Name,
		ConfigurationName:  req.ConfigurationName,
		ConfigurationLimit: req.ConfigurationLimit,
		Tags:               req.Tags,
	}
	if spec.Name == "" {
		spec.Name = "mantle-" + uuid.NewString()[:8]
	}

	if len(req.Image) > 0 {
		spec.Definition = types.SessionDefinitionImage
		spec.Groups = req.Image
	} else {
		targets, err := m.targets(ctx, req.Groups, req.Nodes)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("session needs at least one target node or image group")
		}
		spec.Definition = types.SessionDefinitionDynamic
		spec.AnsibleLimit = strings.Join(targets, ",")
	}

	session, err := m.svc.CreateSession(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger := log.WithSession(session.Name)
	logger.Info().Str("configuration", spec.ConfigurationName).Msg("Session created")

	if !req.Wait {
		return session, nil
	}
	return m.WaitSession(ctx, session.Name)
}

// WaitSession polls a session until it completes. On budget exhaustion the
// last observed session is returned with an *poller.ExhaustedError.
func (m *Manager) WaitSession(ctx context.Context, name string) (*types.AutomationSession, error) {
	session, err := poller.Wait(ctx, "session", m.opts.SessionPolicy,
		func(ctx context.Context) (*types.AutomationSession, error) {
			return m.svc.GetSession(ctx, name)
		},
		func(s *types.AutomationSession) bool {
			return s != nil && s.Complete()
		},
		m.sessionObserver(),
	)
	if err != nil {
		return session, err
	}
	if !session.Succeeded() {
		return session, &SessionFailedError{Session: session}
	}
	return session, nil
}
