package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cuemby/mantle/pkg/types"
)

// CAPMC answers HTTP 200 with a non-zero "e" field on failure, so every
// response is checked for it.

type capmcRequest struct {
	Xnames []string `json:"xnames"`
	Reason string   `json:"reason,omitempty"`
	Force  bool     `json:"force,omitempty"`
}

type capmcResponse struct {
	E      int      `json:"e"`
	ErrMsg string   `json:"err_msg"`
	On     []string `json:"on"`
	Off    []string `json:"off"`
	Undef  []string `json:"undefined"`
}

// LegacyPower adapts the legacy power service to the level-triggered poller:
// commands return no handle and are safe to repeat.
type LegacyPower struct {
	client *Client
	reason string
}

// LegacyPower returns the legacy power adapter of the client
func (c *Client) LegacyPower(reason string) *LegacyPower {
	return &LegacyPower{client: c, reason: reason}
}

func (l *LegacyPower) call(ctx context.Context, op, path string, body capmcRequest) (*capmcResponse, error) {
	var wire capmcResponse
	if err := l.client.do(ctx, ServiceCAPMC, op, http.MethodPost, path, nil, body, &wire); err != nil {
		return nil, err
	}
	if wire.E != 0 {
		return nil, &ServiceError{
			Service:    ServiceCAPMC,
			Op:         op,
			StatusCode: http.StatusOK,
			Payload:    []byte(fmt.Sprintf("e=%d: %s", wire.E, wire.ErrMsg)),
		}
	}
	return &wire, nil
}

// SetPower issues an on or off command for nodes
func (l *LegacyPower) SetPower(ctx context.Context, state types.PowerState, nodes []string) error {
	return l.setPower(ctx, state, nodes, false)
}

// SetPowerForced issues the command without a graceful shutdown
func (l *LegacyPower) SetPowerForced(ctx context.Context, state types.PowerState, nodes []string) error {
	return l.setPower(ctx, state, nodes, true)
}

func (l *LegacyPower) setPower(ctx context.Context, state types.PowerState, nodes []string, force bool) error {
	var path string
	switch state {
	case types.PowerStateOn:
		path = "/capmc/capmc/v1/xname_on"
	case types.PowerStateOff:
		path = "/capmc/capmc/v1/xname_off"
	default:
		return fmt.Errorf("cannot drive nodes to power state %q", state)
	}

	_, err := l.call(ctx, "xname_"+string(state), path, capmcRequest{Xnames: nodes, Reason: l.reason, Force: force})
	return err
}

// GetPowerStatus reads the power state of nodes
func (l *LegacyPower) GetPowerStatus(ctx context.Context, nodes []string) (*types.PowerStatus, error) {
	wire, err := l.call(ctx, "get_xname_status", "/capmc/capmc/v1/get_xname_status", capmcRequest{Xnames: nodes})
	if err != nil {
		return nil, err
	}

	out := &types.PowerStatus{On: wire.On, Off: wire.Off, Undefined: wire.Undef}
	if out.On == nil {
		out.On = []string{}
	}
	if out.Off == nil {
		out.Off = []string{}
	}
	return out, nil
}
