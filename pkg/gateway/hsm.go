package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cuemby/mantle/pkg/types"
)

type hsmGroupV2 struct {
	Label          string       `json:"label"`
	Description    string       `json:"description,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	ExclusiveGroup string       `json:"exclusiveGroup,omitempty"`
	Members        hsmMembersV2 `json:"members"`
}

type hsmMembersV2 struct {
	IDs []string `json:"ids"`
}

type hsmComponentV2 struct {
	ID      string `json:"ID"`
	Type    string `json:"Type"`
	State   string `json:"State"`
	Flag    string `json:"Flag"`
	Enabled *bool  `json:"Enabled"`
	Role    string `json:"Role"`
	SubRole string `json:"SubRole"`
	NID     int    `json:"NID"`
}

type hsmComponentArrayV2 struct {
	Components []hsmComponentV2 `json:"Components"`
}

func groupFromHSMV2(g hsmGroupV2) types.Group {
	members := g.Members.IDs
	if members == nil {
		members = []string{}
	}
	return types.Group{
		Label:          g.Label,
		Description:    g.Description,
		Tags:           g.Tags,
		Members:        members,
		ExclusiveGroup: g.ExclusiveGroup,
	}
}

func nodeStateFromHSMV2(c hsmComponentV2) types.NodeState {
	return types.NodeState{
		ID:      c.ID,
		Type:    c.Type,
		State:   c.State,
		Flag:    c.Flag,
		Enabled: c.Enabled == nil || *c.Enabled,
		Role:    c.Role,
		SubRole: c.SubRole,
		NID:     c.NID,
	}
}

// ListGroups returns every group visible to the credential
func (c *Client) ListGroups(ctx context.Context) ([]types.Group, error) {
	var wire []hsmGroupV2
	if err := c.do(ctx, ServiceHSM, "list groups", http.MethodGet, "/smd/hsm/v2/groups", nil, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]types.Group, 0, len(wire))
	for _, g := range wire {
		out = append(out, groupFromHSMV2(g))
	}
	return out, nil
}

// GetGroup returns a single group by label
func (c *Client) GetGroup(ctx context.Context, label string) (*types.Group, error) {
	var wire hsmGroupV2
	path := "/smd/hsm/v2/groups/" + url.PathEscape(label)
	if err := c.do(ctx, ServiceHSM, "get group", http.MethodGet, path, nil, nil, &wire); err != nil {
		return nil, err
	}
	g := groupFromHSMV2(wire)
	return &g, nil
}

// AddGroupMember extends the membership of a group by one node
func (c *Client) AddGroupMember(ctx context.Context, label, xname string) error {
	path := "/smd/hsm/v2/groups/" + url.PathEscape(label) + "/members"
	body := map[string]string{"id": xname}
	return c.do(ctx, ServiceHSM, "add group member", http.MethodPost, path, nil, body, nil)
}

// GetNodeStates queries the inventory state of the given nodes. Callers
// batch ids; the service rejects oversized queries.
func (c *Client) GetNodeStates(ctx context.Context, ids []string) ([]types.NodeState, error) {
	var wire hsmComponentArrayV2
	body := map[string][]string{"ComponentIDs": ids}
	if err := c.do(ctx, ServiceHSM, "query components", http.MethodPost, "/smd/hsm/v2/State/Components/Query", nil, body, &wire); err != nil {
		return nil, err
	}
	out := make([]types.NodeState, 0, len(wire.Components))
	for _, comp := range wire.Components {
		out = append(out, nodeStateFromHSMV2(comp))
	}
	return out, nil
}
