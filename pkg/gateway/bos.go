package gateway

import (
	"context"
	"net/http"

	"github.com/cuemby/mantle/pkg/types"
)

type bosCfs struct {
	Configuration string `json:"configuration,omitempty"`
}

type bosBootSet struct {
	Name             string   `json:"name,omitempty"`
	Path             string   `json:"path"`
	Type             string   `json:"type,omitempty"`
	Etag             string   `json:"etag,omitempty"`
	KernelParameters string   `json:"kernel_parameters,omitempty"`
	NodeGroups       []string `json:"node_groups,omitempty"`
	NodeList         []string `json:"node_list,omitempty"`
	NodeRolesGroups  []string `json:"node_roles_groups,omitempty"`
}

// BOS v1 keeps the configuration either under cfs or at the top level
type bosTemplateV1 struct {
	Name             string                `json:"name"`
	CfsURL           string                `json:"cfs_url,omitempty"`
	CfsBranch        string                `json:"cfs_branch,omitempty"`
	EnableCfs        bool                  `json:"enable_cfs"`
	Cfs              *bosCfs               `json:"cfs,omitempty"`
	CfsConfiguration string                `json:"cfs_configuration,omitempty"`
	BootSets         map[string]bosBootSet `json:"boot_sets"`
}

type bosTemplateV2 struct {
	Name      string                `json:"name"`
	Tenant    string                `json:"tenant,omitempty"`
	EnableCfs bool                  `json:"enable_cfs"`
	Cfs       *bosCfs               `json:"cfs,omitempty"`
	BootSets  map[string]bosBootSet `json:"boot_sets"`
}

func bootSetsFromBOS(in map[string]bosBootSet) map[string]types.BootSet {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]types.BootSet, len(in))
	for label, bs := range in {
		out[label] = types.BootSet{
			Name:             bs.Name,
			Path:             bs.Path,
			Type:             bs.Type,
			Etag:             bs.Etag,
			KernelParameters: bs.KernelParameters,
			NodeGroups:       bs.NodeGroups,
			NodeList:         bs.NodeList,
			NodeRolesGroups:  bs.NodeRolesGroups,
		}
	}
	return out
}

func templateFromBOSV1(t bosTemplateV1) types.BootTemplate {
	cfg := t.CfsConfiguration
	if t.Cfs != nil && t.Cfs.Configuration != "" {
		cfg = t.Cfs.Configuration
	}
	return types.BootTemplate{
		Name:              t.Name,
		ConfigurationName: cfg,
		BootSets:          bootSetsFromBOS(t.BootSets),
	}
}

func templateFromBOSV2(t bosTemplateV2) types.BootTemplate {
	var cfg string
	if t.Cfs != nil {
		cfg = t.Cfs.Configuration
	}
	return types.BootTemplate{
		Name:              t.Name,
		ConfigurationName: cfg,
		BootSets:          bootSetsFromBOS(t.BootSets),
	}
}

// ListBootTemplates returns every boot template
func (c *Client) ListBootTemplates(ctx context.Context) ([]types.BootTemplate, error) {
	if c.versions.BOS == "v1" {
		var wire []bosTemplateV1
		if err := c.do(ctx, ServiceBOS, "list session templates", http.MethodGet, "/bos/v1/sessiontemplate", nil, nil, &wire); err != nil {
			return nil, err
		}
		out := make([]types.BootTemplate, 0, len(wire))
		for _, t := range wire {
			out = append(out, templateFromBOSV1(t))
		}
		return out, nil
	}

	var wire []bosTemplateV2
	if err := c.do(ctx, ServiceBOS, "list session templates", http.MethodGet, "/bos/v2/sessiontemplates", nil, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]types.BootTemplate, 0, len(wire))
	for _, t := range wire {
		out = append(out, templateFromBOSV2(t))
	}
	return out, nil
}
