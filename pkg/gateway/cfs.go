package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cuemby/mantle/pkg/types"
)

// SessionFilter narrows a session listing
type SessionFilter struct {
	// MinAge and MaxAge use the service age syntax, e.g. "1d", "6h"
	MinAge string
	MaxAge string

	Status types.SessionState

	// NameContains is applied client-side
	NameContains string
}

// SessionSpec describes a session to create. Exactly one of Groups and
// AnsibleLimit should be set.
type SessionSpec struct {
	Name               string
	ConfigurationName  string
	ConfigurationLimit string
	AnsibleLimit       string
	Definition         types.SessionDefinition
	Groups             []types.TargetGroup
	Tags               map[string]string
}

// --- shared wire pieces ---

type cfsTargetGroup struct {
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

type cfsTarget struct {
	Definition string           `json:"definition,omitempty"`
	Groups     []cfsTargetGroup `json:"groups,omitempty"`
}

type cfsArtifact struct {
	ImageID  string `json:"image_id,omitempty"`
	ResultID string `json:"result_id,omitempty"`
	Type     string `json:"type,omitempty"`
}

func targetFromCFS(t cfsTarget) types.SessionTarget {
	out := types.SessionTarget{Definition: types.SessionDefinition(t.Definition)}
	for _, g := range t.Groups {
		out.Groups = append(out.Groups, types.TargetGroup{Name: g.Name, Members: g.Members})
	}
	return out
}

func targetToCFS(def types.SessionDefinition, groups []types.TargetGroup) cfsTarget {
	out := cfsTarget{Definition: string(def)}
	for _, g := range groups {
		out.Groups = append(out.Groups, cfsTargetGroup{Name: g.Name, Members: g.Members})
	}
	return out
}

func artifactsFromCFS(in []cfsArtifact) []types.SessionArtifact {
	var out []types.SessionArtifact
	for _, a := range in {
		out = append(out, types.SessionArtifact{ImageID: a.ImageID, ResultID: a.ResultID, Type: a.Type})
	}
	return out
}

// --- v2 schema ---

type cfsSessionV2 struct {
	Name          string `json:"name"`
	Configuration struct {
		Name  string `json:"name"`
		Limit string `json:"limit,omitempty"`
	} `json:"configuration"`
	Ansible struct {
		Limit string `json:"limit,omitempty"`
	} `json:"ansible"`
	Target cfsTarget `json:"target"`
	Status struct {
		Artifacts []cfsArtifact `json:"artifacts"`
		Session   struct {
			StartTime      string `json:"startTime"`
			CompletionTime string `json:"completionTime"`
			Status         string `json:"status"`
			Succeeded      string `json:"succeeded"`
		} `json:"session"`
	} `json:"status"`
	Tags map[string]string `json:"tags,omitempty"`
}

type cfsSessionCreateV2 struct {
	Name               string            `json:"name"`
	ConfigurationName  string            `json:"configurationName"`
	ConfigurationLimit string            `json:"configurationLimit,omitempty"`
	AnsibleLimit       string            `json:"ansibleLimit,omitempty"`
	Target             *cfsTarget        `json:"target,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
}

type cfsLayerV2 struct {
	Name     string `json:"name,omitempty"`
	CloneURL string `json:"cloneUrl"`
	Commit   string `json:"commit,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Playbook string `json:"playbook"`
}

type cfsConfigurationV2 struct {
	Name        string       `json:"name"`
	LastUpdated string       `json:"lastUpdated"`
	Layers      []cfsLayerV2 `json:"layers"`
}

type cfsComponentV2 struct {
	ID                  string `json:"id"`
	DesiredConfig       string `json:"desiredConfig,omitempty"`
	ErrorCount          int    `json:"errorCount"`
	RetryPolicy         int    `json:"retryPolicy"`
	Enabled             *bool  `json:"enabled,omitempty"`
	ConfigurationStatus string `json:"configurationStatus,omitempty"`
}

func sessionFromCFSV2(s cfsSessionV2) types.AutomationSession {
	return types.AutomationSession{
		Name:               s.Name,
		ConfigurationName:  s.Configuration.Name,
		ConfigurationLimit: s.Configuration.Limit,
		AnsibleLimit:       s.Ansible.Limit,
		Target:             targetFromCFS(s.Target),
		Status: types.SessionStatus{
			StartTime:      s.Status.Session.StartTime,
			CompletionTime: s.Status.Session.CompletionTime,
			Status:         types.SessionState(s.Status.Session.Status),
			Succeeded:      s.Status.Session.Succeeded,
			Artifacts:      artifactsFromCFS(s.Status.Artifacts),
		},
		Tags: s.Tags,
	}
}

func sessionToCFSV2(spec SessionSpec) cfsSessionCreateV2 {
	out := cfsSessionCreateV2{
		Name:               spec.Name,
		ConfigurationName:  spec.ConfigurationName,
		ConfigurationLimit: spec.ConfigurationLimit,
		AnsibleLimit:       spec.AnsibleLimit,
		Tags:               spec.Tags,
	}
	if spec.Definition != "" || len(spec.Groups) > 0 {
		t := targetToCFS(spec.Definition, spec.Groups)
		out.Target = &t
	}
	return out
}

func configurationFromCFSV2(c cfsConfigurationV2) types.Configuration {
	out := types.Configuration{Name: c.Name, LastUpdated: c.LastUpdated}
	for _, l := range c.Layers {
		out.Layers = append(out.Layers, types.Layer{
			Name: l.Name, CloneURL: l.CloneURL, Commit: l.Commit, Branch: l.Branch, Playbook: l.Playbook,
		})
	}
	return out
}

func componentFromCFSV2(c cfsComponentV2) types.Component {
	return types.Component{
		ID:                  c.ID,
		DesiredConfig:       c.DesiredConfig,
		ErrorCount:          c.ErrorCount,
		RetryPolicy:         c.RetryPolicy,
		Enabled:             c.Enabled,
		ConfigurationStatus: c.ConfigurationStatus,
	}
}

// cfsComponentPatchV2 is the PATCH body. A zero retry policy is left out so
// that patches never reset the service-side policy.
type cfsComponentPatchV2 struct {
	ID            string `json:"id"`
	DesiredConfig string `json:"desiredConfig,omitempty"`
	ErrorCount    int    `json:"errorCount"`
	RetryPolicy   int    `json:"retryPolicy,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

func componentToCFSV2(c types.Component) cfsComponentPatchV2 {
	return cfsComponentPatchV2{
		ID:            c.ID,
		DesiredConfig: c.DesiredConfig,
		ErrorCount:    c.ErrorCount,
		RetryPolicy:   c.RetryPolicy,
		Enabled:       c.Enabled,
	}
}

// --- v3 schema ---

type cfsSessionV3 struct {
	Name          string `json:"name"`
	Configuration struct {
		Name  string `json:"name"`
		Limit string `json:"limit,omitempty"`
	} `json:"configuration"`
	Ansible struct {
		Limit string `json:"limit,omitempty"`
	} `json:"ansible"`
	Target cfsTarget `json:"target"`
	Status struct {
		Artifacts []cfsArtifact `json:"artifacts"`
		Session   struct {
			StartTime      string `json:"start_time"`
			CompletionTime string `json:"completion_time"`
			Status         string `json:"status"`
			Succeeded      string `json:"succeeded"`
		} `json:"session"`
	} `json:"status"`
	Tags map[string]string `json:"tags,omitempty"`
}

type cfsSessionListV3 struct {
	Sessions []cfsSessionV3 `json:"sessions"`
}

type cfsSessionCreateV3 struct {
	Name               string            `json:"name"`
	ConfigurationName  string            `json:"configuration_name"`
	ConfigurationLimit string            `json:"configuration_limit,omitempty"`
	AnsibleLimit       string            `json:"ansible_limit,omitempty"`
	Target             *cfsTarget        `json:"target,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
}

type cfsLayerV3 struct {
	Name     string `json:"name,omitempty"`
	CloneURL string `json:"clone_url"`
	Commit   string `json:"commit,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Playbook string `json:"playbook"`
}

type cfsConfigurationV3 struct {
	Name        string       `json:"name"`
	LastUpdated string       `json:"last_updated"`
	Layers      []cfsLayerV3 `json:"layers"`
}

type cfsConfigurationListV3 struct {
	Configurations []cfsConfigurationV3 `json:"configurations"`
}

type cfsComponentV3 struct {
	ID                  string `json:"id"`
	DesiredConfig       string `json:"desired_config,omitempty"`
	ErrorCount          int    `json:"error_count"`
	RetryPolicy         int    `json:"retry_policy"`
	Enabled             *bool  `json:"enabled,omitempty"`
	ConfigurationStatus string `json:"configuration_status,omitempty"`
}

type cfsComponentListV3 struct {
	Components []cfsComponentV3 `json:"components"`
}

func sessionFromCFSV3(s cfsSessionV3) types.AutomationSession {
	return types.AutomationSession{
		Name:               s.Name,
		ConfigurationName:  s.Configuration.Name,
		ConfigurationLimit: s.Configuration.Limit,
		AnsibleLimit:       s.Ansible.Limit,
		Target:             targetFromCFS(s.Target),
		Status: types.SessionStatus{
			StartTime:      s.Status.Session.StartTime,
			CompletionTime: s.Status.Session.CompletionTime,
			Status:         types.SessionState(s.Status.Session.Status),
			Succeeded:      s.Status.Session.Succeeded,
			Artifacts:      artifactsFromCFS(s.Status.Artifacts),
		},
		Tags: s.Tags,
	}
}

func sessionToCFSV3(spec SessionSpec) cfsSessionCreateV3 {
	out := cfsSessionCreateV3{
		Name:               spec.Name,
		ConfigurationName:  spec.ConfigurationName,
		ConfigurationLimit: spec.ConfigurationLimit,
		AnsibleLimit:       spec.AnsibleLimit,
		Tags:               spec.Tags,
	}
	if spec.Definition != "" || len(spec.Groups) > 0 {
		t := targetToCFS(spec.Definition, spec.Groups)
		out.Target = &t
	}
	return out
}

func configurationFromCFSV3(c cfsConfigurationV3) types.Configuration {
	out := types.Configuration{Name: c.Name, LastUpdated: c.LastUpdated}
	for _, l := range c.Layers {
		out.Layers = append(out.Layers, types.Layer{
			Name: l.Name, CloneURL: l.CloneURL, Commit: l.Commit, Branch: l.Branch, Playbook: l.Playbook,
		})
	}
	return out
}

func componentFromCFSV3(c cfsComponentV3) types.Component {
	return types.Component{
		ID:                  c.ID,
		DesiredConfig:       c.DesiredConfig,
		ErrorCount:          c.ErrorCount,
		RetryPolicy:         c.RetryPolicy,
		Enabled:             c.Enabled,
		ConfigurationStatus: c.ConfigurationStatus,
	}
}

type cfsComponentPatchV3 struct {
	ID            string `json:"id"`
	DesiredConfig string `json:"desired_config,omitempty"`
	ErrorCount    int    `json:"error_count"`
	RetryPolicy   int    `json:"retry_policy,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

func componentToCFSV3(c types.Component) cfsComponentPatchV3 {
	return cfsComponentPatchV3{
		ID:            c.ID,
		DesiredConfig: c.DesiredConfig,
		ErrorCount:    c.ErrorCount,
		RetryPolicy:   c.RetryPolicy,
		Enabled:       c.Enabled,
	}
}

// --- operations ---

func (c *Client) cfsPath(resource string) string {
	return "/cfs/" + c.versions.CFS + "/" + resource
}

// ListSessions returns the sessions matching filter
func (c *Client) ListSessions(ctx context.Context, filter SessionFilter) ([]types.AutomationSession, error) {
	query := url.Values{}
	if filter.MinAge != "" {
		query.Set("min_age", filter.MinAge)
	}
	if filter.MaxAge != "" {
		query.Set("max_age", filter.MaxAge)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}

	var out []types.AutomationSession
	if c.versions.CFS == "v2" {
		var wire []cfsSessionV2
		if err := c.do(ctx, ServiceCFS, "list sessions", http.MethodGet, c.cfsPath("sessions"), query, nil, &wire); err != nil {
			return nil, err
		}
		for _, s := range wire {
			out = append(out, sessionFromCFSV2(s))
		}
	} else {
		var wire cfsSessionListV3
		if err := c.do(ctx, ServiceCFS, "list sessions", http.MethodGet, c.cfsPath("sessions"), query, nil, &wire); err != nil {
			return nil, err
		}
		for _, s := range wire.Sessions {
			out = append(out, sessionFromCFSV3(s))
		}
	}

	if filter.NameContains == "" {
		return out, nil
	}
	filtered := out[:0]
	for _, s := range out {
		if strings.Contains(s.Name, filter.NameContains) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// GetSession returns one session by name
func (c *Client) GetSession(ctx context.Context, name string) (*types.AutomationSession, error) {
	path := c.cfsPath("sessions/" + url.PathEscape(name))
	if c.versions.CFS == "v2" {
		var wire cfsSessionV2
		if err := c.do(ctx, ServiceCFS, "get session", http.MethodGet, path, nil, nil, &wire); err != nil {
			return nil, err
		}
		s := sessionFromCFSV2(wire)
		return &s, nil
	}

	var wire cfsSessionV3
	if err := c.do(ctx, ServiceCFS, "get session", http.MethodGet, path, nil, nil, &wire); err != nil {
		return nil, err
	}
	s := sessionFromCFSV3(wire)
	return &s, nil
}

// CreateSession submits a new configuration session
func (c *Client) CreateSession(ctx context.Context, spec SessionSpec) (*types.AutomationSession, error) {
	if c.versions.CFS == "v2" {
		var wire cfsSessionV2
		if err := c.do(ctx, ServiceCFS, "create session", http.MethodPost, c.cfsPath("sessions"), nil, sessionToCFSV2(spec), &wire); err != nil {
			return nil, err
		}
		s := sessionFromCFSV2(wire)
		return &s, nil
	}

	var wire cfsSessionV3
	if err := c.do(ctx, ServiceCFS, "create session", http.MethodPost, c.cfsPath("sessions"), nil, sessionToCFSV3(spec), &wire); err != nil {
		return nil, err
	}
	s := sessionFromCFSV3(wire)
	return &s, nil
}

// ListConfigurations returns every configuration
func (c *Client) ListConfigurations(ctx context.Context) ([]types.Configuration, error) {
	var out []types.Configuration
	if c.versions.CFS == "v2" {
		var wire []cfsConfigurationV2
		if err := c.do(ctx, ServiceCFS, "list configurations", http.MethodGet, c.cfsPath("configurations"), nil, nil, &wire); err != nil {
			return nil, err
		}
		for _, cfg := range wire {
			out = append(out, configurationFromCFSV2(cfg))
		}
		return out, nil
	}

	var wire cfsConfigurationListV3
	if err := c.do(ctx, ServiceCFS, "list configurations", http.MethodGet, c.cfsPath("configurations"), nil, nil, &wire); err != nil {
		return nil, err
	}
	for _, cfg := range wire.Configurations {
		out = append(out, configurationFromCFSV3(cfg))
	}
	return out, nil
}

// GetComponents returns the components with the given ids. Callers batch
// ids to stay under the service query ceiling.
func (c *Client) GetComponents(ctx context.Context, ids []string) ([]types.Component, error) {
	query := url.Values{}
	if len(ids) > 0 {
		query.Set("ids", strings.Join(ids, ","))
	}

	var out []types.Component
	if c.versions.CFS == "v2" {
		var wire []cfsComponentV2
		if err := c.do(ctx, ServiceCFS, "get components", http.MethodGet, c.cfsPath("components"), query, nil, &wire); err != nil {
			return nil, err
		}
		for _, comp := range wire {
			out = append(out, componentFromCFSV2(comp))
		}
		return out, nil
	}

	var wire cfsComponentListV3
	if err := c.do(ctx, ServiceCFS, "get components", http.MethodGet, c.cfsPath("components"), query, nil, &wire); err != nil {
		return nil, err
	}
	for _, comp := range wire.Components {
		out = append(out, componentFromCFSV3(comp))
	}
	return out, nil
}

// PatchComponents updates the given components and returns them as stored
func (c *Client) PatchComponents(ctx context.Context, components []types.Component) ([]types.Component, error) {
	var out []types.Component
	if c.versions.CFS == "v2" {
		body := make([]cfsComponentPatchV2, 0, len(components))
		for _, comp := range components {
			body = append(body, componentToCFSV2(comp))
		}
		var wire []cfsComponentV2
		if err := c.do(ctx, ServiceCFS, "patch components", http.MethodPatch, c.cfsPath("components"), nil, body, &wire); err != nil {
			return nil, err
		}
		for _, comp := range wire {
			out = append(out, componentFromCFSV2(comp))
		}
		return out, nil
	}

	body := make([]cfsComponentPatchV3, 0, len(components))
	for _, comp := range components {
		body = append(body, componentToCFSV3(comp))
	}
	var wire cfsComponentListV3
	if err := c.do(ctx, ServiceCFS, "patch components", http.MethodPatch, c.cfsPath("components"), nil, body, &wire); err != nil {
		return nil, err
	}
	for _, comp := range wire.Components {
		out = append(out, componentFromCFSV3(comp))
	}
	return out, nil
}
