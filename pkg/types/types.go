package types

import (
	"strings"
)

// Group is a named, administrator-managed set of nodes. Groups double as
// authorization scopes.
type Group struct {
	Label          string   `yaml:"label"`
	Description    string   `yaml:"description,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
	Members        []string `yaml:"members,omitempty"`
	ExclusiveGroup string   `yaml:"exclusive_group,omitempty"`
}

// HasMember reports whether xname belongs to the group
func (g *Group) HasMember(xname string) bool {
	for _, m := range g.Members {
		if m == xname {
			return true
		}
	}
	return false
}

// BootTemplate maps a target (groups or a node list) to a boot image and
// a configuration.
type BootTemplate struct {
	Name              string             `yaml:"name"`
	ConfigurationName string             `yaml:"configuration,omitempty"`
	BootSets          map[string]BootSet `yaml:"boot_sets,omitempty"`
}

// BootSet is one labelled entry of a boot template
type BootSet struct {
	Name             string   `yaml:"name,omitempty"`
	Path             string   `yaml:"path"`
	Type             string   `yaml:"type,omitempty"`
	Etag             string   `yaml:"etag,omitempty"`
	KernelParameters string   `yaml:"kernel_parameters,omitempty"`
	NodeGroups       []string `yaml:"node_groups,omitempty"`
	NodeList         []string `yaml:"node_list,omitempty"`
	NodeRolesGroups  []string `yaml:"node_roles_groups,omitempty"`
}

// Target returns the boot set target: node groups when present, otherwise the
// node list. Never nil.
func (b BootSet) Target() []string {
	if len(b.NodeGroups) > 0 {
		return append([]string{}, b.NodeGroups...)
	}
	return append([]string{}, b.NodeList...)
}

// SessionDefinition is the kind of target a configuration session applies to
type SessionDefinition string

const (
	SessionDefinitionImage   SessionDefinition = "image"
	SessionDefinitionDynamic SessionDefinition = "dynamic"
	SessionDefinitionSpec    SessionDefinition = "spec"
	SessionDefinitionRepair  SessionDefinition = "repair"
)

// SessionState is the coarse lifecycle state of a configuration session
type SessionState string

const (
	SessionStatePending  SessionState = "pending"
	SessionStateRunning  SessionState = "running"
	SessionStateComplete SessionState = "complete"
)

// AutomationSession is a server-side job applying configuration layers to
// either a group target (image builds) or a dynamic node list.
type AutomationSession struct {
	Name               string            `yaml:"name"`
	ConfigurationName  string            `yaml:"configuration"`
	ConfigurationLimit string            `yaml:"configuration_limit,omitempty"`
	AnsibleLimit       string            `yaml:"ansible_limit,omitempty"`
	Target             SessionTarget     `yaml:"target"`
	Status             SessionStatus     `yaml:"status"`
	Tags               map[string]string `yaml:"tags,omitempty"`
}

// SessionTarget describes what a session configures
type SessionTarget struct {
	Definition SessionDefinition `yaml:"definition"`
	Groups     []TargetGroup     `yaml:"groups,omitempty"`
}

// TargetGroup is a named group inside a session target
type TargetGroup struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members,omitempty"`
}

// SessionStatus holds timing, state and produced artifacts of a session
type SessionStatus struct {
	StartTime      string            `yaml:"start_time,omitempty"`
	CompletionTime string            `yaml:"completion_time,omitempty"`
	Status         SessionState      `yaml:"status,omitempty"`
	Succeeded      string            `yaml:"succeeded,omitempty"`
	Artifacts      []SessionArtifact `yaml:"artifacts,omitempty"`
}

// SessionArtifact is an image produced by an image-building session
type SessionArtifact struct {
	ImageID  string `yaml:"image_id,omitempty"`
	ResultID string `yaml:"result_id,omitempty"`
	Type     string `yaml:"type,omitempty"`
}

// IsGroupTarget reports whether the session targets groups instead of a node list
func (s *AutomationSession) IsGroupTarget() bool {
	return s.Target.Definition == SessionDefinitionImage
}

// Complete reports whether the session reached its terminal state
func (s *AutomationSession) Complete() bool {
	return s.Status.Status == SessionStateComplete
}

// Succeeded reports whether a complete session finished successfully
func (s *AutomationSession) Succeeded() bool {
	return s.Complete() && strings.EqualFold(s.Status.Succeeded, "true")
}

// TargetNames returns the group names of a group target, or the comma separated
// nodes of the ansible limit otherwise. Never nil.
func (s *AutomationSession) TargetNames() []string {
	out := []string{}
	if s.IsGroupTarget() {
		for _, g := range s.Target.Groups {
			out = append(out, g.Name)
		}
		return out
	}
	for _, tok := range strings.Split(s.AnsibleLimit, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// FirstResultID returns the result id of the first artifact. Only the first
// artifact is authoritative.
func (s *AutomationSession) FirstResultID() string {
	if len(s.Status.Artifacts) == 0 {
		return ""
	}
	return s.Status.Artifacts[0].ResultID
}

// Component is the per-node desired configuration record
type Component struct {
	ID                  string `yaml:"id"`
	DesiredConfig       string `yaml:"desired_config,omitempty"`
	ErrorCount          int    `yaml:"error_count"`
	RetryPolicy         int    `yaml:"retry_policy"`
	Enabled             *bool  `yaml:"enabled,omitempty"`
	ConfigurationStatus string `yaml:"configuration_status,omitempty"`
}

// RetriesExhausted reports whether the automation batcher stopped retrying
func (c *Component) RetriesExhausted() bool {
	return c.RetryPolicy > 0 && c.ErrorCount >= c.RetryPolicy
}

// Configuration is a named, layered declarative configuration
type Configuration struct {
	Name        string  `yaml:"name"`
	LastUpdated string  `yaml:"last_updated"`
	Layers      []Layer `yaml:"layers,omitempty"`
}

// Layer is one playbook layer of a configuration
type Layer struct {
	Name     string `yaml:"name,omitempty"`
	CloneURL string `yaml:"clone_url"`
	Commit   string `yaml:"commit,omitempty"`
	Branch   string `yaml:"branch,omitempty"`
	Playbook string `yaml:"playbook"`
}

// Image is a built boot artifact in the image registry
type Image struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Created  string `yaml:"created,omitempty"`
	LinkPath string `yaml:"link_path,omitempty"`
	LinkEtag string `yaml:"link_etag,omitempty"`
}

// NodeState is the inventory view of one node
type NodeState struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type,omitempty"`
	State   string `yaml:"state"`
	Flag    string `yaml:"flag,omitempty"`
	Enabled bool   `yaml:"enabled"`
	Role    string `yaml:"role,omitempty"`
	SubRole string `yaml:"sub_role,omitempty"`
	NID     int    `yaml:"nid,omitempty"`
}

// BootParameters is the boot-parameter service record for a set of hosts
type BootParameters struct {
	Hosts  []string `yaml:"hosts"`
	Kernel string   `yaml:"kernel,omitempty"`
	Initrd string   `yaml:"initrd,omitempty"`
	Params string   `yaml:"params,omitempty"`
}

// ImageID extracts the image id from a kernel path of the form
// s3://boot-images/<id>/kernel. Returns "" when the path does not match.
func (b *BootParameters) ImageID() string {
	const prefix = "s3://boot-images/"
	if !strings.HasPrefix(b.Kernel, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(b.Kernel, prefix)
	id, _, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	return id
}

// PowerOperation is a power-control transition operation
type PowerOperation string

const (
	PowerOn          PowerOperation = "on"
	PowerOff         PowerOperation = "off"
	PowerSoftOff     PowerOperation = "soft-off"
	PowerSoftRestart PowerOperation = "soft-restart"
	PowerHardRestart PowerOperation = "hard-restart"
	PowerForceOff    PowerOperation = "force-off"
	PowerInit        PowerOperation = "init"
)

// ValidPowerOperation reports whether op is a known transition operation
func ValidPowerOperation(op PowerOperation) bool {
	switch op {
	case PowerOn, PowerOff, PowerSoftOff, PowerSoftRestart, PowerHardRestart, PowerForceOff, PowerInit:
		return true
	}
	return false
}

// TransitionStatus is the overall state of a power transition
type TransitionStatus string

const (
	TransitionNew        TransitionStatus = "new"
	TransitionInProgress TransitionStatus = "in-progress"
	TransitionCompleted  TransitionStatus = "completed"
	TransitionAborted    TransitionStatus = "aborted"
)

// Transition is a submitted, asynchronously executed power operation
type Transition struct {
	ID         string           `yaml:"id"`
	Operation  PowerOperation   `yaml:"operation"`
	Location   []string         `yaml:"location,omitempty"`
	Status     TransitionStatus `yaml:"status"`
	TaskCounts TaskCounts       `yaml:"task_counts"`
	Tasks      []TransitionTask `yaml:"tasks,omitempty"`
}

// TaskCounts breaks a transition down by per-node task state
type TaskCounts struct {
	Total       int `yaml:"total"`
	New         int `yaml:"new"`
	InProgress  int `yaml:"in_progress"`
	Failed      int `yaml:"failed"`
	Succeeded   int `yaml:"succeeded"`
	Unsupported int `yaml:"unsupported"`
}

// TransitionTask is the per-node task of a transition
type TransitionTask struct {
	Xname       string `yaml:"xname"`
	Status      string `yaml:"status"`
	Description string `yaml:"description,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

// Completed reports whether the transition concluded
func (t *Transition) Completed() bool {
	return t.Status == TransitionCompleted
}

// PartialFailure reports whether some node tasks failed. A completed
// transition may still carry failed tasks.
func (t *Transition) PartialFailure() bool {
	return t.TaskCounts.Failed > 0
}

// FailedNodes returns the xnames of failed tasks
func (t *Transition) FailedNodes() []string {
	var out []string
	for _, task := range t.Tasks {
		if task.Status == "failed" {
			out = append(out, task.Xname)
		}
	}
	return out
}

// PowerState is the observed power state of a node
type PowerState string

const (
	PowerStateOn        PowerState = "on"
	PowerStateOff       PowerState = "off"
	PowerStateUndefined PowerState = "undefined"
)

// PowerStatus partitions nodes by observed power state
type PowerStatus struct {
	On        []string `yaml:"on"`
	Off       []string `yaml:"off"`
	Undefined []string `yaml:"undefined,omitempty"`
}

// In returns the nodes observed in the given state
func (p *PowerStatus) In(state PowerState) []string {
	switch state {
	case PowerStateOn:
		return p.On
	case PowerStateOff:
		return p.Off
	default:
		return p.Undefined
	}
}

// Mismatched returns the nodes of want that are not observed in state, in the
// order of want.
func (p *PowerStatus) Mismatched(state PowerState, want []string) []string {
	in := make(map[string]struct{}, len(want))
	for _, id := range p.In(state) {
		in[id] = struct{}{}
	}
	out := []string{}
	for _, id := range want {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// TupleSource identifies which service a correlation tuple came from. The
// numeric order is the first-writer-wins precedence.
type TupleSource int

const (
	SourceBootTemplate TupleSource = iota
	SourceSession
	SourceComponent
)

func (s TupleSource) String() string {
	switch s {
	case SourceBootTemplate:
		return "boot-template"
	case SourceSession:
		return "session"
	case SourceComponent:
		return "component"
	default:
		return "unknown"
	}
}

// CorrelationTuple links an artifact, a configuration and the targets they
// were applied to. Derived on every query, never stored.
type CorrelationTuple struct {
	ArtifactID        string      `yaml:"artifact_id"`
	ConfigurationName string      `yaml:"configuration"`
	Targets           []string    `yaml:"targets"`
	Node              string      `yaml:"node,omitempty"`
	Source            TupleSource `yaml:"source"`
	SourceName        string      `yaml:"source_name"`
}

// HasArtifact reports whether the tuple refers to a real artifact
func (c *CorrelationTuple) HasArtifact() bool {
	return c.ArtifactID != ""
}
