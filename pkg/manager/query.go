package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/mantle/pkg/bulk"
	"github.com/cuemby/mantle/pkg/correlate"
	"github.com/cuemby/mantle/pkg/gateway"
	"github.com/cuemby/mantle/pkg/types"
	"golang.org/x/sync/errgroup"
)

// NodeStates reads the inventory state of the target nodes in batches. On
// partial failure the states of the successful batches are returned
// together with the joined error.
func (m *Manager) NodeStates(ctx context.Context, groups, nodes []string) ([]types.NodeState, error) {
	targets, err := m.targets(ctx, groups, nodes)
	if err != nil {
		return nil, err
	}

	outcome := bulk.Execute(ctx, m.bulkOptions("node-status", m.opts.StatusBatchSize), targets, m.svc.GetNodeStates)
	publishFailures(m, "node-status", outcome)
	return bulk.Flatten(outcome.Results), outcome.Err()
}

// ConfigurationQuery selects configurations relevant to groups and nodes
type ConfigurationQuery struct {
	Groups []string
	Nodes  []string

	// Limit keeps the N most recently updated matches; <= 0 keeps all
	Limit      int
	MostRecent bool
}

// ImageQuery selects images built for or booted by groups and nodes
type ImageQuery struct {
	Groups     []string
	Nodes      []string
	Limit      int
	MostRecent bool
}

// inputs is one snapshot of the correlation sources
type inputs struct {
	templates      []types.BootTemplate
	sessions       []types.AutomationSession
	components     []types.Component
	configurations []types.Configuration
	images         []types.Image
}

type inputSet struct {
	components     bool
	configurations bool
	images         bool
}

// collect fetches the correlation sources concurrently. Component reads are
// batched and tolerate partial failure; every other source is required.
func (m *Manager) collect(ctx context.Context, nodes []string, want inputSet) (*inputs, error) {
	in := &inputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		in.templates, err = m.svc.ListBootTemplates(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.sessions, err = m.svc.ListSessions(gctx, gateway.SessionFilter{})
		return err
	})
	if want.configurations {
		g.Go(func() error {
			var err error
			in.configurations, err = m.svc.ListConfigurations(gctx)
			return err
		})
	}
	if want.images {
		g.Go(func() error {
			var err error
			in.images, err = m.svc.ListImages(gctx)
			return err
		})
	}
	if want.components && len(nodes) > 0 {
		g.Go(func() error {
			outcome := bulk.Execute(gctx, m.bulkOptions("components", m.opts.ComponentBatchSize), nodes, m.svc.GetComponents)
			publishFailures(m, "components", outcome)
			if outcome.Partial() {
				m.logger.Warn().Int("failed_batches", len(outcome.Failures)).Msg("Correlating with partial component data")
			} else if err := outcome.Err(); err != nil {
				return err
			}
			in.components = bulk.Flatten(outcome.Results)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect correlation inputs: %w", err)
	}
	return in, nil
}

// Configurations returns the configurations relevant to the query targets,
// oldest first.
func (m *Manager) Configurations(ctx context.Context, q ConfigurationQuery) ([]types.Configuration, error) {
	nodes, err := m.targets(ctx, q.Groups, q.Nodes)
	if err != nil {
		return nil, err
	}

	in, err := m.collect(ctx, nodes, inputSet{components: true, configurations: true})
	if err != nil {
		return nil, err
	}

	tuples := correlate.Correlate(in.templates, in.sessions, in.components)
	requested := unique(q.Groups, nodes)
	configs := correlate.FilterConfigurationsLimit(in.configurations, tuples, requested, q.Limit)

	if q.MostRecent {
		if latest := correlate.MostRecentConfiguration(configs); latest != nil {
			return []types.Configuration{*latest}, nil
		}
		return []types.Configuration{}, nil
	}
	return configs, nil
}

// Images returns the registry images produced for or booted by the query
// targets, oldest first.
func (m *Manager) Images(ctx context.Context, q ImageQuery) ([]correlate.ImageMatch, error) {
	nodes, err := m.targets(ctx, q.Groups, q.Nodes)
	if err != nil {
		return nil, err
	}

	in, err := m.collect(ctx, nodes, inputSet{images: true})
	if err != nil {
		return nil, err
	}

	tuples := correlate.Correlate(in.templates, in.sessions, nil)
	matches := correlate.LimitImages(correlate.ImagesForTargets(in.images, tuples, unique(q.Groups, nodes)), q.Limit)

	if q.MostRecent {
		if latest := correlate.MostRecentImage(matches); latest != nil {
			return []correlate.ImageMatch{*latest}, nil
		}
		return []correlate.ImageMatch{}, nil
	}
	return matches, nil
}

// NodeImage is the image a node is currently set to boot and the
// configuration that image was built with, when known
type NodeImage struct {
	Node          string `yaml:"node"`
	ImageID       string `yaml:"image_id"`
	Configuration string `yaml:"configuration,omitempty"`
	Kernel        string `yaml:"kernel,omitempty"`
}

// NodeImages reads the boot parameters of nodes, extracts the image ids from
// the kernel paths and resolves the configuration each image was built
// with. Results are sorted by node. Nodes without boot parameters are
// omitted; a kernel outside the boot image bucket yields an empty image id.
func (m *Manager) NodeImages(ctx context.Context, groups, nodes []string) ([]NodeImage, error) {
	targets, err := m.targets(ctx, groups, nodes)
	if err != nil {
		return nil, err
	}

	outcome := bulk.Execute(ctx, m.bulkOptions("boot-parameters", m.opts.StatusBatchSize), targets, m.svc.GetBootParameters)
	publishFailures(m, "boot-parameters", outcome)

	wanted := make(map[string]struct{}, len(targets))
	for _, n := range targets {
		wanted[n] = struct{}{}
	}

	byNode := make(map[string]NodeImage)
	booted := false
	for _, params := range bulk.Flatten(outcome.Results) {
		for _, host := range params.Hosts {
			if _, ok := wanted[host]; !ok {
				continue
			}
			byNode[host] = NodeImage{Node: host, ImageID: params.ImageID(), Kernel: params.Kernel}
			booted = booted || params.ImageID() != ""
		}
	}

	out := make([]NodeImage, 0, len(byNode))
	for _, ni := range byNode {
		out = append(out, ni)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })

	if !booted {
		return out, outcome.Err()
	}
	in, err := m.collect(ctx, nil, inputSet{})
	if err != nil {
		return out, errors.Join(outcome.Err(), err)
	}
	tuples := correlate.Correlate(in.templates, in.sessions, nil)
	for i := range out {
		out[i].Configuration, _ = correlate.ConfigurationForArtifact(tuples, out[i].ImageID)
	}
	return out, outcome.Err()
}

// ImageOfConfiguration finds the boot image built from configuration. It
// returns nil when no boot template or image session links the two.
func (m *Manager) ImageOfConfiguration(ctx context.Context, configuration string) (*types.CorrelationTuple, error) {
	if configuration == "" {
		return nil, fmt.Errorf("configuration name is required")
	}
	in, err := m.collect(ctx, nil, inputSet{})
	if err != nil {
		return nil, err
	}
	return correlate.ArtifactForConfiguration(correlate.Correlate(in.templates, in.sessions, nil), configuration), nil
}
