package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/mantle/pkg/manager"
	"github.com/cuemby/mantle/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest of cluster operations",
	Long: `Apply one or more operations described in a YAML file. Documents are
applied in order and the first failure stops the run.

Examples:
  # Power a group on and configure it
  mantle apply -f bringup.yaml

Manifest:
  apiVersion: mantle/v1
  kind: Power
  metadata:
    name: bringup
  spec:
    groups: [clusterA]
    operation: on
    wait: true`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply, - for stdin (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Manifest is one document of an apply file
type Manifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ManifestMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ManifestMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

type powerSpec struct {
	Groups    []string             `yaml:"groups"`
	Nodes     []string             `yaml:"nodes"`
	Operation types.PowerOperation `yaml:"operation"`
	Wait      bool                 `yaml:"wait"`
}

type desiredConfigurationSpec struct {
	Groups        []string `yaml:"groups"`
	Nodes         []string `yaml:"nodes"`
	Configuration string   `yaml:"configuration"`
}

type sessionSpec struct {
	Name               string              `yaml:"name"`
	Configuration      string              `yaml:"configuration"`
	ConfigurationLimit string              `yaml:"configuration_limit"`
	Groups             []string            `yaml:"groups"`
	Nodes              []string            `yaml:"nodes"`
	Image              []types.TargetGroup `yaml:"image"`
	Tags               map[string]string   `yaml:"tags"`
	Wait               bool                `yaml:"wait"`
}

type groupMembershipSpec struct {
	Group string   `yaml:"group"`
	Nodes []string `yaml:"nodes"`
}

const manifestAPIVersion = "mantle/v1"

// decodeManifests reads every YAML document from r and checks the envelope
func decodeManifests(r io.Reader) ([]Manifest, error) {
	dec := yaml.NewDecoder(r)
	var out []Manifest
	for {
		var m Manifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if m.Kind == "" && m.APIVersion == "" {
			continue
		}
		if m.APIVersion != manifestAPIVersion {
			return nil, fmt.Errorf("%s %q: unsupported apiVersion %q", m.Kind, m.Metadata.Name, m.APIVersion)
		}
		switch m.Kind {
		case "Power", "DesiredConfiguration", "Session", "GroupMembership":
		default:
			return nil, fmt.Errorf("unsupported resource kind: %s", m.Kind)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no resources found")
	}
	return out, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	var r io.Reader = os.Stdin
	if filename != "-" {
		f, err := os.Open(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()
		r = f
	}

	manifests, err := decodeManifests(r)
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	stop := s.followProgress()
	defer stop()

	for i := range manifests {
		m := &manifests[i]
		if err := applyManifest(cmd.Context(), s, m); err != nil {
			return fmt.Errorf("%s %q: %w", m.Kind, m.Metadata.Name, err)
		}
	}
	return nil
}

func applyManifest(ctx context.Context, s *session, m *Manifest) error {
	switch m.Kind {
	case "Power":
		var spec powerSpec
		if err := m.Spec.Decode(&spec); err != nil {
			return err
		}
		if err := s.checkAccess(ctx, spec.Groups); err != nil {
			return err
		}
		report, err := s.mgr.Power(ctx, manager.PowerRequest{
			Groups:    spec.Groups,
			Nodes:     spec.Nodes,
			Operation: spec.Operation,
			Wait:      spec.Wait,
		})
		if err != nil {
			return err
		}
		if failed := report.FailedNodes(); spec.Wait && len(failed) > 0 {
			return fmt.Errorf("power %s failed for %d nodes", spec.Operation, len(failed))
		}
		fmt.Printf("✓ Power %s: %s (%d nodes)\n", spec.Operation, m.Metadata.Name, len(report.Nodes))

	case "DesiredConfiguration":
		var spec desiredConfigurationSpec
		if err := m.Spec.Decode(&spec); err != nil {
			return err
		}
		if spec.Configuration == "" {
			return fmt.Errorf("configuration is required")
		}
		if err := s.checkAccess(ctx, spec.Groups); err != nil {
			return err
		}
		patched, err := s.mgr.SetDesiredConfiguration(ctx, spec.Groups, spec.Nodes, spec.Configuration)
		if err != nil {
			return err
		}
		fmt.Printf("✓ DesiredConfiguration %s: %d nodes\n", m.Metadata.Name, len(patched))

	case "Session":
		var spec sessionSpec
		if err := m.Spec.Decode(&spec); err != nil {
			return err
		}
		if err := s.checkAccess(ctx, spec.Groups); err != nil {
			return err
		}
		name := spec.Name
		if name == "" {
			name = m.Metadata.Name
		}
		session, err := s.mgr.CreateSession(ctx, manager.SessionRequest{
			Name:               name,
			ConfigurationName:  spec.Configuration,
			ConfigurationLimit: spec.ConfigurationLimit,
			Groups:             spec.Groups,
			Nodes:              spec.Nodes,
			Image:              spec.Image,
			Tags:               spec.Tags,
			Wait:               spec.Wait,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Session %s: %s\n", session.Name, orDash(string(session.Status.Status)))

	case "GroupMembership":
		var spec groupMembershipSpec
		if err := m.Spec.Decode(&spec); err != nil {
			return err
		}
		if spec.Group == "" {
			return fmt.Errorf("group is required")
		}
		if err := s.checkAccess(ctx, []string{spec.Group}); err != nil {
			return err
		}
		added, err := s.mgr.AddGroupMembers(ctx, spec.Group, spec.Nodes)
		if err != nil {
			return err
		}
		fmt.Printf("✓ GroupMembership %s: %d nodes added\n", spec.Group, len(added))
	}
	return nil
}
