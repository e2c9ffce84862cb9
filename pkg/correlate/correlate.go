package correlate

import (
	"sort"
	"strings"

	"github.com/cuemby/mantle/pkg/types"
)

const (
	// BootImagePrefix and BootImageManifestSuffix wrap the artifact id in a
	// boot set image path: s3://boot-images/<artifact id>/manifest.json
	BootImagePrefix         = "s3://boot-images/"
	BootImageManifestSuffix = "/manifest.json"
)

// ArtifactIDFromPath extracts the artifact id from a boot set image path:
// whatever lies between the prefix and the suffix. Prefix and suffix must
// not overlap and the id must be non-empty.
func ArtifactIDFromPath(path string) (string, bool) {
	if len(path) <= len(BootImagePrefix)+len(BootImageManifestSuffix) {
		return "", false
	}
	if !strings.HasPrefix(path, BootImagePrefix) || !strings.HasSuffix(path, BootImageManifestSuffix) {
		return "", false
	}
	return path[len(BootImagePrefix) : len(path)-len(BootImageManifestSuffix)], true
}

// Correlate rebuilds (artifact, configuration, targets) tuples from boot
// templates, configuration sessions and per-node component assignments.
//
// Tuples are emitted in source precedence order (templates, sessions,
// components) and, within a source, ordered by record name, so the result
// does not depend on the order the services returned records in.
func Correlate(templates []types.BootTemplate, sessions []types.AutomationSession, components []types.Component) []types.CorrelationTuple {
	out := make([]types.CorrelationTuple, 0, len(templates)+len(sessions)+len(components))
	out = append(out, FromBootTemplates(templates)...)
	out = append(out, FromSessions(sessions)...)
	out = append(out, FromComponents(components)...)
	return out
}

// FromBootTemplates emits one tuple per boot set with a parseable image path
func FromBootTemplates(templates []types.BootTemplate) []types.CorrelationTuple {
	sorted := append([]types.BootTemplate{}, templates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var out []types.CorrelationTuple
	for _, tpl := range sorted {
		labels := make([]string, 0, len(tpl.BootSets))
		for label := range tpl.BootSets {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		for _, label := range labels {
			bs := tpl.BootSets[label]
			id, ok := ArtifactIDFromPath(bs.Path)
			if !ok {
				continue
			}
			out = append(out, types.CorrelationTuple{
				ArtifactID:        id,
				ConfigurationName: tpl.ConfigurationName,
				Targets:           bs.Target(),
				Source:            types.SourceBootTemplate,
				SourceName:        tpl.Name,
			})
		}
	}
	return out
}

// FromSessions emits exactly one tuple per session. Sessions without a
// produced artifact get an empty ArtifactID, which never matches an artifact
// filter but still carries the configuration name.
func FromSessions(sessions []types.AutomationSession) []types.CorrelationTuple {
	sorted := append([]types.AutomationSession{}, sessions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]types.CorrelationTuple, 0, len(sorted))
	for i := range sorted {
		s := &sorted[i]
		out = append(out, types.CorrelationTuple{
			ArtifactID:        s.FirstResultID(),
			ConfigurationName: s.ConfigurationName,
			Targets:           s.TargetNames(),
			Source:            types.SourceSession,
			SourceName:        s.Name,
		})
	}
	return out
}

// FromComponents emits a target-less tuple for every component with a
// desired configuration. The node is recorded separately from Targets.
func FromComponents(components []types.Component) []types.CorrelationTuple {
	sorted := append([]types.Component{}, components...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []types.CorrelationTuple
	for _, c := range sorted {
		if c.DesiredConfig == "" {
			continue
		}
		out = append(out, types.CorrelationTuple{
			ConfigurationName: c.DesiredConfig,
			Targets:           []string{},
			Node:              c.ID,
			Source:            types.SourceComponent,
			SourceName:        c.ID,
		})
	}
	return out
}

// Intersects reports whether the tuple targets (or its component node)
// overlap with the requested groups or nodes.
func Intersects(t types.CorrelationTuple, requested map[string]struct{}) bool {
	if t.Node != "" {
		if _, ok := requested[t.Node]; ok {
			return true
		}
	}
	for _, target := range t.Targets {
		if _, ok := requested[target]; ok {
			return true
		}
	}
	return false
}

// ForTargets returns the tuples that target any of requested, preserving order
func ForTargets(tuples []types.CorrelationTuple, requested []string) []types.CorrelationTuple {
	set := toSet(requested)
	var out []types.CorrelationTuple
	for _, t := range tuples {
		if Intersects(t, set) {
			out = append(out, t)
		}
	}
	return out
}

// ArtifactForConfiguration returns the first tuple (in source precedence
// order) that produced a real artifact from the named configuration.
func ArtifactForConfiguration(tuples []types.CorrelationTuple, configuration string) *types.CorrelationTuple {
	for i := range tuples {
		if tuples[i].HasArtifact() && tuples[i].ConfigurationName == configuration {
			t := tuples[i]
			return &t
		}
	}
	return nil
}

// ConfigurationForArtifact returns the configuration of the first tuple that
// references artifactID. Empty ids never resolve.
func ConfigurationForArtifact(tuples []types.CorrelationTuple, artifactID string) (string, bool) {
	if artifactID == "" {
		return "", false
	}
	for _, t := range tuples {
		if t.ArtifactID == artifactID && t.ConfigurationName != "" {
			return t.ConfigurationName, true
		}
	}
	return "", false
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
