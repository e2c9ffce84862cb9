package correlate

import (
	"sort"
	"strings"

	"github.com/cuemby/mantle/pkg/types"
)

// ByLastUpdated orders configurations ascending by their ISO-8601
// lastUpdated timestamp, compared lexically. All configuration listings use
// this single direction; the most recent element is always the last one.
func ByLastUpdated(a, b types.Configuration) bool {
	return a.LastUpdated < b.LastUpdated
}

// SortConfigurations sorts in place with ByLastUpdated, keeping the relative
// order of equal timestamps.
func SortConfigurations(configs []types.Configuration) {
	sort.SliceStable(configs, func(i, j int) bool { return ByLastUpdated(configs[i], configs[j]) })
}

// LimitConfigurations keeps the last n elements of a sorted list. n <= 0
// means no limit.
func LimitConfigurations(configs []types.Configuration, n int) []types.Configuration {
	if n <= 0 || n >= len(configs) {
		return configs
	}
	return configs[len(configs)-n:]
}

// MostRecentConfiguration returns the last configuration after sorting, or
// nil when configs is empty.
func MostRecentConfiguration(configs []types.Configuration) *types.Configuration {
	if len(configs) == 0 {
		return nil
	}
	sorted := append([]types.Configuration{}, configs...)
	SortConfigurations(sorted)
	c := sorted[len(sorted)-1]
	return &c
}

// FilterConfigurations returns the configurations relevant to requested
// groups or nodes: those whose name contains a requested name, plus those
// named by a tuple that targets a requested name. The result is deduplicated
// by name and sorted with ByLastUpdated.
func FilterConfigurations(configs []types.Configuration, tuples []types.CorrelationTuple, requested []string) []types.Configuration {
	set := toSet(requested)

	fromTuples := make(map[string]struct{})
	for _, t := range tuples {
		if t.ConfigurationName != "" && Intersects(t, set) {
			fromTuples[t.ConfigurationName] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	out := []types.Configuration{}
	for _, c := range configs {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		_, byTuple := fromTuples[c.Name]
		if !byTuple && !nameContainsAny(c.Name, set) {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}

	SortConfigurations(out)
	return out
}

// FilterConfigurationsLimit is FilterConfigurations followed by
// LimitConfigurations.
func FilterConfigurationsLimit(configs []types.Configuration, tuples []types.CorrelationTuple, requested []string, limit int) []types.Configuration {
	return LimitConfigurations(FilterConfigurations(configs, tuples, requested), limit)
}

// Configurations are conventionally named <group>-cos-config-<date>; this is
// a naming convention, not a guarantee, so tuple matches are unioned in.
func nameContainsAny(name string, requested map[string]struct{}) bool {
	for r := range requested {
		if r != "" && strings.Contains(name, r) {
			return true
		}
	}
	return false
}
