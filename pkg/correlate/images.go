package correlate

import (
	"sort"
	"strings"

	"github.com/cuemby/mantle/pkg/types"
)

// ImageMatch is an image-registry record joined with the tuple that
// references it.
type ImageMatch struct {
	Image             types.Image       `yaml:"image"`
	ConfigurationName string            `yaml:"configuration,omitempty"`
	Targets           []string          `yaml:"targets"`
	Source            types.TupleSource `yaml:"source"`
}

// ImagesForTargets joins images with the artifact tuples targeting requested.
// An image matches when its id contains a non-empty artifact id. The first
// tuple wins when several reference the same image. Results are sorted by
// image creation time, ascending.
func ImagesForTargets(images []types.Image, tuples []types.CorrelationTuple, requested []string) []ImageMatch {
	candidates := ForTargets(tuples, requested)

	seen := make(map[string]struct{})
	out := []ImageMatch{}
	for _, img := range images {
		if _, dup := seen[img.ID]; dup {
			continue
		}
		for _, t := range candidates {
			if !t.HasArtifact() || !strings.Contains(img.ID, t.ArtifactID) {
				continue
			}
			seen[img.ID] = struct{}{}
			out = append(out, ImageMatch{
				Image:             img,
				ConfigurationName: t.ConfigurationName,
				Targets:           t.Targets,
				Source:            t.Source,
			})
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Image.Created < out[j].Image.Created })
	return out
}

// LimitImages keeps the last n matches of a sorted list. n <= 0 means no limit.
func LimitImages(matches []ImageMatch, n int) []ImageMatch {
	if n <= 0 || n >= len(matches) {
		return matches
	}
	return matches[len(matches)-n:]
}

// MostRecentImage returns the last match of a sorted list
func MostRecentImage(matches []ImageMatch) *ImageMatch {
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]
	return &m
}
