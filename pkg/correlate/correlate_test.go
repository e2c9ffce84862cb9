package correlate

import (
	"math/rand"
	"testing"

	"github.com/cuemby/mantle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeTemplate() types.BootTemplate {
	return types.BootTemplate{
		Name:              "compute-tpl",
		ConfigurationName: "clusterA-cos-config-20240101",
		BootSets: map[string]types.BootSet{
			"compute": {
				Path:       "s3://boot-images/IMG-123/manifest.json",
				NodeGroups: []string{"clusterA"},
			},
		},
	}
}

func TestArtifactIDFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		id   string
		ok   bool
	}{
		{name: "valid path", path: "s3://boot-images/IMG-123/manifest.json", id: "IMG-123", ok: true},
		{name: "missing prefix", path: "s3://other/IMG-123/manifest.json"},
		{name: "missing suffix", path: "s3://boot-images/IMG-123/rootfs"},
		{name: "empty id", path: "s3://boot-images//manifest.json"},
		{name: "prefix and suffix only", path: "s3://boot-images/manifest.json"},
		{name: "nested id", path: "s3://boot-images/site/IMG-9/manifest.json", id: "site/IMG-9", ok: true},
		{name: "empty path", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ArtifactIDFromPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestCorrelateBootTemplateScenario(t *testing.T) {
	tuples := Correlate([]types.BootTemplate{computeTemplate()}, nil, nil)

	require.Len(t, tuples, 1)
	assert.Equal(t, "IMG-123", tuples[0].ArtifactID)
	assert.Equal(t, "clusterA-cos-config-20240101", tuples[0].ConfigurationName)
	assert.Equal(t, []string{"clusterA"}, tuples[0].Targets)
	assert.Equal(t, types.SourceBootTemplate, tuples[0].Source)
}

func TestFromBootTemplatesSkipsBadBootSets(t *testing.T) {
	templates := []types.BootTemplate{
		{
			Name:              "mixed",
			ConfigurationName: "cfg",
			BootSets: map[string]types.BootSet{
				"good":  {Path: "s3://boot-images/IMG-1/manifest.json", NodeList: []string{"x1000c0s0b0n0"}},
				"bad":   {Path: "s3://boot-images/IMG-2/kernel", NodeGroups: []string{"g"}},
				"empty": {Path: "s3://boot-images/IMG-3/manifest.json"},
			},
		},
		{Name: "no-boot-sets", ConfigurationName: "cfg"},
	}

	tuples := FromBootTemplates(templates)
	require.Len(t, tuples, 2)

	// boot set labels are visited in sorted order: empty, good
	assert.Equal(t, "IMG-3", tuples[0].ArtifactID)
	assert.Equal(t, []string{}, tuples[0].Targets, "missing target is an empty list")
	assert.Equal(t, "IMG-1", tuples[1].ArtifactID)
	assert.Equal(t, []string{"x1000c0s0b0n0"}, tuples[1].Targets)
}

func TestFromSessions(t *testing.T) {
	sessions := []types.AutomationSession{
		{
			Name:              "b-image",
			ConfigurationName: "clusterA-cos-config-20240101",
			Target: types.SessionTarget{
				Definition: types.SessionDefinitionImage,
				Groups:     []types.TargetGroup{{Name: "clusterA", Members: []string{"IMG-base"}}},
			},
			Status: types.SessionStatus{
				Status: types.SessionStateComplete,
				Artifacts: []types.SessionArtifact{
					{ResultID: "IMG-999"},
					{ResultID: "IMG-ignored"},
				},
			},
		},
		{
			Name:              "a-dynamic",
			ConfigurationName: "runtime-config",
			AnsibleLimit:      " x1000c0s0b0n0, x1000c0s0b0n1 ,,",
			Target:            types.SessionTarget{Definition: types.SessionDefinitionDynamic},
		},
	}

	tuples := FromSessions(sessions)
	require.Len(t, tuples, 2)

	assert.Equal(t, "a-dynamic", tuples[0].SourceName)
	assert.Equal(t, "", tuples[0].ArtifactID)
	assert.False(t, tuples[0].HasArtifact())
	assert.Equal(t, []string{"x1000c0s0b0n0", "x1000c0s0b0n1"}, tuples[0].Targets)

	assert.Equal(t, "IMG-999", tuples[1].ArtifactID, "only the first artifact is authoritative")
	assert.Equal(t, []string{"clusterA"}, tuples[1].Targets)
}

func TestFromComponents(t *testing.T) {
	tuples := FromComponents([]types.Component{
		{ID: "x2", DesiredConfig: "cfg-b"},
		{ID: "x1", DesiredConfig: ""},
		{ID: "x0", DesiredConfig: "cfg-a"},
	})

	require.Len(t, tuples, 2)
	assert.Equal(t, "x0", tuples[0].Node)
	assert.Equal(t, "cfg-a", tuples[0].ConfigurationName)
	assert.Empty(t, tuples[0].Targets)
	assert.Equal(t, types.SourceComponent, tuples[1].Source)
}

func TestCorrelateIsIndependentOfInputOrder(t *testing.T) {
	templates := []types.BootTemplate{
		computeTemplate(),
		{Name: "uan-tpl", ConfigurationName: "uan-config", BootSets: map[string]types.BootSet{
			"uan": {Path: "s3://boot-images/IMG-7/manifest.json", NodeGroups: []string{"uan"}},
		}},
		{Name: "login-tpl", ConfigurationName: "login-config", BootSets: map[string]types.BootSet{
			"a": {Path: "s3://boot-images/IMG-8/manifest.json", NodeList: []string{"x1"}},
			"b": {Path: "s3://boot-images/IMG-9/manifest.json", NodeGroups: []string{"login"}},
		}},
	}
	sessions := []types.AutomationSession{
		{Name: "s1", ConfigurationName: "c1", AnsibleLimit: "x1"},
		{Name: "s2", ConfigurationName: "c2", Target: types.SessionTarget{
			Definition: types.SessionDefinitionImage, Groups: []types.TargetGroup{{Name: "g"}},
		}},
		{Name: "s3", ConfigurationName: "c3"},
	}
	components := []types.Component{
		{ID: "x1", DesiredConfig: "c1"}, {ID: "x2", DesiredConfig: "c2"}, {ID: "x3"},
	}

	expected := Correlate(templates, sessions, components)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		tpl := append([]types.BootTemplate{}, templates...)
		ses := append([]types.AutomationSession{}, sessions...)
		cmp := append([]types.Component{}, components...)
		rng.Shuffle(len(tpl), func(a, b int) { tpl[a], tpl[b] = tpl[b], tpl[a] })
		rng.Shuffle(len(ses), func(a, b int) { ses[a], ses[b] = ses[b], ses[a] })
		rng.Shuffle(len(cmp), func(a, b int) { cmp[a], cmp[b] = cmp[b], cmp[a] })

		assert.Equal(t, expected, Correlate(tpl, ses, cmp))
	}
}

func TestCorrelateSourcePrecedence(t *testing.T) {
	tuples := Correlate(
		[]types.BootTemplate{computeTemplate()},
		[]types.AutomationSession{{Name: "s", ConfigurationName: "other", Status: types.SessionStatus{
			Artifacts: []types.SessionArtifact{{ResultID: "IMG-123"}},
		}}},
		[]types.Component{{ID: "x1", DesiredConfig: "third"}},
	)

	require.Len(t, tuples, 3)
	assert.Equal(t, types.SourceBootTemplate, tuples[0].Source)
	assert.Equal(t, types.SourceSession, tuples[1].Source)
	assert.Equal(t, types.SourceComponent, tuples[2].Source)

	cfg, ok := ConfigurationForArtifact(tuples, "IMG-123")
	assert.True(t, ok)
	assert.Equal(t, "clusterA-cos-config-20240101", cfg, "boot templates win over sessions")

	_, ok = ConfigurationForArtifact(tuples, "")
	assert.False(t, ok)
}

func TestArtifactForConfiguration(t *testing.T) {
	tuples := []types.CorrelationTuple{
		{ArtifactID: "", ConfigurationName: "cfg", Source: types.SourceSession},
		{ArtifactID: "IMG-1", ConfigurationName: "cfg", Source: types.SourceSession},
	}

	got := ArtifactForConfiguration(tuples, "cfg")
	require.NotNil(t, got)
	assert.Equal(t, "IMG-1", got.ArtifactID)

	assert.Nil(t, ArtifactForConfiguration(tuples, "missing"))
}
