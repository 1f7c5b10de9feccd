package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarsMerge(t *testing.T) {
	defaults := Vars{{"A", "1"}, {"B", "2"}}
	got := defaults.Merge(Vars{{"B", "20"}, {"C", "30"}})

	assert.Equal(t, Vars{{"A", "1"}, {"B", "20"}, {"C", "30"}}, got)
	assert.Equal(t, Vars{{"A", "1"}, {"B", "2"}}, defaults)
}

func TestSharedImage(t *testing.T) {
	alpine := Image{Name: "alpine", Tag: "3"}
	def := &PipelineDefinition{
		Metadata: Metadata{Docker: alpine},
		Actions:  []Action{{Name: "a", Image: alpine}, {Name: "b", Image: alpine}},
	}
	img, ok := def.SharedImage()
	assert.True(t, ok)
	assert.Equal(t, "alpine:3", img.Ref())

	def.Actions = append(def.Actions, Action{Name: "c", Image: Image{Name: "alpine", Tag: "3", Volumes: []string{"/x:/x"}}})
	_, ok = def.SharedImage()
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	def := &PipelineDefinition{Actions: []Action{{Name: "a", Kind: Template{Use: "x.git"}}}}
	cp := def.Clone()
	cp.Actions[0].Kind = Template{Use: "x.git", Resolved: &Resolved{Body: "echo"}}

	assert.Nil(t, def.Actions[0].Kind.(Template).Resolved)
	assert.Equal(t, []string{"x.git"}, def.Templates())
}

func TestEffectiveParameters(t *testing.T) {
	a := Action{
		Kind:       Template{Use: "x", Resolved: &Resolved{Parameters: Vars{{"LEVEL", "1"}, {"MODE", "fast"}}}},
		Parameters: Vars{{"LEVEL", "3"}},
	}
	assert.Equal(t, Vars{{"LEVEL", "3"}, {"MODE", "fast"}}, a.EffectiveParameters())
	assert.Equal(t, "template", KindName(a.Kind))
	assert.Equal(t, "script", KindName(Script{}))
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{"cli": TargetBash, "bash": TargetBash, "Bamboo": TargetBamboo, "jenkins": TargetJenkins} {
		got, err := ParseTarget(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTarget("gitlab")
	assert.Error(t, err)
	assert.Equal(t, "cli", TargetBash.WireName())
}

func TestSubstituteParameters(t *testing.T) {
	body := `sort --algo ${{ ALGO }} ${{MISSING}} ${{ALGO}}`
	got := SubstituteParameters(body, Vars{{"ALGO", "quick"}})
	assert.Equal(t, "sort --algo quick ${{MISSING}} quick", got)
}
