package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/core"
)

const doc = `api: v0.0.1
metadata:
  name: fp
  id: fp
actions:
  a:
    script: echo 1
  cleanup:
    script: echo 2
    run_always: true
`

// same content, different layout and comments
const reformatted = `# leading comment
api:   v0.0.1
metadata: {name: fp, id: fp}


actions:
  a: {script: echo 1}   # trailing
  cleanup:
      script: echo 2
      run_always: true
`

func normalize(t *testing.T, text string) *core.PipelineDefinition {
	t.Helper()
	def, err := core.Normalize([]byte(text))
	require.NoError(t, err)
	return def
}

func TestComputeIsStableAcrossLayout(t *testing.T) {
	a, b := normalize(t, doc), normalize(t, reformatted)
	for _, target := range core.Targets {
		assert.Equal(t, Compute(a, target), Compute(b, target), string(target))
		assert.Equal(t, Compute(a, target), Compute(normalize(t, doc), target))
	}
}

func TestComputeDiffersPerTarget(t *testing.T) {
	def := normalize(t, doc)
	seen := map[string]core.Target{}
	for _, target := range core.Targets {
		key := Compute(def, target)
		assert.Len(t, key, 64)
		_, dup := seen[key]
		assert.False(t, dup, "target %s collides", target)
		seen[key] = target
	}
}

func TestComputeTracksSemanticChanges(t *testing.T) {
	base := Compute(normalize(t, doc), core.TargetBash)

	changed := []string{
		"api: v0.0.1\nmetadata: {name: fp, id: fp}\nactions:\n  a: {script: echo 3}\n  cleanup: {script: echo 2, run_always: true}\n",
		"api: v0.0.1\nmetadata: {name: fp, id: fp}\nactions:\n  a: {script: echo 1}\n  cleanup: {script: echo 2}\n",
		"api: v0.0.1\nmetadata: {name: fp, id: fp}\nactions:\n  cleanup: {script: echo 2, run_always: true}\n  a: {script: echo 1}\n",
		"api: v0.0.1\nmetadata: {name: fp, id: fp}\nactions:\n  a: {script: echo 1, docker: {image: alpine}}\n  cleanup: {script: echo 2, run_always: true}\n",
	}
	for _, text := range changed {
		assert.NotEqual(t, base, Compute(normalize(t, text), core.TargetBash), text)
	}
}

func TestComputeIgnoresResolvedContent(t *testing.T) {
	def := normalize(t, "api: v0.0.1\nmetadata: {name: fp}\nactions:\n  lint: {use: https://example.com/lint.git}\n")
	before := Compute(def, core.TargetJenkins)

	resolved := def.Clone()
	resolved.Actions[0].Kind = core.Template{Use: "https://example.com/lint.git", Resolved: &core.Resolved{Body: "golangci-lint run"}}
	assert.Equal(t, before, Compute(resolved, core.TargetJenkins))
}
