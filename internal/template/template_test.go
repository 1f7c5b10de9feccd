package template

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/apperror"
	"windci/internal/core"
)

const lintAction = `api: v0.0.1
metadata:
  name: lint
parameters:
  LEVEL: 1
  MODE: strict
steps:
  install:
    script: pip install linter
  run:
    script: |
      lint --level ${{ LEVEL }} --mode ${{ MODE }}
`

func TestParseActionFile(t *testing.T) {
	f, err := ParseActionFile([]byte(lintAction))
	require.NoError(t, err)

	assert.Equal(t, "lint", f.Name)
	assert.Equal(t, core.Vars{{Name: "LEVEL", Value: "1"}, {Name: "MODE", Value: "strict"}}, f.Parameters)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "install", f.Steps[0].Name)
	assert.Equal(t, "# step install\npip install linter\n# step run\nlint --level ${{ LEVEL }} --mode ${{ MODE }}\n", f.Body())
}

func TestParseActionFileRejectsParameterNames(t *testing.T) {
	_, err := ParseActionFile([]byte("api: v0.0.1\nparameters:\n  LEVEL: 1\n  my-param: hello\nsteps:\n  run: {script: lint}\n"))
	require.Error(t, err)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	require.Len(t, appErr.Markers, 1)
	assert.Equal(t, 4, appErr.Markers[0].Position.Line)
	assert.Contains(t, appErr.Message, "my-param")
}

func TestParseActionFileListSteps(t *testing.T) {
	f, err := ParseActionFile([]byte("api: v0.0.1\nsteps:\n  - script: one\n  - name: second\n    script: two\n"))
	require.NoError(t, err)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "step_0", f.Steps[0].Name)
	assert.Equal(t, "second", f.Steps[1].Name)
}

func TestParseActionFileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind apperror.Kind
	}{
		{"malformed", "steps: [", apperror.MalformedDocument},
		{"no api", "steps: {a: {script: x}}\n", apperror.SchemaViolation},
		{"bad api", "api: v2.0.0\nsteps: {a: {script: x}}\n", apperror.UnsupportedVersion},
		{"no steps", "api: v0.0.1\n", apperror.SchemaViolation},
		{"empty steps", "api: v0.0.1\nsteps: {}\n", apperror.SchemaViolation},
		{"step without script", "api: v0.0.1\nsteps: {a: {workdir: x}}\n", apperror.SchemaViolation},
		{"nested parameter", "api: v0.0.1\nparameters: {A: [1]}\nsteps: {a: {script: x}}\n", apperror.SchemaViolation},
		{"dashed parameter name", "api: v0.0.1\nparameters: {my-param: hello}\nsteps: {a: {script: x}}\n", apperror.SchemaViolation},
		{"shell in parameter name", "api: v0.0.1\nparameters: {\"x; echo INJECTED; y\": 1}\nsteps: {a: {script: x}}\n", apperror.SchemaViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActionFile([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
		})
	}
}

func TestGitLocation(t *testing.T) {
	r := NewGitResolver("https://git.example.com/org/")
	tests := []struct {
		use, url, ref string
	}{
		{"java-build", "https://git.example.com/org/java-build.git", ""},
		{"java-build@v2", "https://git.example.com/org/java-build.git", "v2"},
		{"https://example.com/a/b.git", "https://example.com/a/b.git", ""},
		{"git@example.com:a/b.git", "git@example.com:a/b.git", ""},
		{"https://example.com/a/b.git@main", "https://example.com/a/b.git", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			url, ref, err := r.Location(tt.use)
			require.NoError(t, err)
			assert.Equal(t, tt.url, url)
			assert.Equal(t, tt.ref, ref)
		})
	}

	_, _, err := r.Location("https://example.com/not-a-repo")
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))
}

func memClone(files map[string]string) CloneFunc {
	return func(_ context.Context, _, _ string) (billy.Filesystem, error) {
		fs := memfs.New()
		for name, content := range files {
			if err := util.WriteFile(fs, name, []byte(content), 0o644); err != nil {
				return nil, err
			}
		}
		return fs, nil
	}
}

func TestGitResolver(t *testing.T) {
	r := &GitResolver{BaseURL: DefaultBaseURL, Clone: memClone(map[string]string{ActionFileName: lintAction})}
	res, err := r.Resolve(context.Background(), "lint")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/lint.git", res.Source)
	assert.Contains(t, res.Body, "pip install linter")

	r.Clone = memClone(map[string]string{"README.md": "nothing here"})
	_, err = r.Resolve(context.Background(), "lint")
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))
	assert.Contains(t, err.Error(), ActionFileName)

	r.Clone = func(context.Context, string, string) (billy.Filesystem, error) {
		return nil, errors.New("repository not found")
	}
	_, err = r.Resolve(context.Background(), "lint")
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))
}

func TestCloneInMemoryMissingRepository(t *testing.T) {
	_, err := CloneInMemory(context.Background(), t.TempDir()+"/missing.git", "")
	assert.Error(t, err)
}

func TestFileResolver(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "actions/lint/action.yaml", []byte(lintAction), 0o644))
	require.NoError(t, util.WriteFile(fs, "actions/custom.yaml", []byte(lintAction), 0o644))
	r := &FileResolver{FS: fs}

	res, err := r.Resolve(context.Background(), "./actions/lint")
	require.NoError(t, err)
	assert.Equal(t, "/actions/lint/action.yaml", res.Source)

	res, err = r.Resolve(context.Background(), "file://actions/custom.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/actions/custom.yaml", res.Source)

	for _, use := range []string{"./actions/missing", "../outside", "./actions"} {
		_, err := r.Resolve(context.Background(), use)
		assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed), use)
	}
}

func TestRouter(t *testing.T) {
	git := StaticResolver{"lint": {Source: "git"}}
	file := StaticResolver{"./local": {Source: "file"}}
	r := &Router{Git: git, File: file}

	res, err := r.Resolve(context.Background(), "lint")
	require.NoError(t, err)
	assert.Equal(t, "git", res.Source)

	res, err = r.Resolve(context.Background(), "./local")
	require.NoError(t, err)
	assert.Equal(t, "file", res.Source)

	_, err = (&Router{Git: git}).Resolve(context.Background(), "./local")
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))
}

const templatedDoc = `api: v0.0.1
metadata: {name: templated}
actions:
  build: {script: make}
  lint:
    use: lint
    parameters: {LEVEL: 3}
  lint-again:
    use: lint
  report:
    use: report
    run_always: true
`

func TestResolveAll(t *testing.T) {
	def, err := core.Normalize([]byte(templatedDoc))
	require.NoError(t, err)

	var calls atomic.Int32
	r := ResolverFunc(func(_ context.Context, use string) (*core.Resolved, error) {
		calls.Add(1)
		return &core.Resolved{Source: use, Body: "run " + use}, nil
	})
	out, err := ResolveAll(context.Background(), def, r)
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	for _, a := range out.Actions[1:] {
		tpl := a.Kind.(core.Template)
		require.NotNil(t, tpl.Resolved, a.Name)
		assert.Equal(t, "run "+tpl.Use, tpl.Resolved.Body)
	}
	for _, a := range def.Actions[1:] {
		assert.Nil(t, a.Kind.(core.Template).Resolved, "input must not be modified")
	}
}

func TestResolveAllFailure(t *testing.T) {
	def, err := core.Normalize([]byte(templatedDoc))
	require.NoError(t, err)

	_, err = ResolveAll(context.Background(), def, StaticResolver{"lint": {Body: "lint"}})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	require.Len(t, appErr.Markers, 1)
	assert.Equal(t, 10, appErr.Markers[0].Position.Line)
	assert.Equal(t, "/actions/report/use", appErr.Markers[0].Path)
}

func TestResolveAllWithoutTemplates(t *testing.T) {
	def, err := core.Normalize([]byte("api: v0.0.1\nmetadata: {name: x}\nactions:\n  a: {script: echo}\n"))
	require.NoError(t, err)
	out, err := ResolveAll(context.Background(), def, StaticResolver{})
	require.NoError(t, err)
	assert.Same(t, def, out)
}
