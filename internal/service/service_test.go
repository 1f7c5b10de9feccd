package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/generator"
	"windci/internal/metrics"
	"windci/internal/template"
)

const validDoc = `api: v0.0.1
metadata:
  name: service
  id: team-service
actions:
  a:
    script: "echo 1"
  cleanup:
    script: "echo 2"
    run_always: true
`

type countingGenerator struct {
	generator.Generator
	calls *atomic.Int32
}

func (g countingGenerator) Generate(def *core.PipelineDefinition) string {
	g.calls.Add(1)
	return g.Generator.Generate(def)
}

func newCounting(t *testing.T, opts Options) (*Service, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	opts.Generators = func(target core.Target) (generator.Generator, error) {
		g, err := generator.For(target)
		if err != nil {
			return nil, err
		}
		return countingGenerator{Generator: g, calls: &calls}, nil
	}
	svc, err := New(opts)
	require.NoError(t, err)
	return svc, &calls
}

func TestGenerate(t *testing.T) {
	svc, calls := newCounting(t, Options{})
	for _, target := range core.Targets {
		res, err := svc.Generate(context.Background(), target, []byte(validDoc))
		require.NoError(t, err, target)
		assert.Equal(t, target, res.Target)
		assert.Contains(t, res.Text, "echo 2")
		assert.Len(t, res.Key, 64)
		assert.Positive(t, res.Elapsed)
	}
	assert.EqualValues(t, len(core.Targets), calls.Load())
}

func TestGenerateKeyIgnoresFormatting(t *testing.T) {
	svc, _ := newCounting(t, Options{})
	reformatted := "# comment\napi: v0.0.1\nmetadata: {name: service, id: team-service}\nactions:\n  a: {script: echo 1}\n  cleanup: {script: echo 2, run_always: true}\n"

	a, err := svc.Generate(context.Background(), core.TargetJenkins, []byte(validDoc))
	require.NoError(t, err)
	b, err := svc.Generate(context.Background(), core.TargetJenkins, []byte(reformatted))
	require.NoError(t, err)
	assert.Equal(t, a.Key, b.Key)

	c, err := svc.Generate(context.Background(), core.TargetBamboo, []byte(validDoc))
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, c.Key)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		target  core.Target
		doc     string
		kind    apperror.Kind
		markers bool
	}{
		{"malformed", core.TargetBash, "api: [", apperror.MalformedDocument, true},
		{"schema error", core.TargetBash, "api: v0.0.1\nmetadata: {name: x}\nactions:\n  a: {script: echo, exclude_during: [lunch]}\n", apperror.ValidationFailed, true},
		{"duplicate action", core.TargetBash, "api: v0.0.1\nmetadata: {name: x, id: x}\nactions:\n  a: {script: echo 1}\n  a: {script: echo 2}\n", apperror.SchemaViolation, true},
		{"unknown target", core.Target("gitlab"), validDoc, apperror.UnknownTarget, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, calls := newCounting(t, Options{})
			res, err := svc.Generate(context.Background(), tt.target, []byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, apperror.KindOf(err), err.Error())
			assert.Zero(t, calls.Load(), "generator must not run")

			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.markers, len(appErr.Markers) > 0)
		})
	}
}

const templateDoc = `api: v0.0.1
metadata: {name: tpl, id: tpl}
actions:
  lint:
    use: lint
    parameters: {LEVEL: 3}
`

func TestGenerateResolvesTemplates(t *testing.T) {
	svc, _ := newCounting(t, Options{Resolver: template.StaticResolver{
		"lint": {Source: "static", Body: "lint --level ${{ LEVEL }}"},
	}})
	res, err := svc.Generate(context.Background(), core.TargetBash, []byte(templateDoc))
	require.NoError(t, err)
	assert.Contains(t, res.Text, "lint --level 3")

	unresolved, _ := newCounting(t, Options{})
	plain, err := unresolved.Generate(context.Background(), core.TargetBash, []byte(templateDoc))
	require.NoError(t, err)
	assert.Contains(t, plain.Text, "was not resolved")
	assert.Equal(t, res.Key, plain.Key)
}

func TestGenerateTemplateFailure(t *testing.T) {
	m := metrics.New()
	svc, calls := newCounting(t, Options{Resolver: template.StaticResolver{}, Metrics: m})
	_, err := svc.Generate(context.Background(), core.TargetJenkins, []byte(templateDoc))
	assert.True(t, apperror.IsKind(err, apperror.TemplateResolutionFailed))
	assert.Zero(t, calls.Load())
}

type panicGenerator struct{}

func (panicGenerator) Target() core.Target                       { return core.TargetBash }
func (panicGenerator) Generate(*core.PipelineDefinition) string { panic("boom") }

func TestGenerateRecoversPanics(t *testing.T) {
	svc, err := New(Options{Generators: func(core.Target) (generator.Generator, error) { return panicGenerator{}, nil }})
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), core.TargetBash, []byte(validDoc))
	assert.True(t, apperror.IsKind(err, apperror.Internal))
}

func TestGenerateConcurrent(t *testing.T) {
	svc, _ := newCounting(t, Options{})
	want, err := svc.Generate(context.Background(), core.TargetBamboo, []byte(validDoc))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Generate(context.Background(), core.TargetBamboo, []byte(validDoc))
			if assert.NoError(t, err) {
				assert.Equal(t, want.Artifact, got.Artifact)
			}
		}()
	}
	wg.Wait()
}

func TestValidateAndSchema(t *testing.T) {
	svc, _ := newCounting(t, Options{})
	assert.False(t, apperror.HasErrors(svc.Validate([]byte(validDoc))))
	assert.True(t, apperror.HasErrors(svc.Validate([]byte("api: v0.0.1\n"))))
	assert.Contains(t, string(svc.Schema()), "components")
}
