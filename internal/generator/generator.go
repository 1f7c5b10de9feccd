// Package generator compiles a normalized pipeline into the text of a CI back end.
// Every generator is pure and total over normalized input.
package generator

import (
	"fmt"
	"strings"

	"windci/internal/apperror"
	"windci/internal/core"
)

// DefaultLifecycle is the lifecycle assumed when the caller does not pass one.
const DefaultLifecycle = "working_time"

// Generator turns a pipeline into target text.
type Generator interface {
	Target() core.Target
	Generate(def *core.PipelineDefinition) string
}

// For returns the generator for target.
func For(target core.Target) (Generator, error) {
	switch target {
	case core.TargetBash:
		return Bash{}, nil
	case core.TargetBamboo:
		return BuildPlan{}, nil
	case core.TargetJenkins:
		return Jenkins{}, nil
	}
	return nil, apperror.New(apperror.UnknownTarget, "no generator for target %q", target)
}

// scriptBody returns the shell text an action executes.
func scriptBody(a core.Action) string {
	switch k := a.Kind.(type) {
	case core.Script:
		return k.Body
	case core.Template:
		if k.Resolved == nil {
			return unresolved(k.Use)
		}
		return core.SubstituteParameters(k.Resolved.Body, a.EffectiveParameters())
	}
	return ""
}

func unresolved(use string) string {
	return fmt.Sprintf("echo %s >&2\nexit 1", shellQuote("template "+use+" was not resolved"))
}

// lines splits a body, dropping a single trailing newline.
func lines(body string) []string {
	body = strings.TrimSuffix(body, "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

// uniqueStageNames suffixes repeated names with " 2", " 3" and so on,
// keeping the first occurrence as it is.
func uniqueStageNames(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		unique := name
		for n := 2; used[unique]; n++ {
			unique = fmt.Sprintf("%s %d", name, n)
		}
		used[unique] = true
		out[i] = unique
	}
	return out
}

// singleLine flattens text for use in comments and descriptions.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type lineWriter struct {
	b strings.Builder
}

func (w *lineWriter) line(indent int, format string, args ...any) {
	w.b.WriteString(strings.Repeat(" ", indent))
	if len(args) == 0 {
		w.b.WriteString(format)
	} else {
		fmt.Fprintf(&w.b, format, args...)
	}
	w.b.WriteByte('\n')
}

func (w *lineWriter) raw(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *lineWriter) blank() {
	w.b.WriteByte('\n')
}

func (w *lineWriter) String() string {
	return w.b.String()
}
