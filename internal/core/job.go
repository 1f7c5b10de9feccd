package core

import "windci/internal/apperror"

// Action is one unit of work in a pipeline.
type Action struct {
	Name          string
	Kind          ActionKind
	Image         Image // effective image after inheritance
	RunAlways     bool  // part of the final phase
	Environment   Vars
	Parameters    Vars
	Workdir       string
	ExcludeDuring []string // lifecycles in which the action is skipped
	Needs         []string
	Pos           apperror.Position
}

// ActionKind is implemented by Script and Template only.
type ActionKind interface {
	actionKind() string
}

// Script is an inline shell fragment.
type Script struct {
	Body string
}

func (Script) actionKind() string { return "script" }

// Template references an externally defined action.
// Resolved is nil until the template has been fetched.
type Template struct {
	Use      string
	Resolved *Resolved
}

func (Template) actionKind() string { return "template" }

// Resolved is the content of a fetched template.
type Resolved struct {
	Source     string
	Body       string
	Parameters Vars // defaults declared by the template
}

// KindName returns "script" or "template".
func KindName(k ActionKind) string {
	if k == nil {
		return ""
	}
	return k.actionKind()
}

// EffectiveParameters returns the template defaults overridden by the action's own bindings.
func (a Action) EffectiveParameters() Vars {
	if t, ok := a.Kind.(Template); ok && t.Resolved != nil {
		return t.Resolved.Parameters.Merge(a.Parameters)
	}
	return a.Parameters
}

// Excluded reports whether the action is skipped during lifecycle.
func (a Action) Excluded(lifecycle string) bool {
	for _, l := range a.ExcludeDuring {
		if l == lifecycle {
			return true
		}
	}
	return false
}
