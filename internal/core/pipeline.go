package core

import (
	"slices"
	"strings"
)

// PipelineDefinition is the normalized form of a windfile.
// It is built once per request and not modified afterwards.
type PipelineDefinition struct {
	API          string
	Metadata     Metadata
	Environment  Vars         // exported for every action
	Repositories []Repository // cloned before any action runs, in declaration order
	Actions      []Action     // declaration order
}

// Metadata describes the pipeline and its default container.
type Metadata struct {
	Name           string
	ID             string
	Description    string
	Author         Author
	Docker         Image // default image, may be empty (host execution)
	GitCredentials string
}

// Author of the windfile. Either field may be empty.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	switch {
	case a.Email == "":
		return a.Name
	case a.Name == "":
		return a.Email
	default:
		return a.Name + " <" + a.Email + ">"
	}
}

// Repository is a git source cloned before execution.
type Repository struct {
	Name   string
	URL    string
	Branch string
	Path   string
}

// Image is a container image plus the arguments used to run it.
type Image struct {
	Name    string
	Tag     string
	Volumes []string
	RunArgs []string
}

// IsZero reports whether no image is set.
func (i Image) IsZero() bool {
	return i.Name == ""
}

// Ref returns name:tag, or "" for the zero image.
func (i Image) Ref() string {
	if i.IsZero() {
		return ""
	}
	if i.Tag == "" {
		return i.Name + ":latest"
	}
	return i.Name + ":" + i.Tag
}

// Equal compares images including their run configuration.
func (i Image) Equal(o Image) bool {
	return i.Ref() == o.Ref() && slices.Equal(i.Volumes, o.Volumes) && slices.Equal(i.RunArgs, o.RunArgs)
}

// splitImage splits "registry:5000/name:tag" into name and tag.
// A colon before the last slash belongs to the registry host.
func splitImage(ref string) (string, string) {
	colon := strings.LastIndex(ref, ":")
	if colon < 0 || colon < strings.LastIndex(ref, "/") {
		return ref, ""
	}
	return ref[:colon], ref[colon+1:]
}

// Var is a single name/value binding. Values are literal text.
type Var struct {
	Name  string
	Value string
}

// Vars is an ordered set of bindings.
type Vars []Var

// Get returns the value bound to name.
func (v Vars) Get(name string) (string, bool) {
	for _, kv := range v {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Merge returns v overridden by other. Order follows v, new names from other are appended.
func (v Vars) Merge(other Vars) Vars {
	out := make(Vars, 0, len(v)+len(other))
	for _, kv := range v {
		if ov, ok := other.Get(kv.Name); ok {
			kv.Value = ov
		}
		out = append(out, kv)
	}
	for _, kv := range other {
		if _, ok := v.Get(kv.Name); !ok {
			out = append(out, kv)
		}
	}
	return out
}

// Action returns the action with the given name.
func (p *PipelineDefinition) Action(name string) (Action, bool) {
	for _, a := range p.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// Clone returns a copy whose slices can be modified without affecting p.
func (p *PipelineDefinition) Clone() *PipelineDefinition {
	out := *p
	out.Environment = slices.Clone(p.Environment)
	out.Repositories = slices.Clone(p.Repositories)
	out.Actions = slices.Clone(p.Actions)
	return &out
}

// SharedImage returns the image used by every action when they all agree.
// A pipeline without actions shares the default image.
func (p *PipelineDefinition) SharedImage() (Image, bool) {
	if len(p.Actions) == 0 {
		return p.Metadata.Docker, true
	}
	first := p.Actions[0].Image
	for _, a := range p.Actions[1:] {
		if !a.Image.Equal(first) {
			return Image{}, false
		}
	}
	return first, true
}

// Templates returns the distinct template references, in first-use order.
func (p *PipelineDefinition) Templates() []string {
	var uses []string
	for _, a := range p.Actions {
		if t, ok := a.Kind.(Template); ok && !slices.Contains(uses, t.Use) {
			uses = append(uses, t.Use)
		}
	}
	return uses
}
