package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"windci/internal/apperror"
	"windci/internal/core"
)

// ActionFileName is the file a template repository or directory must contain.
const ActionFileName = "action.yaml"

// ActionFile is a parsed template action file.
type ActionFile struct {
	API         string
	Name        string
	Description string
	Parameters  core.Vars
	Steps       []Step
}

// Step is one script of an action file.
type Step struct {
	Name   string
	Script string
}

// Body joins the step scripts in declaration order.
func (f *ActionFile) Body() string {
	var b strings.Builder
	for _, s := range f.Steps {
		fmt.Fprintf(&b, "# step %s\n", s.Name)
		b.WriteString(strings.TrimSuffix(s.Script, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}

// Resolved converts the action file into the resolved form attached to a template action.
func (f *ActionFile) Resolved(source string) *core.Resolved {
	return &core.Resolved{Source: source, Body: f.Body(), Parameters: f.Parameters}
}

// ParseActionFile parses an action file:
//
//	api: v0.0.1
//	metadata: {name: lint}
//	parameters: {LEVEL: 1}
//	steps:
//	  run:
//	    script: lint --level ${{ LEVEL }}
//
// steps may also be a list of {name, script} entries.
func ParseActionFile(data []byte) (*ActionFile, error) {
	root, err := core.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if root.Kind != yaml.MappingNode {
		return nil, invalid(root, "action file must be a mapping")
	}

	f := &ActionFile{}
	api := core.Lookup(root, "api")
	if api == nil {
		return nil, invalid(root, "action file has no api version")
	}
	f.API = api.Value
	if err := core.CheckAPIVersion(f.API); err != nil {
		return nil, apperror.Wrap(apperror.UnsupportedVersion, err, "action file")
	}
	if md := core.Lookup(root, "metadata"); md != nil {
		if v := core.Lookup(md, "name"); v != nil {
			f.Name = v.Value
		}
		if v := core.Lookup(md, "description"); v != nil {
			f.Description = v.Value
		}
	}

	if params := core.Lookup(root, "parameters"); params != nil && params.Tag != "!!null" {
		if params.Kind != yaml.MappingNode {
			return nil, invalid(params, "parameters must be a mapping")
		}
		for _, p := range core.MappingPairs(params) {
			if !core.ValidVarName(p.Key.Value) {
				return nil, invalid(p.Key, fmt.Sprintf("%q is not a valid parameter name", p.Key.Value))
			}
			if p.Value.Kind != yaml.ScalarNode {
				return nil, invalid(p.Value, fmt.Sprintf("parameter %q must be a scalar", p.Key.Value))
			}
			f.Parameters = append(f.Parameters, core.Var{Name: p.Key.Value, Value: p.Value.Value})
		}
	}

	steps := core.Lookup(root, "steps")
	if steps == nil {
		return nil, invalid(root, "action file has no steps")
	}
	switch steps.Kind {
	case yaml.MappingNode:
		for _, p := range core.MappingPairs(steps) {
			s, err := parseStep(p.Key.Value, p.Value)
			if err != nil {
				return nil, err
			}
			f.Steps = append(f.Steps, s)
		}
	case yaml.SequenceNode:
		for i, item := range steps.Content {
			name := fmt.Sprintf("step_%d", i)
			if v := core.Lookup(item, "name"); v != nil && v.Value != "" {
				name = v.Value
			}
			s, err := parseStep(name, item)
			if err != nil {
				return nil, err
			}
			f.Steps = append(f.Steps, s)
		}
	default:
		return nil, invalid(steps, "steps must be a mapping or a list")
	}
	if len(f.Steps) == 0 {
		return nil, invalid(steps, "action file has no steps")
	}
	return f, nil
}

func parseStep(name string, n *yaml.Node) (Step, error) {
	script := core.Lookup(n, "script")
	if script == nil || script.Kind != yaml.ScalarNode {
		return Step{}, invalid(n, fmt.Sprintf("step %q has no script", name))
	}
	return Step{Name: name, Script: script.Value}, nil
}

func invalid(n *yaml.Node, msg string) error {
	pos := core.NodePos(n)
	return &apperror.Error{
		Kind:    apperror.SchemaViolation,
		Message: msg,
		Markers: []apperror.Marker{apperror.ErrorAt(pos.Line, pos.Column, "", msg)},
	}
}
