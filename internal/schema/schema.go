// Package schema checks windfile text against the windfile schema and
// reports located markers. It never fails on malformed input.
package schema

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"windci/internal/apperror"
	"windci/internal/core"
)

// ID is the stable identifier under which the schema is published.
const ID = "windfile.json"

//go:embed windfile.schema.yaml
var schemaSource []byte

// Validator holds the compiled schemas. It is immutable and safe for concurrent use.
type Validator struct {
	windfile *openapi3.Schema
	action   *openapi3.Schema
	source   []byte
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(schemaSource)
	if err != nil {
		return nil, fmt.Errorf("load windfile schema: %w", err)
	}
	lookup := func(name string) (*openapi3.Schema, error) {
		ref, ok := doc.Components.Schemas[name]
		if !ok || ref.Value == nil {
			return nil, fmt.Errorf("windfile schema has no %q component", name)
		}
		return ref.Value, nil
	}
	v := &Validator{}
	if v.windfile, err = lookup("windfile"); err != nil {
		return nil, err
	}
	if v.action, err = lookup("action"); err != nil {
		return nil, err
	}
	if v.source, err = sigsyaml.YAMLToJSON(schemaSource); err != nil {
		return nil, fmt.Errorf("convert windfile schema: %w", err)
	}
	return v, nil
}

var defaultValidator = sync.OnceValues(New)

// Default returns the process-wide validator.
func Default() (*Validator, error) {
	return defaultValidator()
}

// Validate checks text with the default validator.
func Validate(text []byte) []apperror.Marker {
	v, err := Default()
	if err != nil {
		return []apperror.Marker{apperror.ErrorAt(1, 1, "", err.Error())}
	}
	return v.Validate(text)
}

// Source returns the schema document as JSON.
func (v *Validator) Source() []byte {
	return v.source
}

// Validate returns the markers for text, sorted by position.
func (v *Validator) Validate(text []byte) []apperror.Marker {
	root, err := core.ParseDocument(text)
	if err != nil {
		if appErr, ok := err.(*apperror.Error); ok {
			return appErr.Markers
		}
		return []apperror.Marker{apperror.ErrorAt(1, 1, "", err.Error())}
	}

	var markers []apperror.Marker
	markers = append(markers, duplicateKeys(root, "")...)
	markers = append(markers, v.visit(v.windfile, root, root, nil)...)

	if root.Kind == yaml.MappingNode {
		markers = append(markers, v.checkActions(root)...)
		markers = append(markers, checkAPI(root)...)
		markers = append(markers, checkMetadata(root)...)
	}

	apperror.SortMarkers(markers)
	return markers
}

// HasErrors reports whether text has any error-severity marker.
func HasErrors(markers []apperror.Marker) bool {
	return apperror.HasErrors(markers)
}

func (v *Validator) checkActions(root *yaml.Node) []apperror.Marker {
	actions := core.Lookup(root, "actions")
	if actions == nil {
		return nil
	}
	var markers []apperror.Marker
	check := func(name string, n *yaml.Node, base []string) {
		markers = append(markers, v.visit(v.action, root, n, base)...)
		if n.Kind != yaml.MappingNode {
			return
		}
		script, use := core.Lookup(n, "script"), core.Lookup(n, "use")
		if (script == nil) == (use == nil) {
			pos := core.NodePos(n)
			markers = append(markers, apperror.ErrorAt(pos.Line, pos.Column, pointer(base),
				fmt.Sprintf("action %q needs exactly one of script or use", name)))
		}
		if docker := core.Lookup(n, "docker"); docker != nil && sameDocker(docker, core.Lookup(core.Lookup(root, "metadata"), "docker")) {
			pos := core.NodePos(docker)
			markers = append(markers, apperror.WarningAt(pos.Line, pos.Column, pointer(append(base, "docker")),
				"docker override is identical to the default image"))
		}
	}

	switch actions.Kind {
	case yaml.MappingNode:
		for _, p := range core.MappingPairs(actions) {
			check(p.Key.Value, p.Value, []string{"actions", p.Key.Value})
		}
	case yaml.SequenceNode:
		for i, item := range actions.Content {
			name := strconv.Itoa(i)
			if n := core.Lookup(item, "name"); n != nil {
				name = n.Value
			}
			check(name, item, []string{"actions", strconv.Itoa(i)})
		}
	case yaml.ScalarNode:
		if actions.Tag != "!!null" {
			pos := core.NodePos(actions)
			markers = append(markers, apperror.ErrorAt(pos.Line, pos.Column, "/actions", "actions must be a mapping or a list"))
		}
	default:
		pos := core.NodePos(actions)
		markers = append(markers, apperror.ErrorAt(pos.Line, pos.Column, "/actions", "actions must be a mapping or a list"))
	}
	return markers
}

func checkAPI(root *yaml.Node) []apperror.Marker {
	api := core.Lookup(root, "api")
	if api == nil || api.Kind != yaml.ScalarNode || api.Tag != "!!str" {
		return nil
	}
	if err := core.CheckAPIVersion(api.Value); err != nil {
		pos := core.NodePos(api)
		return []apperror.Marker{apperror.ErrorAt(pos.Line, pos.Column, "/api", err.Error())}
	}
	return nil
}

func checkMetadata(root *yaml.Node) []apperror.Marker {
	md := core.Lookup(root, "metadata")
	if md == nil || md.Kind != yaml.MappingNode {
		return nil
	}
	if core.Lookup(md, "id") == nil {
		pos := core.NodePos(md)
		return []apperror.Marker{apperror.WarningAt(pos.Line, pos.Column, "/metadata",
			"metadata.id is not set; plan keys are derived from the name")}
	}
	return nil
}

// visit evaluates schema against n and locates each failure in root.
func (v *Validator) visit(schema *openapi3.Schema, root, n *yaml.Node, base []string) []apperror.Marker {
	err := schema.VisitJSON(toValue(n), openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	var markers []apperror.Marker
	for _, e := range flatten(err) {
		segs := base
		msg := e.Error()
		if se, ok := e.(*openapi3.SchemaError); ok {
			segs = append(append([]string{}, base...), se.JSONPointer()...)
			msg = se.Reason
		}
		pos := core.NodePos(locate(root, segs))
		markers = append(markers, apperror.ErrorAt(pos.Line, pos.Column, pointer(segs), msg))
	}
	return markers
}

func flatten(err error) []error {
	if me, ok := err.(openapi3.MultiError); ok {
		var out []error
		for _, e := range me {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// locate walks segs from root and returns the deepest node reached.
// A final mapping key resolves to the key node.
func locate(root *yaml.Node, segs []string) *yaml.Node {
	n := root
	for _, seg := range segs {
		switch n.Kind {
		case yaml.MappingNode:
			var next *yaml.Node
			for _, p := range core.MappingPairs(n) {
				if p.Key.Value == seg {
					next = p.Key
					if p.Value.Kind == yaml.MappingNode || p.Value.Kind == yaml.SequenceNode {
						next = p.Value
					}
					break
				}
			}
			if next == nil {
				return n
			}
			n = next
		case yaml.SequenceNode:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n.Content) {
				return n
			}
			n = n.Content[i]
		default:
			return n
		}
	}
	return n
}

func pointer(segs []string) string {
	ptr := ""
	for _, s := range segs {
		ptr = core.PointerChild(ptr, s)
	}
	return ptr
}

// duplicateKeys warns about repeated keys; the normalizer rejects them.
func duplicateKeys(n *yaml.Node, ptr string) []apperror.Marker {
	var markers []apperror.Marker
	switch n.Kind {
	case yaml.MappingNode:
		seen := map[string]bool{}
		for _, p := range core.MappingPairs(n) {
			child := core.PointerChild(ptr, p.Key.Value)
			if seen[p.Key.Value] {
				pos := core.NodePos(p.Key)
				markers = append(markers, apperror.WarningAt(pos.Line, pos.Column, child,
					fmt.Sprintf("duplicate key %q", p.Key.Value)))
			}
			seen[p.Key.Value] = true
			markers = append(markers, duplicateKeys(p.Value, child)...)
		}
	case yaml.SequenceNode:
		for i, item := range n.Content {
			markers = append(markers, duplicateKeys(item, core.PointerChild(ptr, strconv.Itoa(i)))...)
		}
	}
	return markers
}

func sameDocker(a, b *yaml.Node) bool {
	if a == nil || b == nil {
		return false
	}
	out1, err1 := yaml.Marshal(a)
	out2, err2 := yaml.Marshal(b)
	return err1 == nil && err2 == nil && strings.TrimSpace(string(out1)) == strings.TrimSpace(string(out2))
}

// toValue converts a YAML node into the JSON value model the schema evaluator expects.
func toValue(n *yaml.Node) any {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for _, p := range core.MappingPairs(n) {
			m[p.Key.Value] = toValue(p.Value)
		}
		return m
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			s = append(s, toValue(item))
		}
		return s
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err == nil {
				return b
			}
		case "!!int":
			var i int64
			if err := n.Decode(&i); err == nil {
				return float64(i)
			}
		case "!!float":
			var f float64
			if err := n.Decode(&f); err == nil {
				return f
			}
		}
		return n.Value
	}
	return nil
}
