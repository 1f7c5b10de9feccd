package core

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"windci/internal/apperror"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// ParseDocument parses text into its root YAML node.
// Parse failures are reported as MalformedDocument with a single marker.
func ParseDocument(text []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(text, &doc); err != nil {
		line := 1
		if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil && n > 0 {
				line = n
			}
		}
		msg := strings.TrimPrefix(err.Error(), "yaml: ")
		return nil, &apperror.Error{
			Kind:    apperror.MalformedDocument,
			Message: msg,
			Markers: []apperror.Marker{apperror.ErrorAt(line, 1, "", msg)},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		msg := "document is empty"
		return nil, &apperror.Error{
			Kind:    apperror.MalformedDocument,
			Message: msg,
			Markers: []apperror.Marker{apperror.ErrorAt(1, 1, "", msg)},
		}
	}
	return deref(doc.Content[0]), nil
}

// NodePos returns the 1-based position of n, or 1:1 when n is nil.
func NodePos(n *yaml.Node) apperror.Position {
	if n == nil || n.Line == 0 {
		return apperror.Position{Line: 1, Column: 1}
	}
	return apperror.Position{Line: n.Line, Column: n.Column}
}

// Pair is one key/value entry of a mapping node.
type Pair struct {
	Key   *yaml.Node
	Value *yaml.Node
}

// MappingPairs returns the entries of a mapping node in document order.
func MappingPairs(n *yaml.Node) []Pair {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	pairs := make([]Pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, Pair{Key: n.Content[i], Value: deref(n.Content[i+1])})
	}
	return pairs
}

// Lookup returns the value for key in a mapping node.
func Lookup(n *yaml.Node, key string) *yaml.Node {
	for _, p := range MappingPairs(n) {
		if p.Key.Value == key {
			return p.Value
		}
	}
	return nil
}

// PointerChild appends an escaped segment to a JSON pointer.
func PointerChild(ptr, seg string) string {
	seg = strings.ReplaceAll(seg, "~", "~0")
	seg = strings.ReplaceAll(seg, "/", "~1")
	return ptr + "/" + seg
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}
