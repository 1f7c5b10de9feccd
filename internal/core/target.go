package core

import (
	"regexp"
	"strings"

	"windci/internal/apperror"
)

// Target selects the generator.
type Target string

const (
	TargetBash    Target = "bash"
	TargetBamboo  Target = "bamboo"
	TargetJenkins Target = "jenkins"
)

// Targets lists every supported target in a fixed order.
var Targets = []Target{TargetBash, TargetBamboo, TargetJenkins}

// ParseTarget accepts the wire names cli, bash, bamboo and jenkins.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cli", "bash":
		return TargetBash, nil
	case "bamboo":
		return TargetBamboo, nil
	case "jenkins":
		return TargetJenkins, nil
	}
	return "", apperror.New(apperror.UnknownTarget, "unknown target %q (want cli, bamboo or jenkins)", s)
}

// WireName is the name used in service URLs.
func (t Target) WireName() string {
	if t == TargetBash {
		return "cli"
	}
	return string(t)
}

// Extension is the file extension for artifacts of this target.
func (t Target) Extension() string {
	switch t {
	case TargetBash:
		return "sh"
	case TargetBamboo:
		return "yaml"
	case TargetJenkins:
		return "groovy"
	}
	return "txt"
}

var placeholderRe = regexp.MustCompile(`\$\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// SubstituteParameters replaces ${{ NAME }} placeholders with bound values.
// Unbound placeholders are left untouched.
func SubstituteParameters(body string, params Vars) string {
	if len(params) == 0 {
		return body
	}
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := params.Get(name); ok {
			return v
		}
		return m
	})
}
