package config

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/constraints"
)

// Path addresses a config field in error messages, e.g. "server.port".
type Path struct {
	segments []string
}

func NewPath(root string) *Path {
	return &Path{segments: []string{root}}
}

func (p *Path) Child(name string) *Path {
	return &Path{segments: append(slices.Clone(p.segments), name)}
}

func (p *Path) String() string {
	return strings.Join(p.segments, ".")
}

// FieldError is a validation failure for one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects field errors.
type ValidationErrors []*FieldError

func (ve ValidationErrors) Error() string {
	lines := make([]string, 0, len(ve))
	for _, e := range ve {
		lines = append(lines, "- "+e.Error())
	}
	return strings.Join(lines, "\n")
}

// Add appends errs, skipping nils.
func (ve *ValidationErrors) Add(errs ...*FieldError) {
	for _, e := range errs {
		if e != nil {
			*ve = append(*ve, e)
		}
	}
}

// OrNil returns nil when there are no errors.
func (ve ValidationErrors) OrNil() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

func Invalid(path *Path, msg string) *FieldError {
	return &FieldError{Field: path.String(), Message: msg}
}

func MustBeInRange[T constraints.Ordered](path *Path, value, min, max T) *FieldError {
	if value < min || value > max {
		return Invalid(path, fmt.Sprintf("must be between %v and %v", min, max))
	}
	return nil
}

func MustBeGreaterThan[T constraints.Ordered](path *Path, value, min T) *FieldError {
	if value <= min {
		return Invalid(path, fmt.Sprintf("must be greater than %v", min))
	}
	return nil
}

func MustBeOneOf(path *Path, value string, allowed []string) *FieldError {
	if slices.Contains(allowed, strings.ToLower(value)) {
		return nil
	}
	return Invalid(path, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

func MustNotBeEmpty(path *Path, value string) *FieldError {
	if strings.TrimSpace(value) == "" {
		return Invalid(path, "must not be empty")
	}
	return nil
}
