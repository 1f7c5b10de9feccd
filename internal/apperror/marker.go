package apperror

import (
	"fmt"
	"sort"
)

// Severity of a validation marker.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Position is a 1-based line/column location in the source document.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Marker is a located validation finding.
type Marker struct {
	Position Position `json:"position"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

func (m Marker) String() string {
	if m.Path != "" {
		return fmt.Sprintf("%d:%d %s %s: %s", m.Position.Line, m.Position.Column, m.Severity, m.Path, m.Message)
	}
	return fmt.Sprintf("%d:%d %s: %s", m.Position.Line, m.Position.Column, m.Severity, m.Message)
}

// ErrorAt builds an error-severity marker.
func ErrorAt(line, column int, path, msg string) Marker {
	return Marker{Position: Position{Line: line, Column: column}, Severity: SeverityError, Message: msg, Path: path}
}

// WarningAt builds a warning-severity marker.
func WarningAt(line, column int, path, msg string) Marker {
	return Marker{Position: Position{Line: line, Column: column}, Severity: SeverityWarning, Message: msg, Path: path}
}

// HasErrors reports whether any marker has error severity.
func HasErrors(markers []Marker) bool {
	for _, m := range markers {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity markers.
func Errors(markers []Marker) []Marker {
	var out []Marker
	for _, m := range markers {
		if m.Severity == SeverityError {
			out = append(out, m)
		}
	}
	return out
}

// SortMarkers orders markers by position, then message.
func SortMarkers(markers []Marker) {
	sort.SliceStable(markers, func(i, j int) bool {
		a, b := markers[i], markers[j]
		if a.Position.Line != b.Position.Line {
			return a.Position.Line < b.Position.Line
		}
		if a.Position.Column != b.Position.Column {
			return a.Position.Column < b.Position.Column
		}
		return a.Message < b.Message
	})
}
