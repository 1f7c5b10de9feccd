// Package apperror defines the error taxonomy shared by the translation engine,
// the generation service and its clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names a class of failure. The string value is part of the wire contract.
type Kind string

const (
	MalformedDocument        Kind = "MalformedDocument"
	SchemaViolation          Kind = "SchemaViolation"
	UnsupportedVersion       Kind = "UnsupportedVersion"
	ValidationFailed         Kind = "ValidationFailed"
	TemplateResolutionFailed Kind = "TemplateResolutionFailed"
	TransportFailure         Kind = "TransportFailure"
	UnknownTarget            Kind = "UnknownTarget"
	Internal                 Kind = "Internal"
)

// Error is a classified failure, optionally carrying validation markers.
type Error struct {
	Kind    Kind
	Message string
	Markers []Marker
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithMarkers creates an error of the given kind carrying markers.
func WithMarkers(kind Kind, msg string, markers []Marker) *Error {
	return &Error{Kind: kind, Message: msg, Markers: markers}
}

// KindOf returns the Kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a Kind to the status code used by the generation service.
func HTTPStatus(kind Kind) int {
	switch kind {
	case MalformedDocument, SchemaViolation, UnsupportedVersion, ValidationFailed:
		return http.StatusUnprocessableEntity
	case UnknownTarget:
		return http.StatusNotFound
	case TemplateResolutionFailed:
		return http.StatusBadGateway
	case TransportFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
