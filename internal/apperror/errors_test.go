package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(SchemaViolation, "duplicate action %q", "a"))

	assert.Equal(t, SchemaViolation, KindOf(wrapped))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.True(t, IsKind(wrapped, SchemaViolation))
	assert.False(t, IsKind(nil, SchemaViolation))
	assert.True(t, errors.Is(wrapped, &Error{Kind: SchemaViolation}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: MalformedDocument}))
}

func TestErrorString(t *testing.T) {
	err := Wrap(TemplateResolutionFailed, errors.New("404"), "fetch %s", "x")
	assert.Equal(t, "TemplateResolutionFailed: fetch x: 404", err.Error())
	assert.Equal(t, "Internal", (&Error{Kind: Internal}).Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{MalformedDocument, http.StatusUnprocessableEntity},
		{ValidationFailed, http.StatusUnprocessableEntity},
		{UnknownTarget, http.StatusNotFound},
		{TemplateResolutionFailed, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestMarkers(t *testing.T) {
	markers := []Marker{
		WarningAt(3, 1, "", "b"),
		ErrorAt(1, 5, "/actions", "a"),
		ErrorAt(1, 2, "", "z"),
	}
	SortMarkers(markers)

	assert.Equal(t, 2, markers[0].Position.Column)
	assert.Equal(t, 5, markers[1].Position.Column)
	assert.True(t, HasErrors(markers))
	assert.Len(t, Errors(markers), 2)
	assert.False(t, HasErrors(markers[2:]))
	assert.Equal(t, "1:5 error /actions: a", markers[1].String())
}
