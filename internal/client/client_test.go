package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/api"
	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/logging"
	"windci/internal/service"
)

const windfile = "api: v0.0.1\nmetadata: {name: client, id: team-client}\nactions:\n  a: {script: echo 1}\n"

func newService(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := service.New(service.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.Options{Service: svc, Logger: logging.Discard()}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	srv := newService(t)
	c := New(srv.URL+"/", time.Second)

	res, err := c.Generate(context.Background(), core.TargetBash, windfile)
	require.NoError(t, err)
	assert.Equal(t, core.TargetBash, res.Target)
	assert.Contains(t, res.Text, "echo 1")
	assert.Len(t, res.Key, 64)
}

func TestGenerateServiceError(t *testing.T) {
	srv := newService(t)
	c := New(srv.URL, time.Second)

	_, err := c.Generate(context.Background(), core.TargetJenkins, "api: v0.0.1\nmetadata: {id: x}\n")
	require.Error(t, err)
	assert.Equal(t, apperror.ValidationFailed, apperror.KindOf(err))
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.NotEmpty(t, appErr.Markers)
	assert.False(t, IsTransport(err))
}

func TestGenerateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Generate(context.Background(), core.TargetBash, windfile)
	assert.Equal(t, apperror.TransportFailure, apperror.KindOf(err))
	assert.True(t, IsTransport(err))
}

func TestGenerateUnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Generate(context.Background(), core.TargetBash, windfile)
	assert.Equal(t, apperror.TransportFailure, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "gateway down")
}

func TestProcessTime(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, processTime("1.5"))
	assert.Equal(t, time.Duration(0), processTime(""))
	assert.Equal(t, time.Duration(0), processTime("-1"))
}

func TestGenerateParsesProcessTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(api.ProcessTimeHeader, "0.25")
		_, _ = w.Write([]byte(`{"result":"echo","key":"k"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).Generate(context.Background(), core.TargetBamboo, windfile)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, res.Elapsed)
	assert.Equal(t, "k", res.Key)
}
