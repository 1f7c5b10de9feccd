package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/api"
	"windci/internal/config"
	"windci/internal/logging"
	"windci/internal/template"
)

func TestResolver(t *testing.T) {
	cfg := config.Defaults().Templates
	r, ok := Resolver(cfg).(*template.Router)
	require.True(t, ok)
	assert.NotNil(t, r.Git)
	assert.NotNil(t, r.File)

	cfg.Enabled = false
	assert.Nil(t, Resolver(cfg))
}

func TestServe(t *testing.T) {
	cfg := config.Defaults()
	cfg.Templates.Enabled = false

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, &cfg, logging.Discard(), ln) }()

	url := "http://" + ln.Addr().String() + "/generate/cli/yaml"
	resp, err := http.Post(url, "application/yaml", strings.NewReader("api: v0.0.1\nmetadata: {name: served}\nactions:\n  a: {script: echo hi}\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(api.ProcessTimeHeader))

	var body api.GenerateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Result, "echo hi")
	assert.Len(t, body.Key, 64)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
