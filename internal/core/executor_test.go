package core

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckScript(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	e := NewExecutor()

	out, err := e.CheckScript(context.Background(), "echo ok\nif true; then echo yes; fi\n", 5*time.Second)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = e.CheckScript(context.Background(), "if true; then echo\n", 5*time.Second)
	assert.Error(t, err)
	assert.Contains(t, out, "syntax error")
}
