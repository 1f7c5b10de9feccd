package core

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Executor runs shell tooling against generated scripts.
type Executor struct {
	Shell string
}

func NewExecutor() *Executor {
	return &Executor{Shell: "bash"}
}

// CheckScript runs the shell in no-exec mode over script and returns its diagnostics.
func (e *Executor) CheckScript(ctx context.Context, script string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Shell, "-n")
	cmd.Stdin = strings.NewReader(script)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s -n: %w", e.Shell, err)
	}
	return out.String(), nil
}
