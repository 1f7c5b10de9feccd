package preview

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/apperror"
	"windci/internal/logging"
)

func TestWatchFollowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windfile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	gen := newFake()
	c, views := start(t, gen, 0)

	var validated []string
	validate := func(text []byte) []apperror.Marker {
		// truncation on rewrite can surface an empty intermediate read
		if len(text) > 0 {
			validated = append(validated, string(text))
		}
		if string(text) == "broken" {
			return []apperror.Marker{apperror.ErrorAt(1, 1, "", "broken")}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, c, validate, logging.Discard()) }()

	v := waitFor(t, views, rendered)
	assert.Equal(t, "rendered first", v.Render.Text)

	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o644))
	waitFor(t, views, func(v View) bool { return v.State == Blocked })

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))
	v = waitFor(t, views, func(v View) bool { return v.State == Rendered && v.Render.Text == "rendered second" })
	assert.Equal(t, "key-second", v.Render.Key)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, []string{"first", "broken", "second"}, validated)
}
