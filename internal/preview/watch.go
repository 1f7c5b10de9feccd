package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"windci/internal/apperror"
	"windci/pkg/utils"
)

// ValidateFunc reports markers for a windfile's text.
type ValidateFunc func(text []byte) []apperror.Marker

// Watch feeds the contents of path into c on every change until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are followed. Writes that leave the content unchanged are ignored.
func Watch(ctx context.Context, path string, c *Coordinator, validate ValidateFunc, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var last string
	load := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("read windfile", slog.String("path", abs), slog.Any("error", err))
			}
			return
		}
		sum := utils.HashString(string(data))
		if sum == last {
			return
		}
		last = sum
		c.Edit(string(data), validate(data))
	}
	load()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				load()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.Any("error", err))
		}
	}
}
