package template

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/logging"
)

// MaxConcurrent bounds the number of templates fetched at once.
const MaxConcurrent = 4

// ResolveAll resolves every distinct template of def and returns a copy with
// the resolutions attached. def itself is not modified. The first failure
// cancels the remaining fetches and is reported with the position of the
// first action using the failed reference.
func ResolveAll(ctx context.Context, def *core.PipelineDefinition, r Resolver) (*core.PipelineDefinition, error) {
	uses := def.Templates()
	if len(uses) == 0 {
		return def, nil
	}

	var (
		mu       sync.Mutex
		resolved = make(map[string]*core.Resolved, len(uses))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrent)
	for _, use := range uses {
		g.Go(func() error {
			res, err := r.Resolve(gctx, use)
			if err != nil {
				return withPosition(def, use, failed(use, err))
			}
			mu.Lock()
			resolved[use] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.FromContext(ctx).Warn("template resolution failed", slog.Any("error", err))
		return nil, err
	}

	out := def.Clone()
	for i, a := range out.Actions {
		if t, ok := a.Kind.(core.Template); ok {
			t.Resolved = resolved[t.Use]
			out.Actions[i].Kind = t
		}
	}
	return out, nil
}

func withPosition(def *core.PipelineDefinition, use string, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || len(appErr.Markers) > 0 {
		return err
	}
	for _, a := range def.Actions {
		if t, ok := a.Kind.(core.Template); ok && t.Use == use {
			marked := *appErr
			marked.Markers = []apperror.Marker{apperror.ErrorAt(a.Pos.Line, a.Pos.Column,
				core.PointerChild(core.PointerChild("/actions", a.Name), "use"), appErr.Error())}
			return &marked
		}
	}
	return err
}
