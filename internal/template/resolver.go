// Package template resolves the templates referenced by `use` actions into
// script bodies the generators can inline.
package template

import (
	"context"
	"strings"

	"windci/internal/apperror"
	"windci/internal/core"
)

// Resolver fetches the action file a `use` reference names.
type Resolver interface {
	Resolve(ctx context.Context, use string) (*core.Resolved, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, use string) (*core.Resolved, error)

func (f ResolverFunc) Resolve(ctx context.Context, use string) (*core.Resolved, error) {
	return f(ctx, use)
}

// StaticResolver serves templates from memory.
type StaticResolver map[string]*core.Resolved

func (s StaticResolver) Resolve(_ context.Context, use string) (*core.Resolved, error) {
	r, ok := s[use]
	if !ok {
		return nil, apperror.New(apperror.TemplateResolutionFailed, "template %q is not known", use)
	}
	return r, nil
}

// Router dispatches local references (./, ../, /, file://) to File and
// everything else to Git.
type Router struct {
	Git  Resolver
	File Resolver
}

func (r *Router) Resolve(ctx context.Context, use string) (*core.Resolved, error) {
	target, kind := r.Git, "git"
	if IsLocal(use) {
		target, kind = r.File, "file"
	}
	if target == nil {
		return nil, apperror.New(apperror.TemplateResolutionFailed, "no %s resolver configured for %q", kind, use)
	}
	return target.Resolve(ctx, use)
}

// IsLocal reports whether use refers to the local filesystem.
func IsLocal(use string) bool {
	for _, prefix := range []string{"file://", "./", "../", "/"} {
		if strings.HasPrefix(use, prefix) {
			return true
		}
	}
	return false
}

func failed(use string, err error) error {
	if apperror.IsKind(err, apperror.TemplateResolutionFailed) {
		return err
	}
	return apperror.Wrap(apperror.TemplateResolutionFailed, err, "resolve %s", use)
}

func notFound(use, path string) error {
	return apperror.New(apperror.TemplateResolutionFailed, "%s does not contain %s", use, path)
}
