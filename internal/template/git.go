package template

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"windci/internal/core"
	"windci/internal/logging"
)

// DefaultBaseURL prefixes bare template slugs such as "java-build".
const DefaultBaseURL = "https://github.com/ls1intum"

// CloneFunc checks out url at ref (empty for the default branch) and returns the worktree.
type CloneFunc func(ctx context.Context, url, ref string) (billy.Filesystem, error)

// GitResolver resolves templates stored in git repositories.
//
// A reference is either a repository URL ending in .git or a bare slug,
// optionally followed by @branch.
type GitResolver struct {
	BaseURL string
	Clone   CloneFunc
}

// NewGitResolver returns a resolver that shallow-clones into memory.
func NewGitResolver(baseURL string) *GitResolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GitResolver{BaseURL: strings.TrimSuffix(baseURL, "/"), Clone: CloneInMemory}
}

// Location splits use into the repository URL and the optional branch.
func (r *GitResolver) Location(use string) (url, ref string, err error) {
	url = strings.TrimSpace(use)
	if i := strings.LastIndex(url, "@"); i > strings.LastIndex(url, "/") && i > 0 {
		url, ref = url[:i], url[i+1:]
	}
	if !strings.Contains(url, "/") {
		base := r.BaseURL
		if base == "" {
			base = DefaultBaseURL
		}
		url = base + "/" + url + ".git"
	}
	if !strings.HasSuffix(url, ".git") {
		return "", "", failed(use, errors.New("not a git repository reference"))
	}
	return url, ref, nil
}

func (r *GitResolver) Resolve(ctx context.Context, use string) (*core.Resolved, error) {
	url, ref, err := r.Location(use)
	if err != nil {
		return nil, err
	}
	clone := r.Clone
	if clone == nil {
		clone = CloneInMemory
	}

	logger := logging.FromContext(ctx).With(slog.String("url", url))
	logger.Debug("cloning template repository", slog.String("ref", ref))
	fs, err := clone(ctx, url, ref)
	if err != nil {
		return nil, failed(use, err)
	}
	data, err := util.ReadFile(fs, ActionFileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(use, ActionFileName)
		}
		return nil, failed(use, err)
	}
	f, err := ParseActionFile(data)
	if err != nil {
		return nil, failed(use, err)
	}
	logger.Debug("resolved template", slog.Int("steps", len(f.Steps)))
	return f.Resolved(url), nil
}

// CloneInMemory performs a depth-1 single-branch clone into memory.
func CloneInMemory(ctx context.Context, url, ref string) (billy.Filesystem, error) {
	fs := memfs.New()
	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}
	if _, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts); err != nil {
		return nil, err
	}
	return fs, nil
}
