package template

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"windci/internal/core"
)

// FileResolver resolves templates from a directory tree. A reference may name
// an action file or a directory containing action.yaml.
type FileResolver struct {
	FS billy.Filesystem
}

// NewFileResolver serves templates below root.
func NewFileResolver(root string) *FileResolver {
	return &FileResolver{FS: osfs.New(root)}
}

func (r *FileResolver) Resolve(_ context.Context, use string) (*core.Resolved, error) {
	p := path.Clean("/" + strings.TrimPrefix(use, "file://"))
	if strings.HasPrefix(strings.TrimPrefix(strings.TrimPrefix(use, "file://"), "./"), "..") {
		return nil, failed(use, errors.New("reference escapes the template root"))
	}

	info, err := r.FS.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(use, p)
		}
		return nil, failed(use, err)
	}
	if info.IsDir() {
		p = path.Join(p, ActionFileName)
	}
	data, err := util.ReadFile(r.FS, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(use, p)
		}
		return nil, failed(use, err)
	}
	f, err := ParseActionFile(data)
	if err != nil {
		return nil, failed(use, err)
	}
	return f.Resolved(p), nil
}
