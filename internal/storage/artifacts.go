// Package storage writes generated artifacts to disk.
package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"windci/internal/service"
)

// keyPrefix is how much of the fingerprint goes into a file name.
const keyPrefix = 12

// ArtifactStore saves artifacts below a base directory.
type ArtifactStore struct {
	FS billy.Filesystem
}

// NewArtifactStore stores artifacts in baseDir on the local disk.
func NewArtifactStore(baseDir string) *ArtifactStore {
	return &ArtifactStore{FS: osfs.New(baseDir)}
}

// Save writes the artifact as <name>_<key>.<ext> and returns the path
// relative to the store root. Saving the same pipeline twice overwrites
// the earlier file.
func (s *ArtifactStore) Save(name string, a service.Artifact) (string, error) {
	key := a.Key
	if len(key) > keyPrefix {
		key = key[:keyPrefix]
	}
	filename := fmt.Sprintf("%s_%s.%s", sanitize(name), key, a.Target.Extension())
	if key == "" {
		filename = fmt.Sprintf("%s.%s", sanitize(name), a.Target.Extension())
	}

	mode := os.FileMode(0o644)
	if a.Target.Extension() == "sh" {
		mode = 0o755
	}
	if err := util.WriteFile(s.FS, filename, []byte(a.Text), mode); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", filename, err)
	}
	return filename, nil
}

// sanitize removes special characters from names for filenames
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "pipeline"
	}
	return b.String()
}
