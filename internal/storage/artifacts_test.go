package storage

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windci/internal/core"
	"windci/internal/service"
)

func TestSave(t *testing.T) {
	store := &ArtifactStore{FS: memfs.New()}

	tests := []struct {
		name     string
		artifact service.Artifact
		want     string
	}{
		{
			name:     "my pipeline",
			artifact: service.Artifact{Target: core.TargetBash, Text: "#!/usr/bin/env bash\n", Key: "0123456789abcdef"},
			want:     "my-pipeline_0123456789ab.sh",
		},
		{
			name:     "release/v1.2",
			artifact: service.Artifact{Target: core.TargetJenkins, Text: "pipeline {}\n", Key: "abc"},
			want:     "releasev1-2_abc.groovy",
		},
		{
			name:     "???",
			artifact: service.Artifact{Target: core.TargetBamboo, Text: "---\n"},
			want:     "pipeline.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Save(tt.name, tt.artifact)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			data, err := util.ReadFile(store.FS, got)
			require.NoError(t, err)
			assert.Equal(t, tt.artifact.Text, string(data))
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := &ArtifactStore{FS: memfs.New()}
	a := service.Artifact{Target: core.TargetBash, Text: "one", Key: "k"}
	_, err := store.Save("p", a)
	require.NoError(t, err)

	a.Text = "two"
	path, err := store.Save("p", a)
	require.NoError(t, err)
	data, err := util.ReadFile(store.FS, path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestNewArtifactStoreWritesToDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir)
	path, err := store.Save("disk", service.Artifact{Target: core.TargetBamboo, Text: "---\n", Key: "ff"})
	require.NoError(t, err)
	assert.FileExists(t, dir+"/"+path)
}
