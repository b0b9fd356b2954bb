package delivery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveStateSortsFilesByRelativePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	st := State{Models: map[string]ModelEntry{
		"acme/recognizer": {
			Revision:     "rev1",
			SnapshotPath: "/models/acme",
			UpdatedAtUTC: nowUTC(),
			Files: []FileEntry{
				{RelativePath: "tokenizer.json", ETag: "b"},
				{RelativePath: "config.json", ETag: "a"},
			},
		},
	}}
	require.NoError(t, saveState(path, st))

	loaded, err := loadState(path)
	require.NoError(t, err)
	files := loaded.Models["acme/recognizer"].Files
	if assert.Len(t, files, 2) {
		assert.Equal(t, "config.json", files[0].RelativePath)
		assert.Equal(t, "tokenizer.json", files[1].RelativePath)
	}
}

func TestLoadStateReturnsEmptyWhenFileMissing(t *testing.T) {
	st, err := loadState(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, st.Models)
}
