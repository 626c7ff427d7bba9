package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	exists, err := FileExists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, exists)

	fileName := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(fileName, []byte("x"), 0644))
	exists, err = FileExists(fileName)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	// A path under a regular file can't be checked.
	_, err = FileExists(filepath.Join(fileName, "child"))
	require.Error(t, err)
}

func TestStemAndExt(t *testing.T) {
	assert.Equal(t, "tile_1", Stem("/data/tile_1.rgb.tif"))
	assert.Equal(t, "tile_1", Stem("tile_1"))
	assert.Equal(t, "", Stem("/data/.hidden"))
	assert.Equal(t, "tif", Ext("/data/tile_1.rgb.TIF"))
	assert.Equal(t, "", Ext("/data/tile_1"))
}

func TestReplaceTildeInDir(t *testing.T) {
	dir, err := ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", dir)

	dir, err = ReplaceTildeInDir("~/data")
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}
	assert.Equal(t, "data", filepath.Base(dir))
	assert.NotContains(t, dir, "~")
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, EnsureDir(dir))
}
