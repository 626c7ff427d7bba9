package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSize(t *testing.T) {
	size, err := toSize("tile", nil)
	require.NoError(t, err)
	assert.Equal(t, grid.Size{}, size)
	size, err = toSize("tile", []int{5})
	require.NoError(t, err)
	assert.Equal(t, grid.Sz(5, 5), size)
	size, err = toSize("tile", []int{5, 7})
	require.NoError(t, err)
	assert.Equal(t, grid.Sz(5, 7), size)
	_, err = toSize("tile", []int{1, 2, 3})
	require.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	order, err := parseOrder("column")
	require.NoError(t, err)
	assert.Equal(t, grid.ColumnMajor, order)
	order, err = parseOrder("row")
	require.NoError(t, err)
	assert.Equal(t, grid.RowMajor, order)
	_, err = parseOrder("diagonal")
	require.Error(t, err)
}

func TestReadGroups(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "groups.txt")
	contents := "# image mask\na.tif  a_mask.tif\n\n  b.tif\tb_mask.tif  \n"
	require.NoError(t, os.WriteFile(filePath, []byte(contents), 0644))
	groups, err := readGroups(filePath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a.tif", "a_mask.tif"}, {"b.tif", "b_mask.tif"}}, groups)
}

func TestPatchesFromManifest(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "file_list.txt")
	contents := "a_y0x0.jpg a_y0x0.png\na_y0x2.jpg a_y0x2.png\nb_y0x0.jpg b_y0x0.png\nb_y0x2.jpg b_y0x2.png\n"
	require.NoError(t, os.WriteFile(filePath, []byte(contents), 0644))
	paths, err := patchesFromManifest(filePath, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b_y0x0.png", "b_y0x2.png"}, paths)

	_, err = patchesFromManifest(filePath, 2, 0, 2)
	require.Error(t, err)
	_, err = patchesFromManifest(filePath, 0, 2, 2)
	require.Error(t, err)

	s := summarizeFileList([][]string{{filePath, filepath.Join(t.TempDir(), "missing.png")}})
	assert.Equal(t, 2, s.fields)
	assert.Equal(t, 2, s.files)
	assert.Equal(t, 1, s.missing)
	assert.Equal(t, int64(len(contents)), s.bytes)
}
