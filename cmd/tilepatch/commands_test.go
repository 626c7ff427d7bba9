package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/ml/patchjob"
	"github.com/gomlx/tiling/pkg/support/rasterfile"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExtractAndStitch extracts patches of two gray 4x6 tiles (patch 4x4, overlap 2: columns 0, 1
// and 2) and stitches them back from the manifest.
func TestExtractAndStitch(t *testing.T) {
	dir := t.TempDir()
	pattern := raster.New[uint8](4, 6, 1)
	for ii := range pattern.Data {
		pattern.Data[ii] = uint8(ii * 7)
	}
	flat := raster.New[uint8](4, 6, 1)
	flat.Fill(200)
	store := rasterfile.NewStore()
	patternPath, flatPath := filepath.Join(dir, "pattern.png"), filepath.Join(dir, "flat.png")
	require.NoError(t, store.Save(patternPath, pattern))
	require.NoError(t, store.Save(flatPath, flat))
	groupsPath := filepath.Join(dir, "groups.txt")
	require.NoError(t, os.WriteFile(groupsPath, []byte(patternPath+"\n"+flatPath+"\n"), 0644))

	baseDir := filepath.Join(dir, "out")
	require.NoError(t, extractCmd([]string{"-base_dir", baseDir, "-dataset", "d", "-tile=4,6", "-patch=4,4",
		"-overlap=2", "-exts=png", "-quiet", groupsPath}))
	job := must.M1(patchjob.New(patchjob.Config{
		Dataset: "d", BaseDir: baseDir, TileSize: grid.Sz(4, 6), PatchSize: grid.Sz(4, 4), Overlap: 2}))
	require.True(t, job.IsDone())
	manifest := job.ManifestPath()
	require.Len(t, must.M1(job.FileList()), 6)

	stitch := func(group int, out string, extra ...string) {
		args := []string{"-tile=4,6", "-patch=4,4", "-overlap=2", "-manifest", manifest, "-field=0",
			fmt.Sprintf("-group=%d", group), "-out", out}
		require.NoError(t, stitchCmd(append(args, extra...)), "stitching to %q", out)
	}
	coverage := []int{1, 2, 3, 3, 2, 1}

	// Averaging reconstructs the original tile.
	averagePath := filepath.Join(dir, "average.png")
	stitch(0, averagePath, "-average")
	average := must.M1(store.Load(averagePath))
	assert.Equal(t, pattern.Shape(), average.Shape())
	assert.Equal(t, pattern.Data, average.Data)

	// npy keeps the sums, as float32.
	sumPath := filepath.Join(dir, "sum.npy")
	stitch(0, sumPath)
	sum := must.M1(rasterfile.Read[float32](sumPath, raster.ImageConfig{}))
	require.Equal(t, pattern.Shape(), sum.Shape())
	for y := range 4 {
		for x := range 6 {
			assert.Equal(t, float32(int(pattern.At(y, x, 0))*coverage[x]), sum.At(y, x, 0), "(%d, %d)", y, x)
		}
	}

	// Images clamp the sums to 255.
	clampedPath := filepath.Join(dir, "clamped.png")
	stitch(1, clampedPath)
	clamped := must.M1(store.Load(clampedPath))
	require.Equal(t, flat.Shape(), clamped.Shape())
	for y := range 4 {
		for x := range 6 {
			want := uint8(255)
			if coverage[x] == 1 {
				want = 200
			}
			assert.Equal(t, want, clamped.At(y, x, 0), "(%d, %d)", y, x)
		}
	}

	// A second extraction is skipped, and the manifest is kept.
	require.NoError(t, extractCmd([]string{"-base_dir", baseDir, "-dataset", "d", "-tile=4,6", "-patch=4,4",
		"-overlap=2", "-exts=png", "-quiet", groupsPath}))
	require.Len(t, must.M1(job.FileList()), 6)

	// Group out of range of the manifest.
	require.Error(t, stitchCmd([]string{"-tile=4,6", "-patch=4,4", "-overlap=2", "-manifest", manifest,
		"-group=2", "-out", filepath.Join(dir, "none.png")}))
}
