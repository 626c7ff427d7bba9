package patches

import (
	"testing"

	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iotaRaster(height, width, channels int) *raster.Raster[float32] {
	r := raster.New[float32](height, width, channels)
	for ii := range r.Data {
		r.Data[ii] = float32(ii)
	}
	return r
}

func TestExtract(t *testing.T) {
	src := iotaRaster(4, 6, 2)
	g := grid.MustNew(src.Size(), grid.Sz(2, 3), 0)
	seq, err := Extract(src, 0, raster.PadSymmetric, g)
	require.NoError(t, err)

	var corners []grid.Corner
	for corner, patch := range seq {
		corners = append(corners, corner)
		require.True(t, patch.SameShape(2, 3, 2))
		assert.Equal(t, src.Crop(corner.Row, corner.Col, 2, 3).Data, patch.Data)
	}
	assert.Equal(t, g.Corners(), corners)

	// Restartable: a second iteration yields the same patches.
	count := 0
	for corner, patch := range seq {
		assert.Equal(t, corners[count], corner)
		assert.Equal(t, src.Crop(corner.Row, corner.Col, 2, 3).Data, patch.Data)
		count++
	}
	assert.Equal(t, g.Len(), count)

	// Early termination.
	count = 0
	for range seq {
		count++
		break
	}
	assert.Equal(t, 1, count)

	// Patches are independent copies.
	all, err := Collect(src, 0, raster.PadSymmetric, g)
	require.NoError(t, err)
	require.Len(t, all, 4)
	all[0].Data[0] = -1
	assert.Equal(t, float32(0), src.Data[0])
}

func TestExtractOutOfBounds(t *testing.T) {
	src := iotaRaster(4, 4, 1)
	// Grid computed for a padded tile, but no padding given.
	g := grid.MustNew(src.Size().Grow(2), grid.Sz(4, 4), 0)
	_, err := Extract(src, 0, raster.PadZero, g)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = Extract(src, -1, raster.PadZero, g)
	require.Error(t, err)

	// With padding it works.
	seq, err := Patches(src, 2, raster.PadZero, g)
	require.NoError(t, err)
	count := 0
	for patch := range seq {
		require.True(t, patch.SameShape(4, 4, 1))
		count++
	}
	assert.Equal(t, g.Len(), count)
}

// With pad p, extracting from a tile (H, W) with a grid over (H+2p, W+2p) never reads outside the
// padded raster, for any patch size up to (H+2p, W+2p).
func TestExtractWithPaddingNeverOutOfBounds(t *testing.T) {
	const height, width = 7, 5
	src := iotaRaster(height, width, 3)
	for pad := 1; pad <= 3; pad++ {
		padded := src.Size().Grow(pad)
		for ph := 1; ph <= padded.Height; ph++ {
			for pw := 1; pw <= padded.Width; pw++ {
				for _, overlap := range []int{0, min(ph, pw) - 1} {
					g, err := grid.New(padded, grid.Sz(ph, pw), overlap)
					require.NoError(t, err)
					all, err := Collect(src, pad, raster.PadReflect, g)
					require.NoError(t, err, "pad=%d, patch=%dx%d, overlap=%d", pad, ph, pw, overlap)
					require.Len(t, all, g.Len())
				}
			}
		}
	}
}

func TestRoundTripNoOverlap(t *testing.T) {
	for _, order := range []grid.Order{grid.RowMajor, grid.ColumnMajor} {
		src := iotaRaster(6, 8, 3)
		g, err := grid.NewWithOrder(src.Size(), grid.Sz(3, 2), 0, order)
		require.NoError(t, err)
		all, err := Collect(src, 0, raster.PadSymmetric, g)
		require.NoError(t, err)

		stitched, err := Unpatch(all, NewStitch(src.Size(), grid.Sz(3, 2), 0).WithOrder(order))
		require.NoError(t, err)
		assert.Equal(t, src.Shape(), stitched.Shape())
		assert.Equal(t, raster.Convert[float64](src).Data, stitched.Data, "order=%s", order)
	}
}

func TestOverlapIsSummed(t *testing.T) {
	// A 1x3 tile with 1x2 patches: corners at columns 0 and 1, overlapping at column 1.
	stitch := NewStitch(grid.Sz(1, 3), grid.Sz(1, 2), 0)
	g, err := stitch.Grid()
	require.NoError(t, err)
	require.Equal(t, []grid.Corner{{Row: 0, Col: 0}, {Row: 0, Col: 1}}, g.Corners())

	ones := raster.New[uint8](1, 2, 1)
	ones.Fill(1)
	sum, err := Unpatch([]*raster.Raster[uint8]{ones, ones}, stitch)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1}, sum.Data)

	coverage, err := Coverage(stitch)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 1}, coverage.Data)
	avg, err := Normalize(sum, coverage)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, avg.Data)
}

func TestAverageRecoversUniform(t *testing.T) {
	src := raster.New[float32](10, 10, 2)
	src.Fill(3)
	g := grid.MustNew(src.Size(), grid.Sz(4, 4), 2)
	all, err := Collect(src, 0, raster.PadSymmetric, g)
	require.NoError(t, err)

	acc, err := NewAccumulator[float32](NewStitch(src.Size(), grid.Sz(4, 4), 2))
	require.NoError(t, err)
	for _, patch := range all {
		require.NoError(t, acc.Add(patch))
	}
	require.True(t, acc.Done())
	avg, err := acc.Average()
	require.NoError(t, err)
	for _, v := range avg.Data {
		require.InDelta(t, 3.0, v, 1e-9)
	}
	sum, err := acc.Sum()
	require.NoError(t, err)
	coverage, err := acc.Coverage()
	require.NoError(t, err)
	// Corner pixel is covered by one patch only, the center by several.
	assert.Equal(t, 1.0, coverage.At(0, 0, 0))
	assert.Greater(t, coverage.At(5, 5, 0), 1.0)
	assert.Equal(t, 3*coverage.At(5, 5, 0), sum.At(5, 5, 1))
}

// Patches extracted from a padded tile, then shrunk by the padding (as by a convolution without
// padding), stitch back into the original tile.
func TestShrunkPatches(t *testing.T) {
	const pad = 1
	src := iotaRaster(6, 6, 1)
	paddedSize := src.Size().Grow(pad)
	patchSize := grid.Sz(4, 4)
	g := grid.MustNew(paddedSize, patchSize, 2)
	all, err := Collect(src, pad, raster.PadSymmetric, g)
	require.NoError(t, err)

	shrunk := make([]*raster.Raster[float32], len(all))
	for ii, patch := range all {
		shrunk[ii] = patch.Crop(pad, pad, patchSize.Height-2*pad, patchSize.Width-2*pad)
	}
	stitch := NewStitch(paddedSize, patchSize, 2).WithOutput(src.Size(), grid.Sz(2, 2))
	acc, err := NewAccumulator[float32](stitch)
	require.NoError(t, err)
	for _, patch := range shrunk {
		require.NoError(t, acc.Add(patch))
	}
	avg, err := acc.Average()
	require.NoError(t, err)
	assert.Equal(t, raster.Convert[float64](src).Data, avg.Data)
}

func TestUnpatchErrors(t *testing.T) {
	stitch := NewStitch(grid.Sz(4, 4), grid.Sz(2, 2), 0)
	patch := raster.New[int32](2, 2, 1)

	_, err := Unpatch([]*raster.Raster[int32]{patch, patch, patch}, stitch)
	require.ErrorIs(t, err, ErrPatchCount)

	_, err = Unpatch([]*raster.Raster[int32]{patch, patch, patch, raster.New[int32](3, 2, 1)}, stitch)
	require.ErrorIs(t, err, ErrPatchShape)

	_, err = Unpatch([]*raster.Raster[int32]{patch, patch, patch, raster.New[int32](2, 2, 3)}, stitch)
	require.ErrorIs(t, err, ErrPatchShape)

	acc, err := NewAccumulator[int32](stitch)
	require.NoError(t, err)
	require.NoError(t, acc.Add(patch))
	_, err = acc.Sum()
	require.ErrorIs(t, err, ErrPatchCount)
	for range 3 {
		require.NoError(t, acc.Add(patch))
	}
	require.ErrorIs(t, acc.Add(patch), ErrPatchCount)

	// Output patches that don't fit in the output tile.
	_, err = NewAccumulator[int32](NewStitch(grid.Sz(4, 4), grid.Sz(2, 2), 0).WithOutput(grid.Sz(3, 3), grid.Sz(2, 2)))
	require.ErrorIs(t, err, ErrOutOfBounds)

	// Invalid grid.
	_, err = Unpatch([]*raster.Raster[int32]{patch}, NewStitch(grid.Sz(4, 4), grid.Sz(2, 2), 2))
	require.ErrorIs(t, err, grid.ErrInvalidGeometry)

	_, err = Normalize(raster.New[float64](2, 2, 1), raster.New[float64](2, 3, 1))
	require.Error(t, err)
}
