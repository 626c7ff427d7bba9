// Package patches splits rasters into patches laid out on a grid.Grid, and stitches patches back
// into a full raster.
//
// Extraction and stitching are inverse operations only if the patches are given back in the same
// order the grid enumerates its corners. Unpatch and Accumulator verify the number and the shape
// of the patches, but they can't verify their order.
package patches

import (
	"iter"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned when a patch of the grid would read outside the (padded) source.
var ErrOutOfBounds = errors.New("patch out of bounds")

// Extract returns the patches of src at each corner of g, along with their corner.
//
// If pad > 0, src is first padded with pad pixels on all four sides using padMode, and the corners
// are relative to the padded raster. Normally g is created for the tile size `src.Size().Grow(pad)`.
//
// It checks upfront that every patch of the grid fits inside the padded source, and returns an
// error wrapping ErrOutOfBounds otherwise. The returned sequence is lazy: patches are cropped as
// they are consumed. Each patch is an independent copy. The sequence can be iterated again,
// yielding the same patches.
func Extract[T dtypes.NumberNotComplex](src *raster.Raster[T], pad int, padMode raster.PadMode, g *grid.Grid) (
	iter.Seq2[grid.Corner, *raster.Raster[T]], error) {
	if pad < 0 {
		return nil, errors.Errorf("patches.Extract: negative padding %d", pad)
	}
	padded := src
	if pad > 0 {
		padded = src.Pad(pad, padMode)
	}
	patchSize := g.PatchSize()
	for ii, corner := range g.All() {
		if !padded.Contains(corner.Row, corner.Col, patchSize) {
			return nil, errors.Wrapf(ErrOutOfBounds,
				"patch #%d at %s of size %s doesn't fit in source %s (padded by %d)",
				ii, corner, patchSize, padded, pad)
		}
	}
	return func(yield func(grid.Corner, *raster.Raster[T]) bool) {
		for _, corner := range g.All() {
			patch := padded.Crop(corner.Row, corner.Col, patchSize.Height, patchSize.Width)
			if !yield(corner, patch) {
				return
			}
		}
	}, nil
}

// Patches is like Extract, but yields only the patches.
func Patches[T dtypes.NumberNotComplex](src *raster.Raster[T], pad int, padMode raster.PadMode, g *grid.Grid) (
	iter.Seq[*raster.Raster[T]], error) {
	seq2, err := Extract(src, pad, padMode, g)
	if err != nil {
		return nil, err
	}
	return func(yield func(*raster.Raster[T]) bool) {
		for _, patch := range seq2 {
			if !yield(patch) {
				return
			}
		}
	}, nil
}

// Collect extracts all patches into a slice, in grid order.
func Collect[T dtypes.NumberNotComplex](src *raster.Raster[T], pad int, padMode raster.PadMode, g *grid.Grid) (
	[]*raster.Raster[T], error) {
	seq, err := Patches(src, pad, padMode, g)
	if err != nil {
		return nil, err
	}
	all := make([]*raster.Raster[T], 0, g.Len())
	for patch := range seq {
		all = append(all, patch)
	}
	return all, nil
}
