// Package grid computes the positions (top-left corners) of the patches that cover a tile.
//
// The order of the corners is part of the contract: patches are extracted in grid order, and
// the stitching of patches back into a tile maps the i-th patch to the i-th corner of the same
// grid. Anything that changes the order of the corners breaks the round trip.
package grid

import (
	"fmt"
	"iter"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrInvalidGeometry is returned when the tile size, patch size and overlap can't form a grid.
var ErrInvalidGeometry = errors.New("invalid grid geometry")

// Size of a tile or a patch, in pixels.
type Size struct {
	Height, Width int
}

// Sz is a shortcut to create a Size.
func Sz(height, width int) Size { return Size{Height: height, Width: width} }

// Add returns s + other, per dimension.
func (s Size) Add(other Size) Size {
	return Size{Height: s.Height + other.Height, Width: s.Width + other.Width}
}

// Sub returns s - other, per dimension. The result may be negative.
func (s Size) Sub(other Size) Size {
	return Size{Height: s.Height - other.Height, Width: s.Width - other.Width}
}

// Grow returns the size with 2*pad added to each dimension: the size of a tile padded by pad
// pixels on all four sides.
func (s Size) Grow(pad int) Size {
	return Size{Height: s.Height + 2*pad, Width: s.Width + 2*pad}
}

// Area is Height*Width.
func (s Size) Area() int { return s.Height * s.Width }

// String implements fmt.Stringer.
func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Height, s.Width) }

// Corner is the top-left position of a patch in a tile.
type Corner struct {
	Row, Col int
}

// String implements fmt.Stringer.
func (c Corner) String() string { return fmt.Sprintf("(y=%d, x=%d)", c.Row, c.Col) }

// Order in which the row and column positions are combined.
type Order uint8

const (
	// RowMajor enumerates rows in the outer loop and columns in the inner loop: the column
	// position varies fastest. This is the default.
	RowMajor Order = iota

	// ColumnMajor enumerates columns in the outer loop, the row varies fastest.
	// It matches numpy's `meshgrid(rows, cols)` flattened, as used by older tooling
	// that produced patch manifests.
	ColumnMajor
)

// String implements fmt.Stringer.
func (o Order) String() string {
	switch o {
	case RowMajor:
		return "RowMajor"
	case ColumnMajor:
		return "ColumnMajor"
	}
	return fmt.Sprintf("Order(%d)", uint8(o))
}

// Grid is an ordered list of corners covering a tile with patches.
//
// It is immutable once created.
type Grid struct {
	tile, patch Size
	overlap     int
	order       Order
	rows, cols  []int
	corners     []Corner
}

// New creates the grid of corners covering a tile of size `tile` with patches of size `patch`,
// where adjacent patches should share `overlap` pixels.
//
// For each dimension, if the tile is not larger than the patch, there is exactly one position, 0.
// Otherwise, `ceil(tile/(patch-overlap))` positions are spread evenly from 0 to `tile-patch`
// (inclusive), rounded down. This guarantees the last patch reaches the far edge of the tile, while
// the realized overlap may differ slightly from the one requested.
//
// It returns an error wrapping ErrInvalidGeometry if the sizes are not positive, the overlap is
// negative or the overlap is not smaller than the patch in a dimension that requires stepping.
func New(tile, patch Size, overlap int) (*Grid, error) {
	return NewWithOrder(tile, patch, overlap, RowMajor)
}

// NewWithOrder is like New, but allows choosing the enumeration order of the corners.
func NewWithOrder(tile, patch Size, overlap int, order Order) (*Grid, error) {
	if tile.Height <= 0 || tile.Width <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "tile size must be positive, got %s", tile)
	}
	if patch.Height <= 0 || patch.Width <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "patch size must be positive, got %s", patch)
	}
	if overlap < 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "overlap must be >= 0, got %d", overlap)
	}
	if order != RowMajor && order != ColumnMajor {
		return nil, errors.Wrapf(ErrInvalidGeometry, "unknown grid order %s", order)
	}
	rows, err := axisPositions(tile.Height, patch.Height, overlap)
	if err != nil {
		return nil, errors.WithMessagef(err, "rows of grid for tile %s, patch %s", tile, patch)
	}
	cols, err := axisPositions(tile.Width, patch.Width, overlap)
	if err != nil {
		return nil, errors.WithMessagef(err, "columns of grid for tile %s, patch %s", tile, patch)
	}

	g := &Grid{
		tile:    tile,
		patch:   patch,
		overlap: overlap,
		order:   order,
		rows:    rows,
		cols:    cols,
		corners: make([]Corner, 0, len(rows)*len(cols)),
	}
	if order == RowMajor {
		for _, row := range rows {
			for _, col := range cols {
				g.corners = append(g.corners, Corner{Row: row, Col: col})
			}
		}
	} else {
		for _, col := range cols {
			for _, row := range rows {
				g.corners = append(g.corners, Corner{Row: row, Col: col})
			}
		}
	}
	return g, nil
}

// MustNew is like New, but panics on error.
func MustNew(tile, patch Size, overlap int) *Grid {
	g, err := New(tile, patch, overlap)
	if err != nil {
		exceptions.Panicf("grid.MustNew(%s, %s, %d): %+v", tile, patch, overlap, err)
	}
	return g
}

// NumSteps returns the number of patch positions along one axis.
func NumSteps(tileDim, patchDim, overlap int) int {
	if tileDim-patchDim <= 0 {
		return 1
	}
	stride := patchDim - overlap
	return (tileDim + stride - 1) / stride
}

// axisPositions returns floor(linspace(0, tileDim-patchDim, steps)).
//
// Integer arithmetic is used, so positions are exact: floor(i*maxPos/(steps-1)).
func axisPositions(tileDim, patchDim, overlap int) ([]int, error) {
	maxPos := tileDim - patchDim
	if maxPos <= 0 {
		return []int{0}, nil
	}
	if overlap >= patchDim {
		return nil, errors.Wrapf(ErrInvalidGeometry,
			"overlap (%d) must be smaller than the patch dimension (%d)", overlap, patchDim)
	}
	steps := NumSteps(tileDim, patchDim, overlap)
	positions := make([]int, steps)
	if steps == 1 {
		return positions, nil
	}
	for ii := range positions {
		positions[ii] = ii * maxPos / (steps - 1)
	}
	return positions, nil
}

// TileSize the grid covers.
func (g *Grid) TileSize() Size { return g.tile }

// PatchSize of each patch in the grid.
func (g *Grid) PatchSize() Size { return g.patch }

// Overlap requested when creating the grid.
func (g *Grid) Overlap() int { return g.overlap }

// Order of the enumeration of the corners.
func (g *Grid) Order() Order { return g.order }

// Len is the number of corners (patches) in the grid.
func (g *Grid) Len() int { return len(g.corners) }

// At returns the i-th corner.
func (g *Grid) At(i int) Corner { return g.corners[i] }

// Corners returns a copy of the list of corners, in grid order.
func (g *Grid) Corners() []Corner {
	corners := make([]Corner, len(g.corners))
	copy(corners, g.corners)
	return corners
}

// Rows returns a copy of the row positions.
func (g *Grid) Rows() []int { return append([]int(nil), g.rows...) }

// Cols returns a copy of the column positions.
func (g *Grid) Cols() []int { return append([]int(nil), g.cols...) }

// All iterates over the index and the corner of each patch, in grid order.
func (g *Grid) All() iter.Seq2[int, Corner] {
	return func(yield func(int, Corner) bool) {
		for ii, c := range g.corners {
			if !yield(ii, c) {
				return
			}
		}
	}
}

// Index returns the index of the first occurrence of the corner in the grid, or -1 if not found.
//
// Notice that with a large overlap, rounding can produce repeated positions.
func (g *Grid) Index(c Corner) int {
	for ii, gc := range g.corners {
		if gc == c {
			return ii
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(tile=%s, patch=%s, overlap=%d, %d rows x %d cols, %s)",
		g.tile, g.patch, g.overlap, len(g.rows), len(g.cols), g.order)
}
