package patches

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/pkg/errors"
)

var (
	// ErrPatchCount is returned when the number of patches given to be stitched differs from the
	// number of corners in the grid.
	ErrPatchCount = errors.New("number of patches doesn't match the grid")

	// ErrPatchShape is returned when a patch given to be stitched doesn't have the expected output
	// patch size, or has a different number of channels than the previous patches.
	ErrPatchShape = errors.New("unexpected patch shape")
)

// Stitch holds the geometry used to stitch patches back into a tile. Create it with NewStitch and
// optionally configure it with the With* methods.
type Stitch struct {
	tile, patch       grid.Size
	tileOut, patchOut grid.Size
	overlap           int
	order             grid.Order
}

// NewStitch creates the stitching configuration for patches that were extracted from a tile of
// size `tile` (already including any padding) with the given patch size and overlap.
//
// By default, the output tile and patch sizes are the same as the input ones.
func NewStitch(tile, patch grid.Size, overlap int) *Stitch {
	return &Stitch{
		tile:     tile,
		patch:    patch,
		tileOut:  tile,
		patchOut: patch,
		overlap:  overlap,
		order:    grid.RowMajor,
	}
}

// WithOutput sets the size of the stitched output tile and of each patch given to be stitched, for
// patches that shrunk during processing (e.g. convolutions without padding).
//
// The corners where patches are placed are still the ones of the grid over the input tile: an
// output patch is assumed to be anchored at the same top-left corner as its input patch.
//
// It returns itself, so calls can be chained.
func (s *Stitch) WithOutput(tileOut, patchOut grid.Size) *Stitch {
	s.tileOut = tileOut
	s.patchOut = patchOut
	return s
}

// WithOrder sets the enumeration order of the grid corners. It must match the order used to extract
// the patches. Default is grid.RowMajor.
func (s *Stitch) WithOrder(order grid.Order) *Stitch {
	s.order = order
	return s
}

// Grid recreates the grid over the input tile, as used to extract the patches.
func (s *Stitch) Grid() (*grid.Grid, error) {
	return grid.NewWithOrder(s.tile, s.patch, s.overlap, s.order)
}

// TileOutput returns the size of the stitched tile.
func (s *Stitch) TileOutput() grid.Size { return s.tileOut }

// PatchOutput returns the size of the patches to be stitched.
func (s *Stitch) PatchOutput() grid.Size { return s.patchOut }

// String implements fmt.Stringer.
func (s *Stitch) String() string {
	return fmt.Sprintf("Stitch(tile=%s, patch=%s, overlap=%d, tileOut=%s, patchOut=%s, %s)",
		s.tile, s.patch, s.overlap, s.tileOut, s.patchOut, s.order)
}

// validatePlacement checks that every output patch placed at the grid corners fits in the output tile.
func (s *Stitch) validatePlacement(g *grid.Grid) error {
	if s.tileOut.Height <= 0 || s.tileOut.Width <= 0 || s.patchOut.Height <= 0 || s.patchOut.Width <= 0 {
		return errors.Errorf("invalid output sizes for %s", s)
	}
	for ii, c := range g.All() {
		if c.Row+s.patchOut.Height > s.tileOut.Height || c.Col+s.patchOut.Width > s.tileOut.Width {
			return errors.Wrapf(ErrOutOfBounds, "output patch #%d at %s of size %s doesn't fit in output tile %s",
				ii, c, s.patchOut, s.tileOut)
		}
	}
	return nil
}

// Accumulator stitches patches one at a time, in grid order: the i-th patch added is placed at the
// i-th corner of the grid. Overlapping regions are summed.
//
// It also keeps count of how many patches covered each pixel, see Average.
type Accumulator[T dtypes.NumberNotComplex] struct {
	cfg      *Stitch
	grid     *grid.Grid
	sum      *raster.Raster[float64]
	coverage *raster.Raster[float64]
	count    int
}

// NewAccumulator creates an Accumulator for the given stitching configuration.
func NewAccumulator[T dtypes.NumberNotComplex](cfg *Stitch) (*Accumulator[T], error) {
	g, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	if err = cfg.validatePlacement(g); err != nil {
		return nil, err
	}
	return &Accumulator[T]{cfg: cfg, grid: g}, nil
}

// Grid used to place the patches.
func (a *Accumulator[T]) Grid() *grid.Grid { return a.grid }

// Count of patches added so far.
func (a *Accumulator[T]) Count() int { return a.count }

// Done returns whether all the patches of the grid have been added.
func (a *Accumulator[T]) Done() bool { return a.count == a.grid.Len() }

// Add sums the next patch into the output, at the next corner of the grid.
//
// The patch must have the output patch size, and the same number of channels as the first patch.
func (a *Accumulator[T]) Add(patch *raster.Raster[T]) error {
	if a.count >= a.grid.Len() {
		return errors.Wrapf(ErrPatchCount, "grid has %d corners, can't add patch #%d", a.grid.Len(), a.count)
	}
	if patch.Height != a.cfg.patchOut.Height || patch.Width != a.cfg.patchOut.Width {
		return errors.Wrapf(ErrPatchShape, "patch #%d has size %s, expected %s",
			a.count, patch.Size(), a.cfg.patchOut)
	}
	if a.sum == nil {
		a.sum = raster.New[float64](a.cfg.tileOut.Height, a.cfg.tileOut.Width, patch.Channels)
		a.coverage = raster.New[float64](a.cfg.tileOut.Height, a.cfg.tileOut.Width, 1)
	} else if patch.Channels != a.sum.Channels {
		return errors.Wrapf(ErrPatchShape, "patch #%d has %d channels, previous patches had %d",
			a.count, patch.Channels, a.sum.Channels)
	}
	corner := a.grid.At(a.count)
	a.sum.AddAt(raster.Convert[float64](patch), corner.Row, corner.Col)
	addCoverage(a.coverage, corner, a.cfg.patchOut)
	a.count++
	return nil
}

// Sum returns the stitched raster, where each pixel holds the sum of all patches that covered it.
// The returned raster is owned by the Accumulator, and changes if more patches are added.
//
// It returns an error wrapping ErrPatchCount if not all patches of the grid were added.
func (a *Accumulator[T]) Sum() (*raster.Raster[float64], error) {
	if !a.Done() {
		return nil, errors.Wrapf(ErrPatchCount, "only %d patches added, grid has %d", a.count, a.grid.Len())
	}
	return a.sum, nil
}

// Coverage returns how many patches covered each pixel, as a single channel raster.
func (a *Accumulator[T]) Coverage() (*raster.Raster[float64], error) {
	if !a.Done() {
		return nil, errors.Wrapf(ErrPatchCount, "only %d patches added, grid has %d", a.count, a.grid.Len())
	}
	return a.coverage, nil
}

// Average returns a new raster with the sum of the patches divided by the number of patches that
// covered each pixel. Pixels not covered by any patch are 0.
func (a *Accumulator[T]) Average() (*raster.Raster[float64], error) {
	sum, err := a.Sum()
	if err != nil {
		return nil, err
	}
	return Normalize(sum, a.coverage)
}

// Unpatch stitches patches, given in grid order, back into a raster of the output tile size, summing
// the values of overlapping regions. Use Normalize with Coverage (or an Accumulator's Average) to
// average overlapping regions instead.
//
// The number of patches must match the number of corners of the grid (ErrPatchCount), and every
// patch must have the output patch size (ErrPatchShape).
func Unpatch[T dtypes.NumberNotComplex](patches []*raster.Raster[T], cfg *Stitch) (*raster.Raster[float64], error) {
	acc, err := NewAccumulator[T](cfg)
	if err != nil {
		return nil, err
	}
	if len(patches) != acc.grid.Len() {
		return nil, errors.Wrapf(ErrPatchCount, "got %d patches for a grid with %d corners", len(patches), acc.grid.Len())
	}
	for _, patch := range patches {
		if err = acc.Add(patch); err != nil {
			return nil, err
		}
	}
	return acc.Sum()
}

func addCoverage(coverage *raster.Raster[float64], corner grid.Corner, size grid.Size) {
	for y := corner.Row; y < corner.Row+size.Height; y++ {
		row := coverage.Data[y*coverage.Width+corner.Col : y*coverage.Width+corner.Col+size.Width]
		for ii := range row {
			row[ii]++
		}
	}
}

// Coverage returns, for each pixel of the output tile, how many output patches cover it.
// It's a single channel raster.
func Coverage(cfg *Stitch) (*raster.Raster[float64], error) {
	g, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	if err = cfg.validatePlacement(g); err != nil {
		return nil, err
	}
	coverage := raster.New[float64](cfg.tileOut.Height, cfg.tileOut.Width, 1)
	for _, c := range g.All() {
		addCoverage(coverage, c, cfg.patchOut)
	}
	return coverage, nil
}

// Normalize returns a new raster with each channel of sum divided by coverage, a single channel
// raster of the same spatial size. Pixels with zero coverage are set to 0.
func Normalize(sum, coverage *raster.Raster[float64]) (*raster.Raster[float64], error) {
	if coverage.Channels != 1 || coverage.Height != sum.Height || coverage.Width != sum.Width {
		return nil, errors.Errorf("patches.Normalize: coverage %s doesn't match sum %s", coverage, sum)
	}
	out := raster.New[float64](sum.Height, sum.Width, sum.Channels)
	for pixel, count := range coverage.Data {
		if count == 0 {
			continue
		}
		base := pixel * sum.Channels
		for c := 0; c < sum.Channels; c++ {
			out.Data[base+c] = sum.Data[base+c] / count
		}
	}
	return out, nil
}
