package patchjob

import (
	"fmt"
	"path/filepath"

	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// DefaultName of a job, used to name its output directories.
const DefaultName = "patch_extractor"

// Config of a patch extraction job.
type Config struct {
	// Name of the job, DefaultName if empty.
	Name string

	// Dataset name, used to name the output directory.
	Dataset string

	// BaseDir where the output directory is created. A leading "~" is expanded to the user's home.
	BaseDir string

	// TileSize of the input files, without padding.
	// If zero, the size of the first file of each group is used.
	TileSize grid.Size

	// PatchSize of the extracted patches.
	PatchSize grid.Size

	// Overlap in pixels between adjacent patches.
	Overlap int

	// Pad added on all four sides of each input file before extracting the patches.
	Pad int

	// PadMode used when Pad > 0.
	PadMode raster.PadMode

	// Order in which the grid positions are enumerated, and hence the order of the manifest lines.
	Order grid.Order
}

func (c Config) name() string {
	if c.Name == "" {
		return DefaultName
	}
	return c.Name
}

// DirName returns the name of the directory of the job, which encodes its geometry:
// `{name}_h{patchHeight}w{patchWidth}_overlap{overlap}_pad{pad}`.
func (c Config) DirName() string {
	return fmt.Sprintf("%s_h%dw%d_overlap%d_pad%d", c.name(), c.PatchSize.Height, c.PatchSize.Width, c.Overlap, c.Pad)
}

// OutputDir where patches and the manifest are written: `{BaseDir}/{name}/{Dataset}/{DirName}`.
func (c Config) OutputDir() (string, error) {
	baseDir, err := fsutil.ReplaceTildeInDir(c.BaseDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, c.name(), c.Dataset, c.DirName()), nil
}

// Validate the configuration, without touching the file system.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return errors.New("patchjob: Config.Dataset must be set")
	}
	if c.PatchSize.Height <= 0 || c.PatchSize.Width <= 0 {
		return errors.Errorf("patchjob: invalid patch size %s", c.PatchSize)
	}
	if c.Pad < 0 {
		return errors.Errorf("patchjob: negative padding %d", c.Pad)
	}
	if c.TileSize != (grid.Size{}) {
		if _, err := c.grid(c.TileSize); err != nil {
			return err
		}
	}
	return nil
}

// grid for a tile of the given size, without padding.
func (c Config) grid(tile grid.Size) (*grid.Grid, error) {
	return grid.NewWithOrder(tile.Grow(c.Pad), c.PatchSize, c.Overlap, c.Order)
}

// String implements fmt.Stringer.
func (c Config) String() string {
	tile := "from files"
	if c.TileSize != (grid.Size{}) {
		tile = c.TileSize.String()
	}
	return fmt.Sprintf("%s/%s: tile=%s, patch=%s, overlap=%d, pad=%d (%s), %s",
		c.name(), c.Dataset, tile, c.PatchSize, c.Overlap, c.Pad, c.PadMode, c.Order)
}
