// Package patchjob extracts patches from groups of files (e.g. the image and the label mask of
// the same tile) and saves them, along with a manifest listing the patches of each grid position.
//
// A group is a set of files representing the same tile across different modalities, one file per
// extension. All files of a group are patched with the same grid, and for each grid position one
// manifest line lists the paths of the patches of every file in the group, in the order of the
// extensions.
//
// Example:
//
//	job, err := patchjob.New(patchjob.Config{
//		Dataset:   "inria",
//		BaseDir:   "~/work",
//		TileSize:  grid.Sz(5000, 5000),
//		PatchSize: grid.Sz(572, 572),
//		Overlap:   184,
//		Pad:       92,
//	})
//	if err != nil { ... }
//	err = job.Run(groups, []string{"jpg", "png"})
//	if err != nil { ... }
//	fileList, err := job.FileList()
package patchjob

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/core/patches"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/gomlx/tiling/pkg/support/rasterfile"
	"github.com/gomlx/tiling/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	// ErrConfigMismatch is returned when a file group doesn't have one file per extension.
	ErrConfigMismatch = errors.New("file group doesn't match the extensions")

	// ErrNotReady is returned when the manifest is requested before the job completed.
	ErrNotReady = errors.New("patch job not completed, run it first")
)

// Store loads and saves rasters. rasterfile.Store is the default.
type Store interface {
	Load(filePath string) (*raster.Raster[uint8], error)
	Save(filePath string, r *raster.Raster[uint8]) error
}

// extSupporter is implemented by stores that can tell upfront which file extensions they handle,
// like rasterfile.Store.
type extSupporter interface {
	Supports(ext string) bool
}

// Summary of a run of the job.
type Summary struct {
	// Skipped is set if the run was skipped because a previous run had completed.
	Skipped bool

	Groups, Files, Patches int

	// Bytes written in patch files.
	Bytes int64

	Elapsed time.Duration
}

// String implements fmt.Stringer.
func (s Summary) String() string {
	if s.Skipped {
		return "skipped: previous run completed"
	}
	return fmt.Sprintf("%s groups, %s files, %s patches (%s) in %s",
		humanize.Comma(int64(s.Groups)), humanize.Comma(int64(s.Files)), humanize.Comma(int64(s.Patches)),
		humanize.Bytes(uint64(s.Bytes)), s.Elapsed.Round(time.Millisecond))
}

// Job extracts patches from groups of files. Create it with New and configure it with the With* methods.
type Job struct {
	config    Config
	outputDir string
	store     Store
	tracker   Tracker
	force     bool
	quiet     bool
	summary   Summary
}

// New creates a Job for the given configuration. It validates the configuration but doesn't touch
// the file system.
//
// By default, files are loaded and saved with a rasterfile.Store, and completion is tracked with
// a FileMarker in the output directory.
func New(config Config) (*Job, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	outputDir, err := config.OutputDir()
	if err != nil {
		return nil, err
	}
	return &Job{
		config:    config,
		outputDir: outputDir,
		store:     rasterfile.NewStore(),
		tracker:   NewFileMarker(filepath.Join(outputDir, MarkerFileName)),
	}, nil
}

// WithStore sets the Store used to load the input files and save the patches.
// It returns itself, so calls can be chained.
func (j *Job) WithStore(store Store) *Job {
	j.store = store
	return j
}

// WithTracker sets the Tracker used to record the completion of the job.
func (j *Job) WithTracker(tracker Tracker) *Job {
	j.tracker = tracker
	return j
}

// WithForce makes Run extract the patches even if a previous run completed.
func (j *Job) WithForce(force bool) *Job {
	j.force = force
	return j
}

// WithQuiet disables the progress bar.
func (j *Job) WithQuiet(quiet bool) *Job {
	j.quiet = quiet
	return j
}

// Config returns the job configuration.
func (j *Job) Config() Config { return j.config }

// OutputDir where the patches and the manifest are saved.
func (j *Job) OutputDir() string { return j.outputDir }

// ManifestPath returns the path of the manifest file.
func (j *Job) ManifestPath() string { return filepath.Join(j.outputDir, ManifestFileName) }

// Summary of the last call to Run.
func (j *Job) Summary() Summary { return j.summary }

// IsDone returns whether the job completed, in this or a previous process.
func (j *Job) IsDone() bool { return j.tracker.IsDone() }

// PatchName returns the file name of the patch of filePath at the given corner, saved with the
// given extension: `{stem}_y{row}x{col}.{ext}`, where stem is the base name of filePath up to the
// first ".".
func PatchName(filePath string, corner grid.Corner, ext string) string {
	return fmt.Sprintf("%s_y%dx%d.%s", fsutil.Stem(filePath), corner.Row, corner.Col, ext)
}

// Run extracts and saves the patches of every file of every group, and writes the manifest.
//
// Each group must have one file per extension (exts), and the store must support every extension
// (if it can tell, like rasterfile.Store), otherwise it fails with ErrConfigMismatch before doing any
// I/O. The extension defines the format in which the patches of the corresponding file are saved.
//
// If a previous run completed, Run does nothing, unless the job was configured WithForce.
// Otherwise, the manifest is rewritten from scratch. If Run fails midway the manifest and
// patches written so far are left as is, and the job is not marked as done.
func (j *Job) Run(groups [][]string, exts []string) error {
	if len(exts) == 0 {
		return errors.Wrap(ErrConfigMismatch, "no extensions given")
	}
	exts = xslices.Map(exts, func(ext string) string { return strings.TrimPrefix(ext, ".") })
	for ii, group := range groups {
		if len(group) != len(exts) {
			return errors.Wrapf(ErrConfigMismatch, "group #%d has %d files %q, but %d extensions were given %q",
				ii, len(group), group, len(exts), exts)
		}
	}
	if supporter, ok := j.store.(extSupporter); ok {
		for _, ext := range exts {
			if !supporter.Supports(ext) {
				return errors.Wrapf(ErrConfigMismatch, "extension %q not supported by the store", ext)
			}
		}
	}

	if !j.force && j.tracker.IsDone() {
		klog.Infof("patchjob %s: previous run completed, skipping", j.config.DirName())
		j.summary = Summary{Skipped: true}
		return nil
	}

	start := time.Now()
	j.summary = Summary{}
	if err := j.tracker.Clear(); err != nil {
		return err
	}
	if err := fsutil.EnsureDir(j.outputDir); err != nil {
		return err
	}
	klog.V(1).Infof("patchjob %s: %d groups into %q", j.config, len(groups), j.outputDir)

	manifestPath := j.ManifestPath()
	f, err := os.Create(manifestPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create manifest %q", manifestPath)
	}
	manifest := bufio.NewWriter(f)

	var pBar *progressbar.ProgressBar
	if !j.quiet {
		pBar = progressbar.NewOptions(len(groups),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("groups"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
			progressbar.OptionSetWriter(os.Stderr),
		)
	}

	// Numeric code reports invalid inputs with panics: they are converted to errors here.
	err = exceptions.TryCatch[error](func() {
		grids := make(map[grid.Size]*grid.Grid)
		for _, group := range groups {
			if pBar != nil {
				pBar.Describe(fmt.Sprintf("Extracting %s", filepath.Base(group[0])))
			}
			must.M(j.runGroup(group, exts, grids, manifest))
			if pBar != nil {
				_ = pBar.Add(1)
			}
		}
		must.M(manifest.Flush())
	})
	if pBar != nil {
		_ = pBar.Close()
	}
	closeErr := f.Close()
	if err != nil {
		return errors.WithMessagef(err, "patchjob %s", j.config.DirName())
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "failed to close manifest %q", manifestPath)
	}
	if err = j.tracker.MarkDone(); err != nil {
		return err
	}
	j.summary.Elapsed = time.Since(start)
	klog.V(1).Infof("patchjob %s: %s", j.config.DirName(), j.summary)
	return nil
}

// gridFor returns the grid for the given tile, reusing previously created ones.
func (j *Job) gridFor(tile grid.Size, grids map[grid.Size]*grid.Grid) (*grid.Grid, error) {
	if j.config.TileSize != (grid.Size{}) {
		tile = j.config.TileSize
	}
	if g, found := grids[tile]; found {
		return g, nil
	}
	g, err := j.config.grid(tile)
	if err != nil {
		return nil, err
	}
	grids[tile] = g
	return g, nil
}

// runGroup patches all files of the group with one grid, and writes one manifest line per grid position.
func (j *Job) runGroup(group, exts []string, grids map[grid.Size]*grid.Grid, manifest *bufio.Writer) error {
	var g *grid.Grid
	patchPaths := make([][]string, len(group)) // Indexed by file, then by grid position.
	for fileIdx, filePath := range group {
		src, err := j.store.Load(filePath)
		if err != nil {
			return errors.WithMessagef(err, "loading %q", filePath)
		}
		if g == nil {
			g, err = j.gridFor(src.Size(), grids)
			if err != nil {
				return errors.WithMessagef(err, "grid for %q", filePath)
			}
		}
		seq, err := patches.Extract(src, j.config.Pad, j.config.PadMode, g)
		if err != nil {
			return errors.WithMessagef(err, "patching %q (%s)", filePath, src)
		}
		patchPaths[fileIdx] = make([]string, 0, g.Len())
		for corner, patch := range seq {
			patchPath := filepath.Join(j.outputDir, PatchName(filePath, corner, exts[fileIdx]))
			if err = j.store.Save(patchPath, patch); err != nil {
				return errors.WithMessagef(err, "saving patch of %q at %s", filePath, corner)
			}
			if info, statErr := os.Stat(patchPath); statErr == nil {
				j.summary.Bytes += info.Size()
			}
			patchPaths[fileIdx] = append(patchPaths[fileIdx], patchPath)
			j.summary.Patches++
		}
		j.summary.Files++
	}
	for _, line := range xslices.Transpose(patchPaths) {
		if _, err := fmt.Fprintln(manifest, strings.Join(line, " ")); err != nil {
			return errors.Wrapf(err, "failed to write to manifest")
		}
	}
	j.summary.Groups++
	return nil
}

// FileList returns the contents of the manifest: one entry per patch position of each group, each
// with one patch path per extension, in the order given to Run.
//
// It fails with ErrNotReady if the job hasn't completed.
func (j *Job) FileList() ([][]string, error) {
	if !j.tracker.IsDone() {
		return nil, errors.Wrapf(ErrNotReady, "patchjob %s in %q", j.config.DirName(), j.outputDir)
	}
	return ReadFileList(j.ManifestPath())
}
