package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/ml/patchjob"
	"github.com/gomlx/tiling/pkg/support/xslices"
	"github.com/pkg/errors"
)

// extractCmd runs a patchjob.Job over the file groups listed in a groups file.
func extractCmd(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	flagBaseDir := fs.String("base_dir", "data", "Base directory where patches are saved. A leading \"~\" is expanded.")
	flagName := fs.String("name", patchjob.DefaultName, "Name of the job.")
	flagDataset := fs.String("dataset", "", "Name of the dataset, used to name the output directory.")
	flagTile := sizeFlag(fs, "tile", "Size of the tiles, without padding. If not set, the size of the first file of each group is used.")
	flagPatch := sizeFlag(fs, "patch", "Size of the patches.")
	flagOverlap := fs.Int("overlap", 0, "Overlap in pixels of adjacent patches.")
	flagPad := fs.Int("pad", 0, "Padding in pixels added around each tile.")
	flagPadMode := fs.String("pad_mode", raster.PadSymmetric.String(),
		fmt.Sprintf("Padding mode, one of %v.", raster.PadModeValues()))
	flagOrder := fs.String("order", "row", "Enumeration order of the patch positions: \"row\" or \"column\".")
	flagExts := xslices.FlagSet(fs, "exts", []string{"jpg", "png"},
		"Comma-separated extensions of the saved patches, one per file of a group.",
		func(s string) (string, error) { return s, nil })
	flagForce := fs.Bool("force", false, "Extract patches even if a previous run completed.")
	flagQuiet := fs.Bool("quiet", false, "Don't display a progress bar.")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.Errorf("extract takes exactly one groups file, got %q", fs.Args())
	}
	groups, err := readGroups(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg := patchjob.Config{
		Name:    *flagName,
		Dataset: *flagDataset,
		BaseDir: *flagBaseDir,
		Overlap: *flagOverlap,
		Pad:     *flagPad,
	}
	if cfg.TileSize, err = toSize("tile", *flagTile); err != nil {
		return err
	}
	if cfg.PatchSize, err = toSize("patch", *flagPatch); err != nil {
		return err
	}
	if cfg.PadMode, err = raster.ParsePadMode(*flagPadMode); err != nil {
		return err
	}
	if cfg.Order, err = parseOrder(*flagOrder); err != nil {
		return err
	}

	job, err := patchjob.New(cfg)
	if err != nil {
		return err
	}
	job.WithForce(*flagForce).WithQuiet(*flagQuiet)
	if err = job.Run(groups, *flagExts); err != nil {
		return err
	}

	summary := job.Summary()
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("output", job.OutputDir())
	if summary.Skipped {
		table.Row("status", "skipped, previous run completed (use -force to rerun)")
	} else {
		table.Row("# groups", humanize.Comma(int64(summary.Groups)))
		table.Row("# files", humanize.Comma(int64(summary.Files)))
		table.Row("# patches", humanize.Comma(int64(summary.Patches)))
		table.Row("# bytes", humanize.Bytes(uint64(summary.Bytes)))
		table.Row("elapsed", summary.Elapsed.String())
	}
	fmt.Println(titleStyle.Render(cfg.String()))
	fmt.Println(table.Render())
	return nil
}

// readGroups reads one group of whitespace separated file paths per line. Empty lines and lines
// starting with "#" are ignored.
func readGroups(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open groups file")
	}
	defer func() { _ = f.Close() }()
	var groups [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		groups = append(groups, strings.Fields(line))
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read groups file %q", filePath)
	}
	return groups, nil
}
