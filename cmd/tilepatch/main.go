// tilepatch extracts patches from tiles, stitches patches back into tiles, and lists the contents of
// the output directory of patch extraction jobs.
//
// Usage:
//
//	tilepatch [-no_color] [-v=1] extract [flags] <groups file>
//	tilepatch [-no_color] [-v=1] stitch [flags] <patch files...>
//	tilepatch [-no_color] [-v=1] list [flags] <job directory>
//
// Use `tilepatch <command> -help` for the flags of each command.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/gomlx/tiling/pkg/support/xslices"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var flagNoColor = flag.Bool("no_color", false, "Disable colors and styles in the output.")

var commands = map[string]func(args []string) error{
	"extract": extractCmd,
	"stitch":  stitchCmd,
	"list":    listCmd,
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage: tilepatch [flags] extract|stitch|list [command flags] <args...>\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing command. See 'tilepatch -help'")
		os.Exit(1)
	}
	cmd, found := commands[args[0]]
	if !found {
		klog.Errorf("Unknown command %q. See 'tilepatch -help'", args[0])
		os.Exit(1)
	}
	if err := cmd(args[1:]); err != nil {
		klog.Errorf("tilepatch %s failed: %+v", args[0], err)
		os.Exit(1)
	}
	klog.Flush()
}

// sizeFlag defines a flag for a grid.Size given as "height,width", or a single value for squares.
func sizeFlag(fs *flag.FlagSet, name string, usage string) *[]int {
	return xslices.FlagSet(fs, name, nil, usage+` Format: "height,width", or a single value for a square.`, strconv.Atoi)
}

// toSize converts the values of a sizeFlag to a grid.Size. It returns the zero Size if no value was given.
func toSize(name string, values []int) (grid.Size, error) {
	switch len(values) {
	case 0:
		return grid.Size{}, nil
	case 1:
		return grid.Sz(values[0], values[0]), nil
	case 2:
		return grid.Sz(values[0], values[1]), nil
	}
	return grid.Size{}, errors.Errorf("-%s takes 1 or 2 values, got %v", name, values)
}

// parseOrder parses the -order flag.
func parseOrder(name string) (grid.Order, error) {
	switch name {
	case "row", "row_major":
		return grid.RowMajor, nil
	case "column", "col", "column_major":
		return grid.ColumnMajor, nil
	}
	return grid.RowMajor, errors.Errorf("unknown grid order %q, valid values are \"row\" or \"column\"", name)
}
