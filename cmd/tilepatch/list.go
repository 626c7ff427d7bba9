package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tiling/pkg/ml/patchjob"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// listCmd prints a summary of the output directory of a patch job, and optionally its first entries.
func listCmd(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	flagEntries := fs.Int("entries", 0, "Number of manifest entries to list.")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.Errorf("list takes exactly one job directory, got %q", fs.Args())
	}
	jobDir := fs.Arg(0)

	marker := patchjob.NewFileMarker(filepath.Join(jobDir, patchjob.MarkerFileName))
	if !marker.IsDone() {
		return errors.Wrapf(patchjob.ErrNotReady, "no completed job in %q", jobDir)
	}
	fileList, err := patchjob.ReadFileList(filepath.Join(jobDir, patchjob.ManifestFileName))
	if err != nil {
		return err
	}
	summary := summarizeFileList(fileList)

	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("directory", jobDir)
	if runID, err := marker.RunID(); err == nil {
		table.Row("run id", runID.String())
	} else {
		klog.Warningf("Failed to read run id: %v", err)
	}
	table.Row("# entries", humanize.Comma(int64(len(fileList))))
	table.Row("# fields", humanize.Comma(int64(summary.fields)))
	table.Row("# patch files", humanize.Comma(int64(summary.files)))
	if summary.missing > 0 {
		table.Row("# missing files", humanize.Comma(int64(summary.missing)))
	}
	table.Row("# bytes", humanize.Bytes(uint64(summary.bytes)))
	fmt.Println(titleStyle.Render("Patch job"))
	fmt.Println(table.Render())

	if *flagEntries <= 0 || len(fileList) == 0 {
		return nil
	}
	entriesTable := newPlainTable(lipgloss.Right, lipgloss.Left)
	header := []string{"#"}
	for ii := range summary.fields {
		header = append(header, fmt.Sprintf("field %d", ii))
	}
	entriesTable.Headers(header...)
	for ii, entry := range fileList[:min(*flagEntries, len(fileList))] {
		row := []string{strconv.Itoa(ii)}
		for _, patchPath := range entry {
			row = append(row, filepath.Base(patchPath))
		}
		entriesTable.Row(row...)
	}
	fmt.Println(entriesTable.Render())
	return nil
}

type fileListSummary struct {
	fields, files, missing int
	bytes                  int64
}

// summarizeFileList counts the patch files of a manifest and their sizes.
func summarizeFileList(fileList [][]string) (s fileListSummary) {
	if len(fileList) > 0 {
		s.fields = len(fileList[0])
	}
	for _, entry := range fileList {
		for _, patchPath := range entry {
			s.files++
			info, err := os.Stat(patchPath)
			if err != nil {
				s.missing++
				continue
			}
			s.bytes += info.Size()
		}
	}
	return
}
