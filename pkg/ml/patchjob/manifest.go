package patchjob

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ManifestFileName is the name of the manifest written in the job's output directory.
const ManifestFileName = "file_list.txt"

// ErrManifest is returned when a manifest file is malformed.
var ErrManifest = errors.New("malformed manifest")

// ReadFileList parses a manifest file: one line per patch position, with one whitespace separated
// patch path per extension. All lines must have the same number of fields. Empty lines are ignored.
func ReadFileList(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %q", filePath)
	}
	defer func() { _ = f.Close() }()

	var fileList [][]string
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fileList) > 0 && len(fields) != len(fileList[0]) {
			return nil, errors.Wrapf(ErrManifest, "%q line %d has %d fields, previous lines have %d",
				filePath, lineNum, len(fields), len(fileList[0]))
		}
		fileList = append(fileList, fields)
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %q", filePath)
	}
	return fileList, nil
}
