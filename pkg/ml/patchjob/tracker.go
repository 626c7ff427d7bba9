package patchjob

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Tracker records whether a job completed, so reruns can be skipped.
type Tracker interface {
	// IsDone returns whether a previous run completed.
	IsDone() bool

	// Clear the completion record. Called when a run starts.
	Clear() error

	// MarkDone records the completion of a run.
	MarkDone() error
}

// MarkerFileName is the name of the completion marker file written by FileMarker in the job's
// output directory.
const MarkerFileName = ".done"

// FileMarker is a Tracker that writes a marker file when the job completes. The marker holds a
// unique run id and the time of completion.
type FileMarker struct {
	filePath string
	runID    uuid.UUID
}

// NewFileMarker creates a FileMarker backed by filePath.
func NewFileMarker(filePath string) *FileMarker {
	return &FileMarker{filePath: filePath}
}

// Path of the marker file.
func (m *FileMarker) Path() string { return m.filePath }

// IsDone implements Tracker. If the marker file can't be checked, the job is reported as not done.
func (m *FileMarker) IsDone() bool {
	exists, err := fsutil.FileExists(m.filePath)
	if err != nil {
		klog.Warningf("completion marker: %v", err)
		return false
	}
	return exists
}

// Clear implements Tracker.
func (m *FileMarker) Clear() error {
	err := os.Remove(m.filePath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove completion marker %q", m.filePath)
	}
	return nil
}

// MarkDone implements Tracker. It writes a new run id each time it is called.
func (m *FileMarker) MarkDone() error {
	m.runID = uuid.New()
	contents := fmt.Sprintf("run_id=%s\ncompleted=%s\n", m.runID, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(m.filePath, []byte(contents), 0644); err != nil {
		return errors.Wrapf(err, "failed to write completion marker %q", m.filePath)
	}
	return nil
}

// RunID returns the id of the completed run, reading it from the marker file if needed.
func (m *FileMarker) RunID() (uuid.UUID, error) {
	if m.runID != uuid.Nil {
		return m.runID, nil
	}
	f, err := os.Open(m.filePath)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to open completion marker %q", m.filePath)
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if value, found := strings.CutPrefix(scanner.Text(), "run_id="); found {
			id, err := uuid.Parse(value)
			if err != nil {
				return uuid.Nil, errors.Wrapf(err, "invalid run id in completion marker %q", m.filePath)
			}
			m.runID = id
			return id, nil
		}
	}
	if err = scanner.Err(); err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to read completion marker %q", m.filePath)
	}
	return uuid.Nil, errors.Errorf("no run id in completion marker %q", m.filePath)
}
