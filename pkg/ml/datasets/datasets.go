/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package datasets reads back patches saved by a patch job, one manifest entry at a time, and
// provides utility wrappers that can be combined: `Take`, `Drain`.
package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dataset yields the patches of one manifest entry (one grid position of one file group) at a time.
type Dataset interface {
	// Name identifies the dataset. Used for debugging and logging.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached.
	Reset()

	// Yield the patches of the next entry, one per extension, along with their paths.
	// It returns io.EOF when there are no more entries.
	Yield() (patches []*raster.Raster[uint8], paths []string, err error)
}

// Loader loads one patch. rasterfile.Store implements it.
type Loader interface {
	Load(filePath string) (*raster.Raster[uint8], error)
}

// FileListDataset implements Dataset by loading the files listed in a manifest.
type FileListDataset struct {
	name     string
	fileList [][]string
	loader   Loader
	order    []int
	next     int
	shuffle  *rand.Rand
}

// FromFileList creates a Dataset that yields the patches of each entry of fileList (as returned by
// patchjob.Job.FileList), loading them with loader.
func FromFileList(name string, fileList [][]string, loader Loader) *FileListDataset {
	ds := &FileListDataset{
		name:     name,
		fileList: fileList,
		loader:   loader,
		order:    make([]int, len(fileList)),
	}
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	return ds
}

// WithShuffle makes the dataset yield the entries in a random order, reshuffled at every Reset.
// If rng is nil, entries are yielded in the manifest order.
//
// It returns itself, so calls can be chained.
func (ds *FileListDataset) WithShuffle(rng *rand.Rand) *FileListDataset {
	ds.shuffle = rng
	ds.Reset()
	return ds
}

// Name implements Dataset.
func (ds *FileListDataset) Name() string { return ds.name }

// Len returns the number of entries in the dataset.
func (ds *FileListDataset) Len() int { return len(ds.fileList) }

// Reset implements Dataset.
func (ds *FileListDataset) Reset() {
	ds.next = 0
	if ds.shuffle != nil {
		ds.shuffle.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// Yield implements Dataset.
func (ds *FileListDataset) Yield() (patches []*raster.Raster[uint8], paths []string, err error) {
	if ds.next >= len(ds.order) {
		err = io.EOF
		return
	}
	paths = ds.fileList[ds.order[ds.next]]
	ds.next++
	patches = make([]*raster.Raster[uint8], len(paths))
	for ii, filePath := range paths {
		patches[ii], err = ds.loader.Load(filePath)
		if err != nil {
			err = errors.WithMessagef(err, "dataset %q", ds.name)
			return nil, nil, err
		}
	}
	return
}

// takeDataset implements a `Dataset` that only yields `take` entries.
type takeDataset struct {
	ds          Dataset
	count, take int
}

// Take returns a wrapper to `ds`, a `Dataset` that only yields `n` entries.
func Take(ds Dataset, n int) Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements Dataset.
func (ds *takeDataset) Yield() (patches []*raster.Raster[uint8], paths []string, err error) {
	if ds.count >= ds.take {
		err = io.EOF
		return
	}
	ds.count++
	patches, paths, err = ds.ds.Yield()
	return
}

// Drain pulls up to n entries from ds, calling fn for each one. If n <= 0 it pulls until the dataset
// is exhausted.
//
// The exhaustion of the dataset (io.EOF) stops it early, and is not an error: it returns the number
// of entries processed. Any other error, from ds or from fn, is returned.
func Drain(ds Dataset, n int, fn func(patches []*raster.Raster[uint8], paths []string) error) (count int, err error) {
	for n <= 0 || count < n {
		patches, paths, err := ds.Yield()
		if err == io.EOF {
			klog.V(1).Infof("dataset %q exhausted after %d entries", ds.Name(), count)
			return count, nil
		}
		if err != nil {
			return count, err
		}
		if err = fn(patches, paths); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
