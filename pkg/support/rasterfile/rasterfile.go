// Package rasterfile loads and saves rasters from/to files, choosing the format by the file
// extension: images (png, jpg/jpeg, gif, bmp, tif/tiff) are handled by github.com/disintegration/imaging,
// and NumPy arrays (npy) by the numpy package.
package rasterfile

import (
	"image"
	"path/filepath"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tiling/pkg/core/numpy"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NpyExt is the extension of NumPy array files.
const NpyExt = "npy"

// ImageExts are the image file extensions supported.
var ImageExts = []string{"png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff"}

// AlphaExts are the image extensions that can hold 4 channels rasters. The other image formats
// can't preserve the alpha channel, or drop it when all pixels are opaque.
var AlphaExts = []string{"png", "tif", "tiff"}

// IsSupported returns whether the extension (without the dot, case-insensitive) can be loaded and saved.
func IsSupported(ext string) bool {
	ext = fsutil.Ext("x." + ext)
	return ext == NpyExt || slices.Contains(ImageExts, ext)
}

// Read loads the file at filePath as a raster of T.
//
// For images, cfg defines the number of channels (0 to use the natural channels of the image) and
// the value range. It is ignored for npy files, whose values are converted to T as is.
func Read[T dtypes.NumberNotComplex](filePath string, cfg raster.ImageConfig) (*raster.Raster[T], error) {
	ext := fsutil.Ext(filePath)
	if ext == NpyExt {
		return numpy.FromNpyFile[T](filePath)
	}
	if !slices.Contains(ImageExts, ext) {
		return nil, errors.Errorf("rasterfile: unsupported file extension %q for %q", ext, filePath)
	}
	img, err := imaging.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", filePath)
	}
	return raster.FromImage[T](img, cfg), nil
}

// Write saves the raster r to filePath, creating the parent directory if needed.
//
// For images, r must have 1, 3 or 4 channels, and cfg.MaxValue defines the value range. Gray images
// are written for single channel rasters. 4 channels rasters can only be saved in one of AlphaExts,
// and they are always saved with an alpha channel, so Read returns them with 4 channels.
func Write[T dtypes.NumberNotComplex](filePath string, r *raster.Raster[T], cfg raster.ImageConfig, opts ...imaging.EncodeOption) error {
	ext := fsutil.Ext(filePath)
	if ext != NpyExt {
		if !slices.Contains(ImageExts, ext) {
			return errors.Errorf("rasterfile: unsupported file extension %q for %q", ext, filePath)
		}
		if r.Channels != 1 && r.Channels != 3 && r.Channels != 4 {
			return errors.Errorf("rasterfile: can't save raster %s with %d channels as image %q", r, r.Channels, filePath)
		}
		if r.Channels == 4 && !slices.Contains(AlphaExts, ext) {
			return errors.Errorf("rasterfile: can't save raster %s with alpha channel as %q, use one of %q or npy",
				r, filePath, AlphaExts)
		}
	}
	if err := fsutil.EnsureDir(filepath.Dir(filePath)); err != nil {
		return err
	}
	if ext == NpyExt {
		return numpy.ToNpyFile(r, filePath)
	}
	img := raster.ToImage(r, cfg)
	if nrgba, ok := img.(*image.NRGBA); ok && ext == "png" {
		img = withAlpha{nrgba}
	}
	if err := imaging.Save(img, filePath, opts...); err != nil {
		return errors.Wrapf(err, "failed to save image %q", filePath)
	}
	klog.V(2).Infof("saved %s to %q", r, filePath)
	return nil
}

// withAlpha makes the png encoder keep the alpha channel even if all pixels are opaque.
type withAlpha struct {
	*image.NRGBA
}

// Opaque implements the interface checked by image/png to drop the alpha channel.
func (withAlpha) Opaque() bool { return false }

// Store loads and saves uint8 rasters, the element type used for persisted patches.
type Store struct {
	// JPEGQuality used when saving jpg files, from 1 to 100. If 0 the imaging default is used.
	JPEGQuality int
}

// NewStore creates a Store with default settings.
func NewStore() *Store { return &Store{} }

// WithJPEGQuality sets the quality of saved jpg files. It returns itself, so calls can be chained.
func (s *Store) WithJPEGQuality(quality int) *Store {
	s.JPEGQuality = quality
	return s
}

// Supports returns whether files with the extension ext can be loaded and saved.
func (s *Store) Supports(ext string) bool { return IsSupported(ext) }

// Load the raster in filePath.
func (s *Store) Load(filePath string) (*raster.Raster[uint8], error) {
	return Read[uint8](filePath, raster.ImageConfig{})
}

// Save r to filePath.
func (s *Store) Save(filePath string, r *raster.Raster[uint8]) error {
	var opts []imaging.EncodeOption
	if s.JPEGQuality > 0 {
		opts = append(opts, imaging.JPEGQuality(s.JPEGQuality))
	}
	return Write(filePath, r, raster.ImageConfig{}, opts...)
}
