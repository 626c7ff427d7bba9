// Package raster implements a dense, row-major `[height, width, channels]` array, the in-memory
// representation of tiles and patches.
//
// Rasters with a single channel are used for 2D arrays (masks, labels, gray images).
package raster

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tiling/pkg/core/grid"
	"github.com/pkg/errors"
)

// Raster holds a `[Height, Width, Channels]` array stored in row-major order in Data: the
// channel axis varies fastest.
type Raster[T dtypes.NumberNotComplex] struct {
	Height, Width, Channels int

	// Data is the flat storage, with len(Data) == Height*Width*Channels.
	Data []T
}

// New creates a zero-filled raster.
func New[T dtypes.NumberNotComplex](height, width, channels int) *Raster[T] {
	if height < 0 || width < 0 || channels <= 0 {
		exceptions.Panicf("raster.New(%d, %d, %d): invalid dimensions", height, width, channels)
	}
	return &Raster[T]{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]T, height*width*channels),
	}
}

// FromFlat wraps data (not copied) as a raster. It returns an error if the length of data doesn't
// match the dimensions.
func FromFlat[T dtypes.NumberNotComplex](height, width, channels int, data []T) (*Raster[T], error) {
	if height < 0 || width < 0 || channels <= 0 {
		return nil, errors.Errorf("raster.FromFlat: invalid dimensions [%d, %d, %d]", height, width, channels)
	}
	if len(data) != height*width*channels {
		return nil, errors.Errorf("raster.FromFlat: [%d, %d, %d] requires %d values, got %d",
			height, width, channels, height*width*channels, len(data))
	}
	return &Raster[T]{Height: height, Width: width, Channels: channels, Data: data}, nil
}

// DType of the raster elements.
func (r *Raster[T]) DType() dtypes.DType {
	return dtypes.FromGenericsType[T]()
}

// Size returns the spatial size of the raster.
func (r *Raster[T]) Size() grid.Size {
	return grid.Size{Height: r.Height, Width: r.Width}
}

// Shape returns the dimensions `[height, width, channels]`.
func (r *Raster[T]) Shape() []int {
	return []int{r.Height, r.Width, r.Channels}
}

// Len is the total number of elements.
func (r *Raster[T]) Len() int { return len(r.Data) }

// Memory used by the data, in bytes.
func (r *Raster[T]) Memory() uintptr {
	return uintptr(len(r.Data)) * uintptr(r.DType().Size())
}

func (r *Raster[T]) offset(y, x, c int) int {
	return (y*r.Width+x)*r.Channels + c
}

// At returns the value at row y, column x, channel c.
func (r *Raster[T]) At(y, x, c int) T {
	return r.Data[r.offset(y, x, c)]
}

// Set the value at row y, column x, channel c.
func (r *Raster[T]) Set(y, x, c int, value T) {
	r.Data[r.offset(y, x, c)] = value
}

// Fill sets all values to value.
func (r *Raster[T]) Fill(value T) {
	for ii := range r.Data {
		r.Data[ii] = value
	}
}

// Clone returns a deep copy of the raster.
func (r *Raster[T]) Clone() *Raster[T] {
	r2 := &Raster[T]{Height: r.Height, Width: r.Width, Channels: r.Channels, Data: make([]T, len(r.Data))}
	copy(r2.Data, r.Data)
	return r2
}

// SameShape returns whether both rasters have the same dimensions.
func (r *Raster[T]) SameShape(height, width, channels int) bool {
	return r.Height == height && r.Width == width && r.Channels == channels
}

// Contains returns whether the region of size `size` anchored at (row, col) is fully inside the raster.
func (r *Raster[T]) Contains(row, col int, size grid.Size) bool {
	return row >= 0 && col >= 0 && size.Height >= 0 && size.Width >= 0 &&
		row+size.Height <= r.Height && col+size.Width <= r.Width
}

// Crop returns a copy of the region of `height x width` pixels whose top-left corner is (row, col).
//
// It panics if the region is not fully inside the raster.
func (r *Raster[T]) Crop(row, col, height, width int) *Raster[T] {
	if !r.Contains(row, col, grid.Sz(height, width)) {
		exceptions.Panicf("raster.Crop(row=%d, col=%d, height=%d, width=%d) out of bounds of raster %s",
			row, col, height, width, r)
	}
	crop := New[T](height, width, r.Channels)
	rowLen := width * r.Channels
	for y := 0; y < height; y++ {
		src := r.offset(row+y, col, 0)
		copy(crop.Data[y*rowLen:(y+1)*rowLen], r.Data[src:src+rowLen])
	}
	return crop
}

// AddAt adds the contents of src to the region of r whose top-left corner is (row, col). Values
// already in r are kept and summed to.
//
// It panics if the number of channels differ or if src doesn't fit in r at the given position.
func (r *Raster[T]) AddAt(src *Raster[T], row, col int) {
	if src.Channels != r.Channels {
		exceptions.Panicf("raster.AddAt: source has %d channels, target has %d", src.Channels, r.Channels)
	}
	if !r.Contains(row, col, src.Size()) {
		exceptions.Panicf("raster.AddAt: source %s at (row=%d, col=%d) doesn't fit in target %s",
			src, row, col, r)
	}
	rowLen := src.Width * src.Channels
	for y := 0; y < src.Height; y++ {
		dst := r.Data[r.offset(row+y, col, 0) : r.offset(row+y, col, 0)+rowLen]
		for ii, v := range src.Data[y*rowLen : (y+1)*rowLen] {
			dst[ii] += v
		}
	}
}

// String implements fmt.Stringer.
func (r *Raster[T]) String() string {
	return fmt.Sprintf("(%s)[%d %d %d]", r.DType(), r.Height, r.Width, r.Channels)
}

// Convert returns a new raster with the values of src converted to Out.
//
// Conversion follows Go's numeric conversion rules, so converting to integer types truncates
// towards zero. Use ConvertClamped to round and saturate.
func Convert[Out, In dtypes.NumberNotComplex](src *Raster[In]) *Raster[Out] {
	dst := New[Out](src.Height, src.Width, src.Channels)
	for ii, v := range src.Data {
		dst.Data[ii] = Out(v)
	}
	return dst
}

// ConvertClamped is like Convert, but rounds to the nearest value and clamps to [minValue, maxValue]
// before converting. It is used to store float results (e.g. stitched predictions) as uint8.
func ConvertClamped[Out, In dtypes.NumberNotComplex](src *Raster[In], minValue, maxValue float64) *Raster[Out] {
	dst := New[Out](src.Height, src.Width, src.Channels)
	isFloat := dst.DType().IsFloat()
	for ii, v := range src.Data {
		f := float64(v)
		if !isFloat {
			f = math.Round(f)
		}
		f = min(max(f, minValue), maxValue)
		dst.Data[ii] = Out(f)
	}
	return dst
}
