package raster

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// PadMode defines how the border added by Pad is filled.
type PadMode uint8

const (
	// PadSymmetric mirrors the raster along its edge, repeating the edge pixel:
	// `a b c | c b a`. Same as numpy's "symmetric" mode. This is the default.
	PadSymmetric PadMode = iota

	// PadReflect mirrors the raster along its edge without repeating the edge pixel:
	// `a b c | b a`. Same as numpy's "reflect" mode.
	PadReflect

	// PadZero fills the border with zeros.
	PadZero

	// PadEdge repeats the edge pixel: `a b c | c c`.
	PadEdge
)

var padModeNames = []string{"symmetric", "reflect", "zero", "edge"}

// String implements fmt.Stringer.
func (m PadMode) String() string {
	if int(m) < len(padModeNames) {
		return padModeNames[m]
	}
	return fmt.Sprintf("PadMode(%d)", uint8(m))
}

// ParsePadMode converts a name (as returned by PadMode.String, case-insensitive) to a PadMode.
func ParsePadMode(name string) (PadMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ii, n := range padModeNames {
		if n == name {
			return PadMode(ii), nil
		}
	}
	return 0, errors.Errorf("unknown padding mode %q, valid values are %q", name, padModeNames)
}

// PadModeValues returns all valid padding modes.
func PadModeValues() []PadMode {
	return []PadMode{PadSymmetric, PadReflect, PadZero, PadEdge}
}

// Pad returns a new raster with `pad` pixels added on all four sides, filled according to mode.
// The channels are not padded. If pad is 0 it returns a copy of r.
//
// It panics if pad is negative, or if r is empty and the mode needs to read from it.
func (r *Raster[T]) Pad(pad int, mode PadMode) *Raster[T] {
	if pad < 0 {
		exceptions.Panicf("raster.Pad(%d, %s): negative padding", pad, mode)
	}
	if pad == 0 {
		return r.Clone()
	}
	if mode != PadZero && (r.Height == 0 || r.Width == 0) {
		exceptions.Panicf("raster.Pad(%d, %s): can't pad empty raster %s", pad, mode, r)
	}
	padded := New[T](r.Height+2*pad, r.Width+2*pad, r.Channels)
	if mode == PadZero {
		rowLen := r.Width * r.Channels
		for y := 0; y < r.Height; y++ {
			dst := padded.offset(y+pad, pad, 0)
			copy(padded.Data[dst:dst+rowLen], r.Data[y*rowLen:(y+1)*rowLen])
		}
		return padded
	}

	// Pre-compute the source index for each padded column.
	srcCols := make([]int, padded.Width)
	for x := range srcCols {
		srcCols[x] = padIndex(x-pad, r.Width, mode)
	}
	for y := 0; y < padded.Height; y++ {
		srcY := padIndex(y-pad, r.Height, mode)
		for x, srcX := range srcCols {
			src := r.offset(srcY, srcX, 0)
			dst := padded.offset(y, x, 0)
			copy(padded.Data[dst:dst+r.Channels], r.Data[src:src+r.Channels])
		}
	}
	return padded
}

// padIndex maps an index in the padded axis (which may be negative or >= n) to an index of the
// original axis of length n.
func padIndex(idx, n int, mode PadMode) int {
	switch mode {
	case PadEdge:
		return min(max(idx, 0), n-1)
	case PadReflect:
		if n == 1 {
			return 0
		}
		for idx < 0 || idx >= n {
			if idx < 0 {
				idx = -idx
			}
			if idx >= n {
				idx = 2*(n-1) - idx
			}
		}
		return idx
	case PadSymmetric:
		for idx < 0 || idx >= n {
			if idx < 0 {
				idx = -idx - 1
			}
			if idx >= n {
				idx = 2*n - idx - 1
			}
		}
		return idx
	default:
		exceptions.Panicf("raster: padding mode %s has no source index", mode)
	}
	return 0
}
