package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// ImageConfig configures the conversion between images and rasters.
type ImageConfig struct {
	// Channels of the raster: 1 (gray), 3 (RGB) or 4 (RGBA).
	// If 0, ChannelsOf(img) is used when converting from an image.
	Channels int

	// MaxValue of a channel in the raster. If 0, it defaults to 1.0 for float dtypes and 255 for
	// integer dtypes.
	MaxValue float64
}

func (cfg ImageConfig) maxValueFor(dtype dtypes.DType) float64 {
	if cfg.MaxValue != 0 {
		return cfg.MaxValue
	}
	if dtype.IsFloat() {
		return 1.0
	}
	return 255.0
}

// ChannelsOf returns the natural number of channels for the image, based on its type:
//
//   - 1 for *image.Gray and *image.Gray16;
//   - 4 for *image.NRGBA and *image.NRGBA64, which carry an alpha channel regardless of their values;
//   - for other types, 4 if the image has any non-opaque pixel and 3 otherwise.
func ChannelsOf(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.NRGBA64:
		return 4
	}
	if opaque, ok := img.(interface{ Opaque() bool }); ok && !opaque.Opaque() {
		return 4
	}
	return 3
}

// toNRGBA64 converts c to non-premultiplied 16 bits color, without going through the
// premultiplied values when c is already non-premultiplied.
func toNRGBA64(c color.Color) color.NRGBA64 {
	switch nc := c.(type) {
	case color.NRGBA:
		return color.NRGBA64{
			R: uint16(nc.R) * 0x101, G: uint16(nc.G) * 0x101, B: uint16(nc.B) * 0x101, A: uint16(nc.A) * 0x101}
	case color.NRGBA64:
		return nc
	}
	return color.NRGBA64Model.Convert(c).(color.NRGBA64)
}

// FromImage converts img to a raster shaped `[height, width, channels]`, using cfg.
//
// Channel values are scaled from the 16-bit values returned by color.Color.RGBA() to
// [0, MaxValue].
func FromImage[T dtypes.NumberNotComplex](img image.Image, cfg ImageConfig) *Raster[T] {
	channels := cfg.Channels
	if channels == 0 {
		channels = ChannelsOf(img)
	}
	if channels != 1 && channels != 3 && channels != 4 {
		exceptions.Panicf("raster.FromImage: only 1, 3 or 4 channels are supported, got %d", channels)
	}
	bounds := img.Bounds()
	size := bounds.Size()
	r := New[T](size.Y, size.X, channels)
	maxValue := cfg.maxValueFor(r.DType())
	isFloat := r.DType().IsFloat()
	convert := func(val uint32) T {
		// color.RGBA() returns 16 bits values packaged in uint32.
		v := float64(val) * maxValue / float64(0xFFFF)
		if !isFloat {
			v = math.Round(v)
		}
		return T(v)
	}

	pos := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.At(x, y)
			switch channels {
			case 1:
				gray := color.Gray16Model.Convert(c).(color.Gray16)
				r.Data[pos] = convert(uint32(gray.Y))
				pos++
			case 3:
				red, green, blue, _ := c.RGBA()
				for _, channel := range [3]uint32{red, green, blue} {
					r.Data[pos] = convert(channel)
					pos++
				}
			case 4:
				// NRGBA, so colors are not premultiplied by alpha.
				nc := toNRGBA64(c)
				for _, channel := range [4]uint16{nc.R, nc.G, nc.B, nc.A} {
					r.Data[pos] = convert(uint32(channel))
					pos++
				}
			}
		}
	}
	if pos != len(r.Data) {
		exceptions.Panicf("raster.FromImage failed to set the values for all pixels (%d written out of %d)",
			pos, len(r.Data))
	}
	return r
}

// ToImage converts a raster with 1, 3 or 4 channels to an image: *image.Gray for 1 channel,
// *image.RGBA (opaque) for 3 channels and *image.NRGBA for 4 channels. So ChannelsOf of the
// returned image is always r.Channels.
//
// Values are scaled from [0, cfg.MaxValue] to [0, 255] and clamped. cfg.Channels is ignored.
func ToImage[T dtypes.NumberNotComplex](r *Raster[T], cfg ImageConfig) image.Image {
	maxValue := cfg.maxValueFor(r.DType())
	toUint8 := func(v T) uint8 {
		f := math.Round(255 * (float64(v) / maxValue))
		return uint8(min(max(f, 0), 255))
	}
	var pix []uint8
	var stride int
	var img image.Image
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Channels {
	case 1:
		gray := image.NewGray(rect)
		img, pix, stride = gray, gray.Pix, gray.Stride
	case 3:
		rgba := image.NewRGBA(rect)
		img, pix, stride = rgba, rgba.Pix, rgba.Stride
	case 4:
		nrgba := image.NewNRGBA(rect)
		img, pix, stride = nrgba, nrgba.Pix, nrgba.Stride
	default:
		exceptions.Panicf("raster.ToImage: raster %s has %d channels, only 1, 3 or 4 are supported", r, r.Channels)
	}
	pixelSize := 4
	if r.Channels == 1 {
		pixelSize = 1
	}
	pos := 0
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			base := y*stride + x*pixelSize
			for d := 0; d < r.Channels; d++ {
				pix[base+d] = toUint8(r.Data[pos])
				pos++
			}
			if r.Channels == 3 {
				pix[base+3] = 255 // Opaque, so premultiplied and straight colors are the same.
			}
		}
	}
	return img
}
