package rasterfile

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patternRaster(height, width, channels int) *raster.Raster[uint8] {
	r := raster.New[uint8](height, width, channels)
	for ii := range r.Data {
		r.Data[ii] = uint8(ii * 13)
	}
	return r
}

func TestStoreLossless(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	for _, tc := range []struct {
		name     string
		channels int
	}{
		{"rgb.png", 3},
		{"gray.png", 1},
		{"rgba.png", 4},
		{"rgba.tif", 4},
		{"rgb.npy", 3},
		{"mask.npy", 1},
		{"sub/dir/rgb.bmp", 3},
		{"rgb.tiff", 3},
	} {
		want := patternRaster(5, 7, tc.channels)
		filePath := filepath.Join(dir, tc.name)
		require.NoError(t, store.Save(filePath, want), tc.name)
		got, err := store.Load(filePath)
		require.NoError(t, err, tc.name)
		assert.Equal(t, want.Shape(), got.Shape(), tc.name)
		assert.Equal(t, want.Data, got.Data, tc.name)
	}
}

func TestStoreAlphaChannel(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()

	// All pixels opaque, or only some translucent: both load back with 4 channels.
	opaque := patternRaster(2, 3, 4)
	for ii := 3; ii < len(opaque.Data); ii += 4 {
		opaque.Data[ii] = 255
	}
	translucent := opaque.Clone()
	translucent.Data[3] = 128
	for name, want := range map[string]*raster.Raster[uint8]{"opaque": opaque, "translucent": translucent} {
		for _, ext := range AlphaExts {
			filePath := filepath.Join(dir, name+"."+ext)
			require.NoError(t, store.Save(filePath, want), filePath)
			got, err := store.Load(filePath)
			require.NoError(t, err, filePath)
			assert.Equal(t, want.Shape(), got.Shape(), filePath)
			assert.Equal(t, want.Data, got.Data, filePath)
		}
	}

	// Formats that would drop the alpha channel are refused.
	for _, ext := range []string{"jpg", "bmp", "gif"} {
		filePath := filepath.Join(dir, "rgba."+ext)
		require.Error(t, store.Save(filePath, opaque), filePath)
		exists, err := fsutil.FileExists(filePath)
		require.NoError(t, err)
		assert.False(t, exists, filePath)
	}
}

func TestStoreJPEG(t *testing.T) {
	store := NewStore().WithJPEGQuality(100)
	want := raster.New[uint8](8, 8, 3)
	want.Fill(128)
	filePath := filepath.Join(t.TempDir(), "flat.jpg")
	require.NoError(t, store.Save(filePath, want))
	got, err := store.Load(filePath)
	require.NoError(t, err)
	require.Equal(t, want.Shape(), got.Shape())
	for _, v := range got.Data {
		assert.InDelta(t, 128, int(v), 2)
	}
}

func TestReadWriteFloat(t *testing.T) {
	want := raster.New[float32](3, 3, 1)
	for ii := range want.Data {
		want.Data[ii] = float32(ii) / 8
	}
	dir := t.TempDir()
	npyPath := filepath.Join(dir, "pred.npy")
	require.NoError(t, Write(npyPath, want, raster.ImageConfig{}))
	got, err := Read[float32](npyPath, raster.ImageConfig{})
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)

	// For images float values are scaled by MaxValue.
	pngPath := filepath.Join(dir, "pred.png")
	require.NoError(t, Write(pngPath, want, raster.ImageConfig{MaxValue: 1}))
	asUint8, err := Read[uint8](pngPath, raster.ImageConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint8(255), asUint8.At(2, 2, 0))
}

func TestUnsupported(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, IsSupported("PNG"))
	assert.True(t, IsSupported("npy"))
	assert.False(t, IsSupported("txt"))
	assert.True(t, NewStore().Supports("tif"))
	assert.False(t, NewStore().Supports("txt"))

	_, err := Read[uint8](filepath.Join(dir, "a.txt"), raster.ImageConfig{})
	require.Error(t, err)
	require.Error(t, Write(filepath.Join(dir, "a.txt"), patternRaster(2, 2, 1), raster.ImageConfig{}))
	require.Error(t, Write(filepath.Join(dir, "a.png"), patternRaster(2, 2, 2), raster.ImageConfig{}))
	_, err = Read[uint8](filepath.Join(dir, "missing.png"), raster.ImageConfig{})
	require.Error(t, err)
}
