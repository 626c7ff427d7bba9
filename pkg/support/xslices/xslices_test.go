package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"0", "1", "2"}, Map([]int{0, 1, 2}, strconv.Itoa))
	assert.Empty(t, Map(nil, strconv.Itoa))
}

func TestTranspose(t *testing.T) {
	in := [][]string{
		{"a_y0x0.jpg", "a_y0x1.jpg", "a_y1x0.jpg"},
		{"a_y0x0.png", "a_y0x1.png", "a_y1x0.png"},
	}
	assert.Equal(t, [][]string{
		{"a_y0x0.jpg", "a_y0x0.png"},
		{"a_y0x1.jpg", "a_y0x1.png"},
		{"a_y1x0.jpg", "a_y1x0.png"},
	}, Transpose(in))
	assert.Nil(t, Transpose[int](nil))
	require.Panics(t, func() { Transpose([][]int{{1, 2}, {3}}) })
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	sizes := FlagSet(fs, "size", []int{572, 572}, "size", strconv.Atoi)
	exts := FlagSet(fs, "exts", []string{"jpg"}, "extensions", func(s string) (string, error) { return s, nil })
	require.NoError(t, fs.Parse([]string{"-size=10, 20", "-exts=jpg,png"}))
	assert.Equal(t, []int{10, 20}, *sizes)
	assert.Equal(t, []string{"jpg", "png"}, *exts)
	assert.Equal(t, "10,20", fs.Lookup("size").Value.String())

	require.Error(t, fs.Parse([]string{"-size=a,b"}))
}
