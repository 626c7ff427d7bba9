package grid

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSinglePatch(t *testing.T) {
	for _, size := range []Size{Sz(1, 1), Sz(7, 3), Sz(572, 572)} {
		g, err := New(size, size, 0)
		require.NoError(t, err)
		assert.Equal(t, []Corner{{0, 0}}, g.Corners(), "tile == patch = %s", size)
	}

	// Patch larger than the tile: still one position, anchored at 0.
	g, err := New(Sz(3, 3), Sz(5, 5), 0)
	require.NoError(t, err)
	assert.Equal(t, []Corner{{0, 0}}, g.Corners())
}

func TestNewPositions(t *testing.T) {
	g, err := New(Sz(10, 10), Sz(4, 4), 2)
	require.NoError(t, err)
	// steps = ceil(10 / (4-2)) = 5, spread over [0, 6].
	assert.Equal(t, []int{0, 1, 3, 4, 6}, g.Rows())
	assert.Equal(t, []int{0, 1, 3, 4, 6}, g.Cols())
	assert.Equal(t, 25, g.Len())

	// No overlap, patch divides tile.
	g, err = New(Sz(4, 6), Sz(2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, g.Rows())
	assert.Equal(t, []int{0, 3}, g.Cols())

	// Only one dimension needs stepping.
	g, err = New(Sz(3, 1), Sz(2, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, []Corner{{0, 0}, {1, 0}}, g.Corners())
}

func TestOrder(t *testing.T) {
	g, err := New(Sz(4, 6), Sz(2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, RowMajor, g.Order())
	assert.Equal(t, []Corner{{0, 0}, {0, 3}, {2, 0}, {2, 3}}, g.Corners())

	g, err = NewWithOrder(Sz(4, 6), Sz(2, 3), 0, ColumnMajor)
	require.NoError(t, err)
	assert.Equal(t, []Corner{{0, 0}, {2, 0}, {0, 3}, {2, 3}}, g.Corners())
	assert.Equal(t, "ColumnMajor", g.Order().String())

	_, err = NewWithOrder(Sz(4, 6), Sz(2, 3), 0, Order(7))
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestLenAndBounds(t *testing.T) {
	for _, tc := range []struct {
		tile, patch Size
		overlap     int
	}{
		{Sz(5000, 5000), Sz(572, 572), 184},
		{Sz(5184, 5184), Sz(572, 572), 0},
		{Sz(100, 37), Sz(16, 16), 5},
		{Sz(17, 300), Sz(17, 32), 31},
		{Sz(9, 9), Sz(8, 2), 1},
	} {
		g, err := New(tc.tile, tc.patch, tc.overlap)
		require.NoError(t, err)
		stepsH := NumSteps(tc.tile.Height, tc.patch.Height, tc.overlap)
		stepsW := NumSteps(tc.tile.Width, tc.patch.Width, tc.overlap)
		require.Equal(t, stepsH*stepsW, g.Len(), "grid %s", g)
		maxPos := tc.tile.Sub(tc.patch)
		for ii, c := range g.All() {
			require.Equal(t, c, g.At(ii))
			require.GreaterOrEqual(t, c.Row, 0)
			require.GreaterOrEqual(t, c.Col, 0)
			require.LessOrEqual(t, c.Row, max(maxPos.Height, 0), "corner %s of %s", c, g)
			require.LessOrEqual(t, c.Col, max(maxPos.Width, 0), "corner %s of %s", c, g)
		}
		// Full coverage: the last position reaches the far edge.
		if maxPos.Height > 0 {
			assert.Equal(t, maxPos.Height, g.Rows()[len(g.Rows())-1])
		}
		if maxPos.Width > 0 {
			assert.Equal(t, maxPos.Width, g.Cols()[len(g.Cols())-1])
		}
	}
}

func TestIndex(t *testing.T) {
	g := MustNew(Sz(4, 6), Sz(2, 3), 0)
	assert.Equal(t, 3, g.Index(Corner{2, 3}))
	assert.Equal(t, -1, g.Index(Corner{1, 1}))
}

func TestInvalidGeometry(t *testing.T) {
	for name, tc := range map[string]struct {
		tile, patch Size
		overlap     int
	}{
		"zero tile":           {Sz(0, 10), Sz(2, 2), 0},
		"negative patch":      {Sz(10, 10), Sz(-1, 2), 0},
		"negative overlap":    {Sz(10, 10), Sz(2, 2), -1},
		"overlap == patch":    {Sz(10, 10), Sz(4, 4), 4},
		"overlap > patch col": {Sz(4, 10), Sz(4, 3), 3},
	} {
		_, err := New(tc.tile, tc.patch, tc.overlap)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrInvalidGeometry), "%s: %v", name, err)
	}

	// Overlap >= patch is fine if the dimension doesn't need stepping.
	_, err := New(Sz(4, 4), Sz(4, 4), 4)
	require.NoError(t, err)

	require.Panics(t, func() { MustNew(Sz(0, 0), Sz(1, 1), 0) })
}
