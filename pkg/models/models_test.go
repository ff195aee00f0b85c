package models

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestExtentValid(t *testing.T) {
	testCases := []struct {
		name   string
		extent Extent
		valid  bool
	}{
		{"unit square", Extent{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}, true},
		{"zero width", Extent{MinX: 5, MaxX: 5, MinY: 0, MaxY: 1}, false},
		{"inverted height", Extent{MinX: 0, MaxX: 1, MinY: 2, MaxY: 1}, false},
		{"nan", Extent{MinX: math.NaN(), MaxX: 1, MinY: 0, MaxY: 1}, false},
		{"infinite", Extent{MinX: 0, MaxX: math.Inf(1), MinY: 0, MaxY: 1}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.extent.Valid())
		})
	}
}

func TestExtentBoundRoundTrip(t *testing.T) {
	e := Extent{MinX: -10, MaxX: 90, MinY: 0, MaxY: 100}

	b := e.Bound()
	assert.Equal(t, orb.Point{-10, 0}, b.Min)
	assert.Equal(t, orb.Point{90, 100}, b.Max)
	assert.Equal(t, e, ExtentFromBound(b))

	assert.Equal(t, 100.0, e.Width())
	assert.Equal(t, 100.0, e.Height())
	assert.Equal(t, WorldPoint{X: 40, Y: 50}, e.Center())
	assert.True(t, e.Contains(WorldPoint{X: -10, Y: 100}))
	assert.False(t, e.Contains(WorldPoint{X: 91, Y: 50}))
}

func TestExtentEqual(t *testing.T) {
	e := Extent{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100}

	assert.True(t, e.Equal(Extent{MinX: 1e-12, MaxX: 100, MinY: 0, MaxY: 100 - 1e-12}))
	assert.False(t, e.Equal(Extent{MinX: 0.001, MaxX: 100, MinY: 0, MaxY: 100}))
}
