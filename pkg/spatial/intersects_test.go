package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

var envelope = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}.ToPolygon()

func TestIntersects(t *testing.T) {
	square := func(minX, minY, maxX, maxY float64) orb.Polygon {
		return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
	}

	donut := orb.Polygon{
		square(-20, -20, 30, 30)[0],
		orb.Ring{{-5, -5}, {-5, 15}, {15, 15}, {15, -5}, {-5, -5}},
	}

	testCases := []struct {
		name     string
		geometry orb.Geometry
		expected bool
	}{
		{"point inside", orb.Point{5, 5}, true},
		{"point on border", orb.Point{10, 5}, true},
		{"point outside", orb.Point{11, 5}, false},
		{"multipoint one inside", orb.MultiPoint{{-1, -1}, {2, 2}}, true},
		{"multipoint all outside", orb.MultiPoint{{-1, -1}, {20, 2}}, false},
		{"line crossing without vertex inside", orb.LineString{{-5, 5}, {15, 5}}, true},
		{"line with vertex inside", orb.LineString{{5, 5}, {50, 50}}, true},
		{"line passing by", orb.LineString{{-5, 11}, {15, 11}}, false},
		{"line left of envelope", orb.LineString{{-5, -5}, {-1, 20}}, false},
		{"multiline", orb.MultiLineString{{{20, 20}, {30, 30}}, {{5, -5}, {5, 15}}}, true},
		{"polygon overlapping", square(5, 5, 15, 15), true},
		{"polygon containing envelope", square(-100, -100, 100, 100), true},
		{"polygon inside envelope", square(2, 2, 3, 3), true},
		{"polygon disjoint", square(20, 20, 30, 30), false},
		{"polygon touching edge", square(10, 0, 20, 10), true},
		{"envelope inside hole", donut, false},
		{"ring", orb.Ring{{8, 8}, {8, 20}, {20, 20}, {20, 8}, {8, 8}}, true},
		{"multipolygon", orb.MultiPolygon{square(20, 20, 30, 30), square(9, 9, 12, 12)}, true},
		{"bound", orb.Bound{Min: orb.Point{-3, -3}, Max: orb.Point{0, 0}}, true},
		{"collection", orb.Collection{orb.Point{50, 50}, orb.Point{1, 1}}, true},
		{"empty collection", orb.Collection{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Intersects(tc.geometry, envelope))
		})
	}
}

func TestIntersectsDegenerateInput(t *testing.T) {
	assert.False(t, Intersects(nil, envelope))
	assert.False(t, Intersects(orb.Point{1, 1}, orb.Polygon{}))
	assert.False(t, Intersects(orb.Polygon{}, envelope))
}

func TestSegmentsIntersect(t *testing.T) {
	assert.True(t, segmentsIntersect(orb.Point{0, 0}, orb.Point{2, 2}, orb.Point{0, 2}, orb.Point{2, 0}))
	assert.True(t, segmentsIntersect(orb.Point{0, 0}, orb.Point{2, 0}, orb.Point{1, 0}, orb.Point{3, 0}))
	assert.False(t, segmentsIntersect(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 0}, orb.Point{3, 0}))
	assert.False(t, segmentsIntersect(orb.Point{0, 0}, orb.Point{1, 1}, orb.Point{0, 1}, orb.Point{0.4, 0.6}))
}
