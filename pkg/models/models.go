package models

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// tolerance used when comparing extents built by floating point arithmetic
const tolerance = 1e-9

// ScreenPoint represents a position in pixel space, origin top-left, y growing downward
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorldPoint represents a position in map coordinates, y growing upward
type WorldPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point converts the world point to an orb point
func (p WorldPoint) Point() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Extent represents an axis-aligned rectangle in world coordinates.
// Extents are values: transforms return a new Extent and never modify the receiver.
type Extent struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// ExtentFromBound builds an extent from an orb bound
func ExtentFromBound(b orb.Bound) Extent {
	return Extent{MinX: b.Min[0], MaxX: b.Max[0], MinY: b.Min[1], MaxY: b.Max[1]}
}

// Width returns the horizontal size of the extent
func (e Extent) Width() float64 {
	return e.MaxX - e.MinX
}

// Height returns the vertical size of the extent
func (e Extent) Height() float64 {
	return e.MaxY - e.MinY
}

// Valid reports whether the extent is finite and has a strictly positive width and height
func (e Extent) Valid() bool {
	for _, v := range []float64{e.MinX, e.MaxX, e.MinY, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.Width() > 0 && e.Height() > 0
}

// Center returns the middle of the extent
func (e Extent) Center() WorldPoint {
	return WorldPoint{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2}
}

// Contains reports whether the point lies inside or on the border of the extent
func (e Extent) Contains(p WorldPoint) bool {
	return p.X >= e.MinX && p.X <= e.MaxX && p.Y >= e.MinY && p.Y <= e.MaxY
}

// Bound converts the extent to an orb bound
func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// Polygon returns the extent as a closed polygon
func (e Extent) Polygon() orb.Polygon {
	return e.Bound().ToPolygon()
}

// Equal compares two extents with a small tolerance relative to their size
func (e Extent) Equal(o Extent) bool {
	scale := math.Max(1, math.Max(math.Abs(e.Width()), math.Abs(e.Height())))
	eps := tolerance * scale
	return math.Abs(e.MinX-o.MinX) <= eps && math.Abs(e.MaxX-o.MaxX) <= eps &&
		math.Abs(e.MinY-o.MinY) <= eps && math.Abs(e.MaxY-o.MaxY) <= eps
}

func (e Extent) String() string {
	return fmt.Sprintf("[%g %g, %g %g]", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// Field represents a single non-geometry attribute of a feature
type Field struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Feature represents a geometry with its attributes
type Feature struct {
	ID         string                 `json:"id"`
	Geometry   orb.Geometry           `json:"-"`
	Properties map[string]interface{} `json:"properties"`
}
