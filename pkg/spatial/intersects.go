// Package spatial provides the planar predicates used by in-memory layer sources.
package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether geometry g shares at least one point with polygon p.
// Both are treated as planar geometries; polygon holes are honoured.
func Intersects(g orb.Geometry, p orb.Polygon) bool {
	if g == nil || len(p) == 0 || len(p[0]) == 0 {
		return false
	}
	if !g.Bound().Intersects(p.Bound()) {
		return false
	}

	switch g := g.(type) {
	case orb.Point:
		return planar.PolygonContains(p, g)
	case orb.MultiPoint:
		for _, pt := range g {
			if planar.PolygonContains(p, pt) {
				return true
			}
		}
		return false
	case orb.LineString:
		return lineIntersectsPolygon(g, p)
	case orb.MultiLineString:
		for _, ls := range g {
			if lineIntersectsPolygon(ls, p) {
				return true
			}
		}
		return false
	case orb.Ring:
		return polygonsIntersect(orb.Polygon{g}, p)
	case orb.Polygon:
		return polygonsIntersect(g, p)
	case orb.MultiPolygon:
		for _, poly := range g {
			if polygonsIntersect(poly, p) {
				return true
			}
		}
		return false
	case orb.Bound:
		return polygonsIntersect(g.ToPolygon(), p)
	case orb.Collection:
		for _, child := range g {
			if Intersects(child, p) {
				return true
			}
		}
		return false
	}
	return false
}

func lineIntersectsPolygon(ls orb.LineString, p orb.Polygon) bool {
	for _, pt := range ls {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}
	for _, ring := range p {
		if pathsCross(ls, orb.LineString(ring)) {
			return true
		}
	}
	return false
}

func polygonsIntersect(a, b orb.Polygon) bool {
	if len(a) == 0 || len(a[0]) == 0 {
		return false
	}
	// one outer ring inside the other
	if planar.PolygonContains(b, a[0][0]) || planar.PolygonContains(a, b[0][0]) {
		return true
	}
	for _, ra := range a {
		for _, rb := range b {
			if pathsCross(orb.LineString(ra), orb.LineString(rb)) {
				return true
			}
		}
	}
	return false
}

func pathsCross(a, b orb.LineString) bool {
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if segmentsIntersect(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect reports whether segments p1p2 and q1q2 touch, including collinear overlap
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
