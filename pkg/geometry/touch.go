package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// touchEpsilon absorbs floating point noise in distance comparisons.
const touchEpsilon = 1e-9

// Touches reports whether a and b are within lambda of each other.
// With lambda = 0 the shapes must overlap or share a boundary.
func Touches(a, b Shape, lambda float64) bool {
	if lambda < 0 {
		lambda = 0
	}
	return Gap(a, b) <= lambda+touchEpsilon
}

// Gap returns the free distance between the outer edges of two shapes,
// or 0 when they overlap.
func Gap(a, b Shape) float64 {
	d := centerlineDistance(a, b) - a.Radius() - b.Radius()
	if d < 0 {
		return 0
	}
	return d
}

// centerlineDistance is the distance between the zero-thickness skeletons
// of two shapes.
func centerlineDistance(a, b Shape) float64 {
	if a.Kind == ShapeArea || b.Kind == ShapeArea {
		return areaDistance(a, b)
	}
	return segmentDistance(a.A, skeletonEnd(a), b.A, skeletonEnd(b))
}

func skeletonEnd(s Shape) r2.Vec {
	if s.Kind == ShapePoint {
		return s.A
	}
	return s.B
}

// areaDistance handles every pairing that involves at least one polygon.
func areaDistance(a, b Shape) float64 {
	if a.Kind != ShapeArea {
		a, b = b, a
	}
	// containment in either direction means overlap
	for _, p := range skeletonPoints(b) {
		if pointInPolygon(p, a.Outline) {
			return 0
		}
	}
	if b.Kind == ShapeArea {
		for _, p := range a.Outline {
			if pointInPolygon(p, b.Outline) {
				return 0
			}
		}
	}

	best := math.Inf(1)
	for _, ea := range edges(a) {
		for _, eb := range edges(b) {
			if d := segmentDistance(ea[0], ea[1], eb[0], eb[1]); d < best {
				best = d
			}
		}
	}
	return best
}

// skeletonPoints returns the vertices of the shape skeleton.
func skeletonPoints(s Shape) []r2.Vec {
	switch s.Kind {
	case ShapeArea:
		return s.Outline
	case ShapeSegment:
		return []r2.Vec{s.A, s.B}
	default:
		return []r2.Vec{s.A}
	}
}

// edges returns the skeleton as a list of segments.
func edges(s Shape) [][2]r2.Vec {
	switch s.Kind {
	case ShapeArea:
		n := len(s.Outline)
		out := make([][2]r2.Vec, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, [2]r2.Vec{s.Outline[i], s.Outline[(i+1)%n]})
		}
		return out
	case ShapeSegment:
		return [][2]r2.Vec{{s.A, s.B}}
	default:
		return [][2]r2.Vec{{s.A, s.A}}
	}
}

// pointSegmentDistance returns the distance from p to the segment a-b.
func pointSegmentDistance(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	lenSq := r2.Dot(ab, ab)
	if lenSq == 0 {
		return r2.Norm(r2.Sub(p, a))
	}
	t := r2.Dot(r2.Sub(p, a), ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	closest := r2.Add(a, r2.Scale(t, ab))
	return r2.Norm(r2.Sub(p, closest))
}

// segmentDistance returns the minimum distance between segments p1-p2 and q1-q2.
// Degenerate segments (points) are supported.
func segmentDistance(p1, p2, q1, q2 r2.Vec) float64 {
	if segmentsIntersect(p1, p2, q1, q2) {
		return 0
	}
	return math.Min(
		math.Min(pointSegmentDistance(p1, q1, q2), pointSegmentDistance(p2, q1, q2)),
		math.Min(pointSegmentDistance(q1, p1, p2), pointSegmentDistance(q2, p1, p2)),
	)
}

func cross(o, a, b r2.Vec) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func sign(v float64) int {
	switch {
	case v > touchEpsilon:
		return 1
	case v < -touchEpsilon:
		return -1
	default:
		return 0
	}
}

// onSegment assumes p is collinear with a-b.
func onSegment(p, a, b r2.Vec) bool {
	return p.X >= math.Min(a.X, b.X)-touchEpsilon && p.X <= math.Max(a.X, b.X)+touchEpsilon &&
		p.Y >= math.Min(a.Y, b.Y)-touchEpsilon && p.Y <= math.Max(a.Y, b.Y)+touchEpsilon
}

func segmentsIntersect(p1, p2, q1, q2 r2.Vec) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	switch {
	case d1 == 0 && onSegment(p1, q1, q2):
		return true
	case d2 == 0 && onSegment(p2, q1, q2):
		return true
	case d3 == 0 && onSegment(q1, p1, p2):
		return true
	case d4 == 0 && onSegment(q2, p1, p2):
		return true
	}
	return false
}

// pointInPolygon uses the even-odd rule; points on an edge count as inside.
func pointInPolygon(p r2.Vec, poly []r2.Vec) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if pointSegmentDistance(p, a, b) <= touchEpsilon {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
