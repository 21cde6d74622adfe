package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ShapeKind identifies the geometry variant carried by a Shape.
type ShapeKind int

const (
	ShapePoint   ShapeKind = iota // A point with a diameter (ports, vias, markers)
	ShapeSegment                  // A line segment with a diameter (wires)
	ShapeArea                     // A closed polygon (gates, annotations)
)

func (k ShapeKind) String() string {
	switch k {
	case ShapePoint:
		return "point"
	case ShapeSegment:
		return "segment"
	case ShapeArea:
		return "area"
	default:
		return "unknown"
	}
}

// Shape is the layer-local geometry of a placed object.
type Shape struct {
	Kind     ShapeKind
	A        r2.Vec   // Point position, or segment start
	B        r2.Vec   // Segment end
	Diameter float64  // Point or segment thickness
	Outline  []r2.Vec // Area outline, implicitly closed
}

// Point creates a point shape.
func Point(at r2.Vec, diameter float64) Shape {
	return Shape{Kind: ShapePoint, A: at, B: at, Diameter: diameter}
}

// Segment creates a line segment shape.
func Segment(from, to r2.Vec, diameter float64) Shape {
	return Shape{Kind: ShapeSegment, A: from, B: to, Diameter: diameter}
}

// Rect creates a rectangular area from two corners.
func Rect(x0, y0, x1, y1 float64) Shape {
	minX, maxX := math.Min(x0, x1), math.Max(x0, x1)
	minY, maxY := math.Min(y0, y1), math.Max(y0, y1)
	return Polygon([]r2.Vec{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	})
}

// Polygon creates an area shape from its outline.
func Polygon(outline []r2.Vec) Shape {
	pts := make([]r2.Vec, len(outline))
	copy(pts, outline)
	return Shape{Kind: ShapeArea, Outline: pts}
}

// Radius returns half the diameter; areas have no radius.
func (s Shape) Radius() float64 {
	if s.Kind == ShapeArea {
		return 0
	}
	return s.Diameter / 2
}

// Bounds returns the bounding box of the shape including its thickness.
func (s Shape) Bounds() Box {
	switch s.Kind {
	case ShapeArea:
		return BoxOf(s.Outline...)
	case ShapeSegment:
		return BoxOf(s.A, s.B).Grow(s.Radius())
	default:
		return BoxOf(s.A).Grow(s.Radius())
	}
}

// Translate returns the shape moved by d.
func (s Shape) Translate(d r2.Vec) Shape {
	out := s
	out.A = r2.Add(s.A, d)
	out.B = r2.Add(s.B, d)
	if s.Outline != nil {
		out.Outline = make([]r2.Vec, len(s.Outline))
		for i, p := range s.Outline {
			out.Outline[i] = r2.Add(p, d)
		}
	}
	return out
}

// Validate reports shapes that cannot take part in touch tests.
func (s Shape) Validate() error {
	if s.Diameter < 0 || math.IsNaN(s.Diameter) {
		return fmt.Errorf("geometry: invalid diameter %v", s.Diameter)
	}
	switch s.Kind {
	case ShapePoint, ShapeSegment:
		if !finite(s.A) || !finite(s.B) {
			return fmt.Errorf("geometry: non-finite coordinates in %s", s.Kind)
		}
	case ShapeArea:
		if len(s.Outline) < 3 {
			return fmt.Errorf("geometry: area needs at least 3 vertices, got %d", len(s.Outline))
		}
		for _, p := range s.Outline {
			if !finite(p) {
				return fmt.Errorf("geometry: non-finite coordinates in area")
			}
		}
	default:
		return fmt.Errorf("geometry: unknown shape kind %d", s.Kind)
	}
	return nil
}

func (s Shape) String() string {
	switch s.Kind {
	case ShapePoint:
		return fmt.Sprintf("point(%.3f,%.3f d=%.3f)", s.A.X, s.A.Y, s.Diameter)
	case ShapeSegment:
		return fmt.Sprintf("segment(%.3f,%.3f-%.3f,%.3f d=%.3f)", s.A.X, s.A.Y, s.B.X, s.B.Y, s.Diameter)
	default:
		return fmt.Sprintf("area(%d vertices)", len(s.Outline))
	}
}

func finite(p r2.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
