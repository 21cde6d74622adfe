// Package geometry provides the shapes placed on chip layers and the
// proximity test used to decide whether two shapes are electrically touching.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Box represents an axis-aligned rectangular boundary
type Box struct {
	Min r2.Vec // Minimum (top-left) corner
	Max r2.Vec // Maximum (bottom-right) corner
}

// NewBox creates an empty box that any Expand call will replace
func NewBox() Box {
	return Box{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
}

// BoxOf returns the smallest box containing all points
func BoxOf(points ...r2.Vec) Box {
	b := NewBox()
	for _, p := range points {
		b.Expand(p)
	}
	return b
}

// IsEmpty checks if the box contains nothing
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y
}

// Intersects checks if two boxes intersect. Touching edges count.
func (b Box) Intersects(other Box) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return false
	}
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y
}

// Contains checks if a position is within the box
func (b Box) Contains(p r2.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Expand expands the box to include a position
func (b *Box) Expand(p r2.Vec) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
}

// ExpandBox expands the box to include another box
func (b *Box) ExpandBox(other Box) {
	if !other.IsEmpty() {
		b.Expand(other.Min)
		b.Expand(other.Max)
	}
}

// Grow returns the box enlarged by d on every side
func (b Box) Grow(d float64) Box {
	if b.IsEmpty() {
		return b
	}
	return Box{
		Min: r2.Vec{X: b.Min.X - d, Y: b.Min.Y - d},
		Max: r2.Vec{X: b.Max.X + d, Y: b.Max.Y + d},
	}
}

// Width returns the width of the box
func (b Box) Width() float64 {
	return b.Max.X - b.Min.X
}

// Height returns the height of the box
func (b Box) Height() float64 {
	return b.Max.Y - b.Min.Y
}

// Center returns the center point of the box
func (b Box) Center() r2.Vec {
	return r2.Vec{
		X: (b.Min.X + b.Max.X) / 2.0,
		Y: (b.Min.Y + b.Max.Y) / 2.0,
	}
}
