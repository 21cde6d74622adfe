package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func v(x, y float64) r2.Vec { return r2.Vec{X: x, Y: y} }

func TestTouches_WireEndpointsWithinLambda(t *testing.T) {
	a := Segment(v(0, 0), v(10, 0), 0)
	b := Segment(v(10.4, 0), v(20, 0), 0)

	assert.True(t, Touches(a, b, 0.5))
	assert.False(t, Touches(a, b, 0.3))
	assert.InDelta(t, 0.4, Gap(a, b), 1e-9)
}

func TestTouches_Symmetric(t *testing.T) {
	shapes := []Shape{
		Point(v(0, 0), 1),
		Segment(v(-5, 2), v(5, 2), 0.5),
		Rect(3, -1, 6, 1),
		Point(v(7, 0), 0),
		Segment(v(20, 20), v(21, 21), 0),
	}
	for i, a := range shapes {
		for j, b := range shapes {
			for _, lambda := range []float64{0, 0.5, 2} {
				assert.Equal(t, Touches(a, b, lambda), Touches(b, a, lambda),
					"shapes %d and %d lambda %v", i, j, lambda)
			}
		}
	}
}

func TestTouches_ZeroLambdaIsExactTouch(t *testing.T) {
	a := Point(v(0, 0), 2)
	b := Point(v(2, 0), 2)
	c := Point(v(2.01, 0), 2)

	assert.True(t, Touches(a, b, 0), "radii exactly meet")
	assert.False(t, Touches(a, c, 0))
	assert.True(t, Touches(a, c, 0.01))
}

func TestTouches_PointsExpandByLambda(t *testing.T) {
	a := Point(v(0, 0), 0)
	b := Point(v(0, 1), 0)

	assert.False(t, Touches(a, b, 0.99))
	assert.True(t, Touches(a, b, 1))
}

func TestTouches_CrossingSegments(t *testing.T) {
	a := Segment(v(0, 0), v(10, 10), 0)
	b := Segment(v(0, 10), v(10, 0), 0)
	assert.Zero(t, Gap(a, b))
}

func TestTouches_Areas(t *testing.T) {
	area := Rect(0, 0, 10, 10)

	assert.True(t, Touches(area, Point(v(5, 5), 0), 0), "point inside")
	assert.True(t, Touches(area, Point(v(10, 5), 0), 0), "point on edge")
	assert.False(t, Touches(area, Point(v(12, 5), 0), 1.5))
	assert.True(t, Touches(area, Point(v(12, 5), 1), 1.5))

	inner := Rect(2, 2, 3, 3)
	assert.True(t, Touches(area, inner, 0), "nested areas overlap")

	wire := Segment(v(-5, 5), v(-1, 5), 0)
	assert.InDelta(t, 1.0, Gap(area, wire), 1e-9)
}

func TestShape_BoundsIncludeThickness(t *testing.T) {
	s := Segment(v(0, 0), v(10, 0), 2)
	b := s.Bounds()
	assert.Equal(t, v(-1, -1), b.Min)
	assert.Equal(t, v(11, 1), b.Max)
}

func TestShape_Validate(t *testing.T) {
	require.NoError(t, Point(v(1, 1), 1).Validate())
	require.Error(t, Point(v(1, 1), -1).Validate())
	require.Error(t, Polygon([]r2.Vec{v(0, 0), v(1, 1)}).Validate())
}

func TestShape_Translate(t *testing.T) {
	s := Rect(0, 0, 1, 1).Translate(v(5, 5))
	assert.Equal(t, v(5, 5), s.Outline[0])

	orig := Rect(0, 0, 1, 1)
	moved := orig.Translate(v(1, 0))
	assert.NotEqual(t, orig.Outline[0], moved.Outline[0], "translate must not alias the outline")
}

func TestBox_Intersects(t *testing.T) {
	a := BoxOf(v(0, 0), v(1, 1))
	b := BoxOf(v(1, 1), v(2, 2))
	c := BoxOf(v(3, 3), v(4, 4))

	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
	assert.False(t, NewBox().Intersects(a))
	assert.True(t, NewBox().IsEmpty())
}
