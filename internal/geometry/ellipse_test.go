package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointArithmetic(t *testing.T) {
	p := Pt(3, 4)
	q := Pt(1, 1)

	assert.Equal(t, Pt(2, 3), p.Sub(q))
	assert.Equal(t, Pt(4, 5), p.Add(q))
	assert.Equal(t, Pt(6, 8), p.Scale(2))
	assert.InDelta(t, 5.0, p.Norm(), 1e-12)
	assert.InDelta(t, math.Sqrt(13), p.Distance(q), 1e-12)
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, Point{}, Centroid(nil))

	c := Centroid([]Point{{0, 0}, {4, 0}, {4, 2}, {0, 2}})
	assert.InDelta(t, 2.0, c.X, 1e-12)
	assert.InDelta(t, 1.0, c.Y, 1e-12)
}

func TestEllipse_LocalWorldRoundTrip(t *testing.T) {
	e := NewEllipse(120, -40, 30, 12, 0.7)
	for _, p := range []Point{{0, 0}, {120, -40}, {150, -10}, {-3.5, 88}} {
		back := e.World(e.Local(p))
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestEllipse_LiteralMatchesConstructor(t *testing.T) {
	lit := Ellipse{X: 5, Y: 6, A: 20, B: 8, Theta: 1.1}
	built := NewEllipse(5, 6, 20, 8, 1.1)
	p := Pt(17, -2)

	assert.InDelta(t, built.Local(p).X, lit.Local(p).X, 1e-12)
	assert.InDelta(t, built.Local(p).Y, lit.Local(p).Y, 1e-12)
	assert.InDelta(t, built.DistanceExact(p), lit.DistanceExact(p), 1e-9)
}

func TestEllipse_Perimeter(t *testing.T) {
	e := NewEllipse(0, 0, 50, 50, 0)
	assert.InDelta(t, 2*math.Pi*50*math.Sqrt2, e.Perimeter(), 1e-9)

	e = NewEllipse(0, 0, 3, 4, 1)
	assert.InDelta(t, 10*math.Pi, e.Perimeter(), 1e-9)
}

func TestEllipse_LengthWidthAspect(t *testing.T) {
	tests := []struct {
		name   string
		e      Ellipse
		length float64
		width  float64
		aspect float64
	}{
		{"a major", NewEllipse(0, 0, 40, 10, 0), 80, 20, 4},
		{"b major", NewEllipse(0, 0, 10, 40, 0.3), 80, 20, 4},
		{"circle", NewEllipse(0, 0, 25, 25, 0), 50, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.length, tt.e.Length(), 1e-12)
			assert.InDelta(t, tt.width, tt.e.Width(), 1e-12)
			assert.InDelta(t, tt.aspect, tt.e.Aspect(), 1e-12)
		})
	}
}

func TestEllipse_Valid(t *testing.T) {
	assert.True(t, NewEllipse(1, 2, 3, 4, 0.5).Valid())
	assert.False(t, NewEllipse(1, 2, 0, 4, 0.5).Valid())
	assert.False(t, NewEllipse(1, 2, 3, -4, 0.5).Valid())
	assert.False(t, NewEllipse(math.NaN(), 2, 3, 4, 0.5).Valid())
	assert.False(t, NewEllipse(1, 2, math.Inf(1), 4, 0.5).Valid())
}

func TestEllipse_IsInside(t *testing.T) {
	e := NewEllipse(100, 100, 40, 15, math.Pi/6)

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"centre", Pt(100, 100), true},
		{"along major axis inside", e.World(Pt(39, 0)), true},
		{"along major axis outside", e.World(Pt(41, 0)), false},
		{"along minor axis inside", e.World(Pt(0, 14)), true},
		{"along minor axis outside", e.World(Pt(0, 16)), false},
		{"unrotated major end", Pt(139, 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsInside(tt.p))
		})
	}
}

func TestEllipse_IsInsideAgreesWithImplicitSign(t *testing.T) {
	e := NewEllipse(10, -5, 25, 9, -0.8)
	for x := -30.0; x <= 50; x += 1.7 {
		for y := -40.0; y <= 30; y += 1.3 {
			p := Pt(x, y)
			l := e.Local(p)
			implicit := l.X*l.X/(e.A*e.A) + l.Y*l.Y/(e.B*e.B) - 1
			require.Equal(t, implicit <= 0, e.IsInside(p), "point %v", p)
		}
	}
}

func TestEllipse_Polygon(t *testing.T) {
	e := NewEllipse(60, 40, 30, 10, 0.4)
	pts := e.Polygon(50)
	require.Len(t, pts, 50)

	for _, p := range pts {
		assert.InDelta(t, 0, e.implicit(p), 1e-9)
	}
	first := e.World(Pt(e.A, 0))
	assert.InDelta(t, first.X, pts[0].X, 1e-9)
	assert.InDelta(t, first.Y, pts[0].Y, 1e-9)

	assert.Len(t, e.Polygon(1), 3)
}
