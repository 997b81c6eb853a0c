package geometry

import (
	"fmt"
	"math"
)

// Ellipse is a rotated ellipse in image coordinates.
//
// A and B are the semi-axes along the rotated x and y directions. No ordering
// between them is enforced; use Length and Width for the major/minor
// semantics. Theta is the rotation in radians.
//
// Construct values with NewEllipse so the rotation vectors are cached. A
// literal Ellipse still works, it just pays for a Sincos per call.
type Ellipse struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Theta float64 `json:"theta"`

	cos, sin float64
}

// NewEllipse returns the ellipse centred at (x, y) with semi-axes a and b
// rotated by theta radians.
func NewEllipse(x, y, a, b, theta float64) Ellipse {
	sin, cos := math.Sincos(theta)
	return Ellipse{X: x, Y: y, A: a, B: b, Theta: theta, cos: cos, sin: sin}
}

// Center returns the ellipse centre.
func (e Ellipse) Center() Point {
	return Point{X: e.X, Y: e.Y}
}

func (e Ellipse) rotation() (cos, sin float64) {
	if e.cos == 0 && e.sin == 0 {
		sin, cos = math.Sincos(e.Theta)
		return cos, sin
	}
	return e.cos, e.sin
}

// Local maps an image point into the ellipse frame: translated to the
// centre and rotated by -Theta, so the ellipse is x²/A² + y²/B² = 1.
func (e Ellipse) Local(p Point) Point {
	cos, sin := e.rotation()
	dx, dy := p.X-e.X, p.Y-e.Y
	return Point{X: cos*dx + sin*dy, Y: -sin*dx + cos*dy}
}

// World maps a point from the ellipse frame back to image coordinates.
func (e Ellipse) World(p Point) Point {
	cos, sin := e.rotation()
	return Point{X: e.X + cos*p.X - sin*p.Y, Y: e.Y + sin*p.X + cos*p.Y}
}

// Perimeter returns 2π·sqrt(a² + b²).
//
// This is not the elliptic perimeter. It is the normalisation used for
// fitness scores, and every comparison uses the same approximation.
func (e Ellipse) Perimeter() float64 {
	return 2 * math.Pi * math.Sqrt(e.A*e.A+e.B*e.B)
}

// IsInside reports whether p lies inside or on the ellipse.
func (e Ellipse) IsInside(p Point) bool {
	return e.implicit(p) <= 0
}

// implicit evaluates x²/a² + y²/b² - 1 in the local frame.
func (e Ellipse) implicit(p Point) float64 {
	l := e.Local(p)
	return (l.X*l.X)/(e.A*e.A) + (l.Y*l.Y)/(e.B*e.B) - 1
}

// Length is the full major axis, 2·max(a, b).
func (e Ellipse) Length() float64 {
	return 2 * math.Max(e.A, e.B)
}

// Width is the full minor axis, 2·min(a, b).
func (e Ellipse) Width() float64 {
	return 2 * math.Min(e.A, e.B)
}

// Aspect is Length / Width.
func (e Ellipse) Aspect() float64 {
	return e.Length() / e.Width()
}

// Valid reports whether both semi-axes are finite and positive and the
// centre and angle are finite.
func (e Ellipse) Valid() bool {
	for _, v := range []float64{e.X, e.Y, e.A, e.B, e.Theta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.A > 0 && e.B > 0
}

// Polygon samples n points evenly in parametric angle over [0, 2π), for
// drawing the ellipse as a closed polyline.
func (e Ellipse) Polygon(n int) []Point {
	if n < 3 {
		n = 3
	}
	pts := make([]Point, n)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / float64(n)
		st, ct := math.Sincos(t)
		pts[i] = e.World(Point{X: e.A * ct, Y: e.B * st})
	}
	return pts
}

// String implements fmt.Stringer.
func (e Ellipse) String() string {
	return fmt.Sprintf("ellipse(x=%.2f y=%.2f a=%.2f b=%.2f theta=%.4f)", e.X, e.Y, e.A, e.B, e.Theta)
}
