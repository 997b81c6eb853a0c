package conic

import (
	"fmt"
	"math"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

// Conic holds the coefficients [A, B, C, D, E, F] of
// Ax² + Bxy + Cy² + Dx + Ey + F = 0.
type Conic [6]float64

// Discriminant returns B² - 4AC, negative for ellipses.
func (c Conic) Discriminant() float64 {
	return c[1]*c[1] - 4*c[0]*c[2]
}

// Evaluate returns the algebraic residual of p.
func (c Conic) Evaluate(p geometry.Point) float64 {
	return c[0]*p.X*p.X + c[1]*p.X*p.Y + c[2]*p.Y*p.Y + c[3]*p.X + c[4]*p.Y + c[5]
}

// Ellipse converts the conic to centre, semi-axes and rotation.
//
// The semi-axis paired with +√((A-C)² + B²) is reported as A. Rotation is
// atan((C - A - R)/B), or 0 / π/2 when B is zero depending on whether A < C.
// Non-elliptic conics, imaginary ellipses and non-finite results wrap
// ErrDegenerate.
func (c Conic) Ellipse() (geometry.Ellipse, error) {
	a, b, cc, d, e, f := c[0], c[1], c[2], c[3], c[4], c[5]

	disc := c.Discriminant()
	if !(disc < 0) {
		return geometry.Ellipse{}, fmt.Errorf("%w: discriminant %g is not negative", ErrDegenerate, disc)
	}

	r := math.Sqrt((a-cc)*(a-cc) + b*b)
	k := 2 * (a*e*e + cc*d*d - b*d*e + disc*f)
	ra := k * ((a + cc) + r)
	rb := k * ((a + cc) - r)
	if !(ra > 0) || !(rb > 0) {
		return geometry.Ellipse{}, fmt.Errorf("%w: negative radicand (%g, %g)", ErrDegenerate, ra, rb)
	}

	semiA := math.Sqrt(ra) / -disc
	semiB := math.Sqrt(rb) / -disc
	x0 := (2*cc*d - b*e) / disc
	y0 := (2*a*e - b*d) / disc

	var theta float64
	switch {
	case b != 0:
		theta = math.Atan((cc - a - r) / b)
	case a < cc:
		theta = 0
	default:
		theta = math.Pi / 2
	}

	el := geometry.NewEllipse(x0, y0, semiA, semiB, theta)
	if !el.Valid() {
		return geometry.Ellipse{}, fmt.Errorf("%w: non-finite ellipse %v", ErrDegenerate, el)
	}
	return el, nil
}

// FromEllipse returns the conic of e scaled so that 4AC - B² = 1.
func FromEllipse(e geometry.Ellipse) Conic {
	sin, cos := math.Sincos(e.Theta)
	a2, b2 := e.A*e.A, e.B*e.B

	A := a2*sin*sin + b2*cos*cos
	B := 2 * (b2 - a2) * sin * cos
	C := a2*cos*cos + b2*sin*sin
	D := -2*A*e.X - B*e.Y
	E := -B*e.X - 2*C*e.Y
	F := A*e.X*e.X + B*e.X*e.Y + C*e.Y*e.Y - a2*b2

	c := Conic{A, B, C, D, E, F}
	scale := 1 / math.Sqrt(-c.Discriminant())
	for i := range c {
		c[i] *= scale
	}
	return c
}
