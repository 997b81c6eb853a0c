package conic

import "errors"

var (
	// ErrTooFewPoints is returned when fewer than MinPoints points are given.
	ErrTooFewPoints = errors.New("conic: too few points for an ellipse fit")

	// ErrDegenerate is returned when the points do not determine a real,
	// finite ellipse: a singular scatter matrix, collinear input, no
	// eigenvector meeting the ellipse constraint, or a negative radicand in
	// the geometric conversion.
	ErrDegenerate = errors.New("conic: degenerate ellipse fit")

	// ErrNoConvergence is returned when the QR eigenvalue iteration or the
	// eigenvector refinement exhausts its iteration budget.
	ErrNoConvergence = errors.New("conic: eigen iteration did not converge")
)
