package conic

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

// MinPoints is the smallest point count Fit accepts.
const MinPoints = 6

const (
	refineTolerance = 1e-12

	// negligibleEigenvalue is the fraction of the largest eigenvalue
	// magnitude below which an eigenvalue is treated as zero.
	negligibleEigenvalue = 1e-12

	// minConstraint is the smallest vᵀCv, for a unit eigenvector v, that
	// counts as satisfying the ellipse constraint 4AC - B² > 0.
	minConstraint = 1e-12

	// collinearRatio is the smallest minor/major variance ratio of the
	// input cloud that can still bound an ellipse.
	collinearRatio = 1e-12
)

// constraint is the Halíř–Flusser matrix C with vᵀCv = 4AC - B².
// It is only ever read, so concurrent fits may share it.
var constraint = mat.NewDense(6, 6, []float64{
	0, 0, 2, 0, 0, 0,
	0, -1, 0, 0, 0, 0,
	2, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0,
})

// Solver holds the iteration budgets of the eigen routines.
type Solver struct {
	// Tolerance is the relative size of a subdiagonal entry below which the
	// QR iteration deflates.
	Tolerance float64

	// MaxQRIterations caps QR steps spent on any one eigenvalue.
	MaxQRIterations int

	// MaxRefineIterations caps inverse-iteration steps per eigenvector.
	MaxRefineIterations int
}

// DefaultSolver returns the budgets used by Fit.
func DefaultSolver() Solver {
	return Solver{
		Tolerance:           1e-14,
		MaxQRIterations:     60,
		MaxRefineIterations: 50,
	}
}

// Fit fits an ellipse to points with DefaultSolver.
func Fit(points []geometry.Point) (geometry.Ellipse, error) {
	return DefaultSolver().Fit(points)
}

// Fit returns the direct least-squares ellipse through points using the
// Halíř–Flusser formulation of Fitzgibbon's method.
//
// # Algorithm
//
//  1. Translate the points to their centroid and scale them to a mean
//     radius of √2, which keeps the scatter matrix well conditioned.
//  2. Build the design matrix D with rows [x², xy, y², x, y, 1] and the
//     scatter matrix S = DᵀD. An exactly singular S, which happens for
//     noise-free points, is retried once with a ridge of one ulp of its
//     trace.
//  3. Compute the eigenvalues of M = S⁻¹C by Hessenberg reduction and
//     shifted QR, then walk them from largest to smallest, refining each
//     eigenvector by inverse iteration until one satisfies vᵀCv > 0.
//  4. Scale that eigenvector so 4AC - B² = 1, convert the conic to centre,
//     semi-axes and angle, and undo the normalisation.
//
// Fit never mutates points. Failures wrap ErrTooFewPoints, ErrDegenerate or
// ErrNoConvergence.
func (s Solver) Fit(points []geometry.Point) (geometry.Ellipse, error) {
	if len(points) < MinPoints {
		return geometry.Ellipse{}, fmt.Errorf("%w: got %d, need %d", ErrTooFewPoints, len(points), MinPoints)
	}

	norm, err := normalize(points)
	if err != nil {
		return geometry.Ellipse{}, err
	}

	design := mat.NewDense(len(points), 6, nil)
	for i, p := range points {
		x := (p.X - norm.center.X) / norm.scale
		y := (p.Y - norm.center.Y) / norm.scale
		design.SetRow(i, []float64{x * x, x * y, y * y, x, y, 1})
	}

	var scatter mat.Dense
	scatter.Mul(design.T(), design)

	inverse, err := invertScatter(&scatter)
	if err != nil {
		return geometry.Ellipse{}, err
	}

	var m mat.Dense
	m.Mul(inverse, constraint)

	var m6 matrix6
	for i := range m6 {
		for j := range m6[i] {
			m6[i][j] = m.At(i, j)
		}
	}

	coeffs, err := s.constrainedEigenvector(m6)
	if err != nil {
		return geometry.Ellipse{}, err
	}

	local, err := coeffs.Ellipse()
	if err != nil {
		return geometry.Ellipse{}, err
	}

	e := geometry.NewEllipse(
		norm.center.X+norm.scale*local.X,
		norm.center.Y+norm.scale*local.Y,
		norm.scale*local.A,
		norm.scale*local.B,
		local.Theta,
	)
	if !e.Valid() {
		return geometry.Ellipse{}, fmt.Errorf("%w: non-finite result %v", ErrDegenerate, e)
	}
	return e, nil
}

type normalization struct {
	center geometry.Point
	scale  float64
}

// normalize computes the similarity transform applied before fitting and
// rejects clouds that are collinear or non-finite.
func normalize(points []geometry.Point) (normalization, error) {
	xs, ys := geometry.Coordinates(points)
	center := geometry.Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
	if math.IsNaN(center.X) || math.IsNaN(center.Y) || math.IsInf(center.X, 0) || math.IsInf(center.Y, 0) {
		return normalization{}, fmt.Errorf("%w: non-finite input", ErrDegenerate)
	}

	radii := make([]float64, len(points))
	for i, p := range points {
		radii[i] = p.Distance(center)
	}
	scale := stat.Mean(radii, nil) / math.Sqrt2
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return normalization{}, fmt.Errorf("%w: points coincide", ErrDegenerate)
	}

	// Eigenvalues of the 2×2 covariance give the spread along the principal
	// directions. A line has no spread across it.
	vxx := stat.Variance(xs, nil)
	vyy := stat.Variance(ys, nil)
	vxy := stat.Covariance(xs, ys, nil)
	major, minor, _ := eig2(vxx, vxy, vxy, vyy)
	if major <= 0 || minor/major < collinearRatio {
		return normalization{}, fmt.Errorf("%w: points are collinear", ErrDegenerate)
	}

	return normalization{center: center, scale: scale}, nil
}

// invertScatter returns S⁻¹. gonum reports an exactly singular S with an
// infinite Condition; that case gets one ridge-regularised retry. A finite
// Condition only warns that S is ill conditioned and the inverse is kept.
func invertScatter(scatter *mat.Dense) (*mat.Dense, error) {
	var inverse mat.Dense
	err := inverse.Inverse(scatter)
	if !exactlySingular(err) {
		return &inverse, nil
	}

	ridge := mat.DenseCopyOf(scatter)
	eps := epsilon * mat.Trace(scatter)
	for i := 0; i < 6; i++ {
		ridge.Set(i, i, ridge.At(i, i)+eps)
	}
	if err := inverse.Inverse(ridge); exactlySingular(err) {
		return nil, fmt.Errorf("%w: singular scatter matrix", ErrDegenerate)
	}
	return &inverse, nil
}

func exactlySingular(err error) bool {
	if err == nil {
		return false
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		return math.IsInf(float64(cond), 1)
	}
	return true
}

// constrainedEigenvector returns the conic for the largest eigenvalue of m
// whose eigenvector satisfies the ellipse constraint, scaled so that
// 4AC - B² = 1.
func (s Solver) constrainedEigenvector(m matrix6) (Conic, error) {
	eigs, err := s.eigenvalues(m)
	if err != nil {
		return Conic{}, err
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(eigs)))

	largest := 0.0
	for _, l := range eigs {
		largest = math.Max(largest, math.Abs(l))
	}

	var refineErr error
	for _, lambda := range eigs {
		if math.Abs(lambda) <= negligibleEigenvalue*largest {
			continue
		}
		v, err := s.eigenvector(m, lambda)
		if err != nil {
			refineErr = err
			continue
		}

		vec := mat.NewVecDense(6, v[:])
		f := mat.Inner(vec, constraint, vec)
		if f <= minConstraint {
			continue
		}
		vec.ScaleVec(1/math.Sqrt(f), vec)

		var c Conic
		copy(c[:], vec.RawVector().Data)
		return c, nil
	}

	if errors.Is(refineErr, ErrNoConvergence) {
		return Conic{}, refineErr
	}
	return Conic{}, fmt.Errorf("%w: no eigenvector satisfies the ellipse constraint", ErrDegenerate)
}
