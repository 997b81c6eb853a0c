package conic

import (
	"fmt"
	"math"
)

const epsilon = 0x1p-52

// matrix6 is a dense 6×6 matrix in row-major order. The eigen routines work
// on fixed arrays so each fit stays free of heap traffic.
type matrix6 [6][6]float64

// hessenberg reduces a to upper Hessenberg form with Householder
// reflections. The result is similar to a and has the same eigenvalues.
func hessenberg(a matrix6) matrix6 {
	h := a
	const n = len(h)
	for k := 0; k < n-2; k++ {
		var v [n]float64
		m := n - k - 1
		alpha := 0.0
		for i := 0; i < m; i++ {
			v[i] = h[k+1+i][k]
			alpha += v[i] * v[i]
		}
		alpha = math.Sqrt(alpha)
		if alpha == 0 {
			continue
		}
		if v[0] > 0 {
			alpha = -alpha
		}
		v[0] -= alpha

		vn := 0.0
		for i := 0; i < m; i++ {
			vn += v[i] * v[i]
		}
		vn = math.Sqrt(vn)
		if vn == 0 {
			continue
		}
		for i := 0; i < m; i++ {
			v[i] /= vn
		}

		// h = P·h·P with P = I - 2vvᵀ acting on rows and columns k+1..n-1.
		for j := 0; j < n; j++ {
			s := 0.0
			for i := 0; i < m; i++ {
				s += v[i] * h[k+1+i][j]
			}
			for i := 0; i < m; i++ {
				h[k+1+i][j] -= 2 * v[i] * s
			}
		}
		for i := 0; i < n; i++ {
			s := 0.0
			for j := 0; j < m; j++ {
				s += h[i][k+1+j] * v[j]
			}
			for j := 0; j < m; j++ {
				h[i][k+1+j] -= 2 * s * v[j]
			}
		}
	}
	return h
}

// eig2 returns the eigenvalues of [[a b] [c d]]. A complex pair is reported
// by its common real part twice.
func eig2(a, b, c, d float64) (float64, float64, bool) {
	tr := a + d
	det := a*d - b*c
	disc := tr*tr/4 - det
	if disc < 0 {
		return tr / 2, tr / 2, false
	}
	s := math.Sqrt(disc)
	return tr/2 + s, tr/2 - s, true
}

// eigenvalues returns the eigenvalues of a using the Wilkinson-shifted QR
// algorithm on its Hessenberg form, deflating one or two rows at a time.
//
// Complex pairs are reported by their real part. The conic fit only accepts
// eigenvectors that pass the ellipse constraint, so a spurious real part is
// rejected there.
func (s Solver) eigenvalues(a matrix6) ([]float64, error) {
	h := hessenberg(a)
	const n = len(h)

	norm := 0.0
	for i := range h {
		for j := range h[i] {
			norm += h[i][j] * h[i][j]
		}
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return make([]float64, n), nil
	}

	eigs := make([]float64, 0, n)
	hi, its := n-1, 0
	for hi >= 0 {
		if hi == 0 {
			eigs = append(eigs, h[0][0])
			break
		}

		// Find the start of the unreduced block ending at hi.
		l := hi
		for ; l > 0; l-- {
			sub := math.Abs(h[l][l-1])
			scale := math.Abs(h[l-1][l-1]) + math.Abs(h[l][l])
			if sub <= s.Tolerance*scale || sub <= epsilon*norm {
				break
			}
		}

		switch l {
		case hi:
			eigs = append(eigs, h[hi][hi])
			hi--
			its = 0
			continue
		case hi - 1:
			e1, e2, _ := eig2(h[hi-1][hi-1], h[hi-1][hi], h[hi][hi-1], h[hi][hi])
			eigs = append(eigs, e1, e2)
			hi -= 2
			its = 0
			continue
		}

		its++
		if its > s.MaxQRIterations {
			return nil, fmt.Errorf("%w: QR stalled on row %d after %d iterations", ErrNoConvergence, hi, s.MaxQRIterations)
		}

		// Wilkinson shift: the eigenvalue of the trailing 2×2 block closest
		// to the last diagonal entry, nudged every 11th step to break cycles.
		e1, e2, isReal := eig2(h[hi-1][hi-1], h[hi-1][hi], h[hi][hi-1], h[hi][hi])
		mu := h[hi][hi]
		if isReal {
			mu = e2
			if math.Abs(e1-h[hi][hi]) < math.Abs(e2-h[hi][hi]) {
				mu = e1
			}
		}
		if its%11 == 0 {
			mu += math.Abs(h[hi][hi-1])
		}

		qrStep(&h, l, hi, mu)
	}
	return eigs, nil
}

// qrStep performs one shifted QR step, H - μI = QR then H = RQ + μI, on the
// active block h[l..hi][l..hi] using Givens rotations.
func qrStep(h *matrix6, l, hi int, mu float64) {
	for i := l; i <= hi; i++ {
		h[i][i] -= mu
	}

	var cs, sn [len(h)]float64
	for k := l; k < hi; k++ {
		x, y := h[k][k], h[k+1][k]
		r := math.Hypot(x, y)
		c, s := 1.0, 0.0
		if r != 0 {
			c, s = x/r, y/r
		}
		cs[k], sn[k] = c, s
		for j := k; j <= hi; j++ {
			t1, t2 := h[k][j], h[k+1][j]
			h[k][j] = c*t1 + s*t2
			h[k+1][j] = -s*t1 + c*t2
		}
	}
	for k := l; k < hi; k++ {
		c, s := cs[k], sn[k]
		for i := l; i <= min(k+2, hi); i++ {
			t1, t2 := h[i][k], h[i][k+1]
			h[i][k] = c*t1 + s*t2
			h[i][k+1] = -s*t1 + c*t2
		}
	}

	for i := l; i <= hi; i++ {
		h[i][i] += mu
	}
}

// eigenvector refines the eigenvector of a for eigenvalue lambda by inverse
// iteration, normalising at every step. It stops once successive iterates
// agree to within the refinement tolerance, up to sign.
func (s Solver) eigenvector(a matrix6, lambda float64) ([6]float64, error) {
	shifted := a
	for i := range shifted {
		shifted[i][i] -= lambda
	}

	var v [6]float64
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(len(v)))
	}

	for it := 0; it < s.MaxRefineIterations; it++ {
		w := solve6(shifted, v)
		n := 0.0
		for _, x := range w {
			n += x * x
		}
		n = math.Sqrt(n)
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return v, fmt.Errorf("%w: inverse iteration produced a %v norm", ErrDegenerate, n)
		}

		dot := 0.0
		for i := range w {
			w[i] /= n
			dot += w[i] * v[i]
		}
		v = w
		if 1-math.Abs(dot) < refineTolerance {
			return v, nil
		}
	}
	return v, fmt.Errorf("%w: inverse iteration for eigenvalue %g", ErrNoConvergence, lambda)
}

// solve6 solves a·x = b by Gaussian elimination with partial pivoting.
// Pivots below machine precision are floored, since a is deliberately
// close to singular during inverse iteration.
func solve6(a matrix6, b [6]float64) [6]float64 {
	const n = len(a)
	norm := 0.0
	for i := range a {
		for j := range a[i] {
			norm = math.Max(norm, math.Abs(a[i][j]))
		}
	}
	floor := epsilon * norm
	if floor == 0 {
		floor = epsilon
	}

	for c := 0; c < n; c++ {
		p := c
		for r := c + 1; r < n; r++ {
			if math.Abs(a[r][c]) > math.Abs(a[p][c]) {
				p = r
			}
		}
		a[c], a[p] = a[p], a[c]
		b[c], b[p] = b[p], b[c]

		if math.Abs(a[c][c]) < floor {
			if a[c][c] >= 0 {
				a[c][c] = floor
			} else {
				a[c][c] = -floor
			}
		}
		for r := c + 1; r < n; r++ {
			f := a[r][c] / a[c][c]
			for j := c; j < n; j++ {
				a[r][j] -= f * a[c][j]
			}
			b[r] -= f * b[c]
		}
	}

	var x [6]float64
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x
}
