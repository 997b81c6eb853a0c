package detection

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

const (
	// outlierRate is the assumed fraction of contour points off any one
	// ellipse.
	outlierRate = 0.6

	// minimalSample is the number of points that determine a conic.
	minimalSample = 5

	// seedPairs is the number of seed pairs per sample, the smallest count
	// giving at least minimalSample seeds.
	seedPairs = (minimalSample + 1) / 2

	// Seed pairs are accepted strictly between these multiples of the
	// sampling radius.
	minPairSpan = 2
	maxPairSpan = 10
)

// ErrSampleExhausted reports that no seed pair satisfying the distance
// window was drawn within the retry budget. The sample is skipped.
var ErrSampleExhausted = errors.New("detection: no admissible seed pair within retry budget")

// SampleCount returns the number of samples drawn per round for the given
// safety multiplier. It is never below 1.
func SampleCount(multiplier float64) int {
	p := 1 - math.Pow(outlierRate, minimalSample)
	inlierSample := math.Pow(1-outlierRate, minimalSample)
	k := math.Ceil(math.Log2(1-p) / math.Log2(1-inlierSample) * multiplier)
	if !(k >= 1) {
		return 1
	}
	return int(k)
}

// sampler draws consensus samples from a point set.
type sampler struct {
	rng     *rand.Rand
	radius  float64
	retries int
}

// draw returns the union of the radius neighbourhoods of seedPairs seed
// pairs. Points near more than one seed appear more than once, which only
// weights them in the fit.
func (s sampler) draw(points []geometry.Point) ([]geometry.Point, error) {
	sample := make([]geometry.Point, 0, 64)
	for pair := 0; pair < seedPairs; pair++ {
		p1, p2, err := s.pair(points)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if p.Distance(p1) <= s.radius || p.Distance(p2) <= s.radius {
				sample = append(sample, p)
			}
		}
	}
	return sample, nil
}

// pair draws two points whose distance lies in the open interval
// (minPairSpan·radius, maxPairSpan·radius).
func (s sampler) pair(points []geometry.Point) (geometry.Point, geometry.Point, error) {
	lo, hi := minPairSpan*s.radius, maxPairSpan*s.radius
	for try := 0; try < s.retries; try++ {
		p1 := points[s.rng.IntN(len(points))]
		p2 := points[s.rng.IntN(len(points))]
		if d := p1.Distance(p2); d > lo && d < hi {
			return p1, p2, nil
		}
	}
	return geometry.Point{}, geometry.Point{}, ErrSampleExhausted
}
