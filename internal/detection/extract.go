package detection

import (
	"context"
	"errors"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/conic"
	"github.com/ironsheep/particle-detect/internal/geometry"
)

// MinRemaining is the point count below which a contour is not searched
// any further.
const MinRemaining = 30

// Stats counts what happened while extracting one contour.
type Stats struct {
	Points         int  `json:"points"`
	Rounds         int  `json:"rounds"`
	Samples        int  `json:"samples"`
	SkippedSamples int  `json:"skipped_samples"`
	FailedFits     int  `json:"failed_fits"`
	NoConvergence  int  `json:"no_convergence"`
	Rejected       int  `json:"rejected"`
	Candidates     int  `json:"candidates"`
	Remaining      int  `json:"remaining"`
	OutOfRange     bool `json:"out_of_range,omitempty"`
}

// Extractor runs the multi-ellipse RANSAC loop on one contour at a time.
//
// An Extractor owns its random generator and is not safe for concurrent
// use. The configuration is only read.
type Extractor struct {
	cfg     config.FitConfig
	solver  conic.Solver
	metric  geometry.Metric
	sampler sampler
	samples int
}

// NewExtractor returns an Extractor drawing from rng.
func NewExtractor(cfg config.FitConfig, rng *rand.Rand) *Extractor {
	retries := cfg.PairRetryLimit
	if retries < 1 {
		retries = config.Default().PairRetryLimit
	}
	mult := cfg.SampleMultiplier
	if mult <= 0 {
		mult = config.Default().SampleMultiplier
	}
	return &Extractor{
		cfg:     cfg,
		solver:  conic.DefaultSolver(),
		metric:  MetricFor(cfg),
		sampler: sampler{rng: rng, radius: cfg.RadiusThreshold, retries: retries},
		samples: SampleCount(mult),
	}
}

// MetricFor returns the perimeter distance selected by cfg.
func MetricFor(cfg config.FitConfig) geometry.Metric {
	if cfg.DistanceMethod == config.DistanceExact {
		return geometry.ExactMetric()
	}
	iterations := cfg.FastDistanceIterations
	if iterations < 1 {
		iterations = geometry.DefaultFastIterations
	}
	return geometry.FastMetric(iterations)
}

// SamplesPerRound returns K for this extractor.
func (x *Extractor) SamplesPerRound() int {
	return x.samples
}

// Extract returns the ellipses found in contour, in the order they were
// selected. The contour is not modified.
func (x *Extractor) Extract(contour []geometry.Point) []geometry.Ellipse {
	found, _, _ := x.ExtractContext(context.Background(), contour)
	return found
}

// ExtractContext is Extract with cancellation checked between rounds. On
// cancellation it returns the ellipses selected so far with ctx.Err().
func (x *Extractor) ExtractContext(ctx context.Context, contour []geometry.Point) ([]geometry.Ellipse, Stats, error) {
	stats := Stats{Points: len(contour), Remaining: len(contour)}
	if !InDetectionRange(x.cfg, contour) {
		stats.OutOfRange = true
		return nil, stats, nil
	}

	var found []geometry.Ellipse
	remaining := append([]geometry.Point(nil), contour...)
	prev := -1
	for len(remaining) >= MinRemaining && len(remaining) != prev {
		if err := ctx.Err(); err != nil {
			stats.Remaining = len(remaining)
			return found, stats, err
		}
		prev = len(remaining)
		stats.Rounds++

		best, ok := x.round(remaining, &stats)
		if !ok {
			break
		}
		found = append(found, best)
		remaining = x.peel(remaining, best)
	}
	stats.Remaining = len(remaining)
	return found, stats, nil
}

// round samples, fits, filters and scores candidates and returns the best
// one if it reaches the minimum fitness.
func (x *Extractor) round(points []geometry.Point, stats *Stats) (geometry.Ellipse, bool) {
	candidates := make([]geometry.Ellipse, 0, x.samples)
	for k := 0; k < x.samples; k++ {
		stats.Samples++
		sample, err := x.sampler.draw(points)
		if err != nil {
			stats.SkippedSamples++
			continue
		}
		e, err := x.solver.Fit(sample)
		if err != nil {
			stats.FailedFits++
			if errors.Is(err, conic.ErrNoConvergence) {
				stats.NoConvergence++
			}
			continue
		}
		if !Accepts(x.cfg, e) {
			stats.Rejected++
			continue
		}
		candidates = append(candidates, e)
	}
	stats.Candidates += len(candidates)
	if len(candidates) == 0 {
		return geometry.Ellipse{}, false
	}

	fitness := make([]float64, len(candidates))
	for i, e := range candidates {
		fitness[i] = x.Fitness(e, points)
	}
	best := floats.MaxIdx(fitness)
	if fitness[best] < x.cfg.MinFitness {
		return geometry.Ellipse{}, false
	}
	return candidates[best], true
}

// Fitness returns the number of points within the inlier distance of the
// perimeter of e divided by e.Perimeter().
func (x *Extractor) Fitness(e geometry.Ellipse, points []geometry.Point) float64 {
	inliers := 0
	for _, p := range points {
		if x.metric(e, p) <= x.cfg.DistThreshold {
			inliers++
		}
	}
	return float64(inliers) / e.Perimeter()
}

// peel returns a new slice holding the points farther than the inlier
// distance from e. Scoring and peeling share the metric, so every point
// that counted towards the fitness of e is removed.
func (x *Extractor) peel(points []geometry.Point, e geometry.Ellipse) []geometry.Point {
	kept := make([]geometry.Point, 0, len(points))
	for _, p := range points {
		if x.metric(e, p) > x.cfg.DistThreshold {
			kept = append(kept, p)
		}
	}
	return kept
}
