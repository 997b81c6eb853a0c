// Package detection finds elliptical particles in contour point clouds.
//
// Each contour is handled by an Extractor, a domain-specific RANSAC loop
// that can return several ellipses per contour, for example two touching
// particles that were traced as one boundary.
//
// # Algorithm Overview
//
// For one contour:
//
//  1. Pre-filter: if the contour centroid lies outside the configured
//     detection annulus around the rotation centre, return nothing.
//  2. Sample: draw K samples. Each sample is the neighbourhood of three seed
//     pairs, where a pair's points lie between 2 and 10 sampling radii apart.
//  3. Fit: run the Halíř–Flusser solver on every sample and drop failures.
//  4. Filter: keep candidates whose length, width and aspect ratio fall
//     inside the configured inclusive ranges.
//  5. Score: fitness is the number of remaining points within the inlier
//     distance of the candidate perimeter divided by its perimeter.
//  6. Select the best candidate if it reaches the minimum fitness, remove
//     its inliers and repeat while at least 30 points remain and the last
//     round removed something.
//
// # Sample Count
//
// K assumes 60% outliers and 5-point minimal samples and asks for the
// matching success probability:
//
//	K = ceil(log2(1 - p) / log2(1 - 0.4⁵) · multiplier),  p = 1 - 0.6⁵
//
// A multiplier of 2 gives 497 samples per round.
//
// # Concurrency
//
// ExtractAll fans contours out over a bounded errgroup. Each contour gets
// its own PCG generator seeded from the run seed and the contour index, so
// results are reproducible regardless of scheduling and are returned in
// input order.
//
// # Failure Handling
//
// Degenerate or non-converging fits, rejected candidates and seed pairs that
// cannot be drawn within the retry budget only shrink the candidate pool.
// They are counted in Stats and never returned as errors. A contour that
// yields no ellipse is a normal result.
package detection
