package detection

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/geometry"
	"github.com/ironsheep/particle-detect/internal/logging"
)

// Options controls the fan-out of ExtractAll.
type Options struct {
	// Workers bounds concurrent contours. Zero or less means GOMAXPROCS.
	Workers int

	// Seed is the run seed. Contour i draws from PCG(Seed, i).
	Seed uint64

	// Logger receives one debug entry per contour. Nil discards.
	Logger logrus.FieldLogger
}

// ContourResult is the outcome for the contour at Index.
type ContourResult struct {
	Index    int                `json:"contour"`
	Ellipses []geometry.Ellipse `json:"ellipses"`
	Stats    Stats              `json:"stats"`
}

// ExtractAll runs an Extractor per contour in parallel and returns the
// results in input order.
//
// The only error is ctx.Err(), returned once cancellation stops the
// contours still running. Results for contours that finished are kept.
func ExtractAll(ctx context.Context, contours [][]geometry.Point, cfg config.FitConfig, opts Options) ([]ContourResult, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]ContourResult, len(contours))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, contour := range contours {
		g.Go(func() error {
			start := time.Now()
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			found, stats, err := NewExtractor(cfg, rng).ExtractContext(ctx, contour)
			results[i] = ContourResult{Index: i, Ellipses: found, Stats: stats}
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"contour":         i,
				"points":          stats.Points,
				"ellipses":        len(found),
				"rounds":          stats.Rounds,
				"candidates":      stats.Candidates,
				"failed_fits":     stats.FailedFits,
				"skipped_samples": stats.SkippedSamples,
				"out_of_range":    stats.OutOfRange,
				"elapsed":         time.Since(start).Round(time.Millisecond),
			}).Debug("contour extracted")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
