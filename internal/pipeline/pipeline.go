// Package pipeline runs particle detection on an image file from end to
// end. It is shared by the CLI and the MCP server.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/detection"
	"github.com/ironsheep/particle-detect/internal/imaging"
	"github.com/ironsheep/particle-detect/internal/logging"
	"github.com/ironsheep/particle-detect/internal/report"
)

// Options controls Run.
type Options struct {
	// Workers bounds concurrent contours. Zero or less uses every CPU.
	Workers int

	// Seed makes a run reproducible.
	Seed uint64

	// WithContours keeps per-contour statistics in the result.
	WithContours bool

	Logger logrus.FieldLogger
}

// Run loads path through cache, extracts its contours with cfg and fits
// ellipses to each of them. It returns the result document and the decoded
// image, which callers reuse for overlays.
//
// cfg is validated first. A cancelled ctx returns ctx.Err() and no result.
func Run(ctx context.Context, cache *imaging.ImageCache, path string, cfg config.FitConfig, opts Options) (*report.Result, image.Image, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	img, err := cache.Load(path)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()

	contours := imaging.Contours(img, cfg)
	log.WithFields(logrus.Fields{
		"image":    path,
		"contours": len(contours),
	}).Debug("contours extracted")

	results, err := detection.ExtractAll(ctx, contours, cfg, detection.Options{
		Workers: opts.Workers,
		Seed:    opts.Seed,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("detection aborted: %w", err)
	}

	b := img.Bounds()
	res := report.New(results, report.Options{
		Image:        path,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Seed:         opts.Seed,
		Elapsed:      time.Since(start),
		WithContours: opts.WithContours,
	})
	log.WithFields(logrus.Fields{
		"run_id":    res.RunID,
		"image":     path,
		"contours":  res.ContourCount,
		"particles": res.ParticleCount,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("detection finished")
	return res, img, nil
}
