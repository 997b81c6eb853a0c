package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/imaging"
	"github.com/ironsheep/particle-detect/internal/logging"
	"github.com/ironsheep/particle-detect/internal/pipeline"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

type options struct {
	file        string
	configPath  string
	outFile     string
	outImage    string
	grid        int
	verbose     verbosity
	veryVerbose bool
	sampleMult  float64
	multithread bool
	workers     int
	seed        uint64
	contours    bool
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("particle-detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.file, "file", "", "pathname of the image to analyse (required)")
	fs.StringVar(&o.configPath, "config", "", "pathname of the YAML fit configuration (required)")
	fs.StringVar(&o.outFile, "outfile", "", "write the JSON result here instead of stdout")
	fs.StringVar(&o.outImage, "outimg", "", "write a PNG with the fitted ellipses drawn over the image")
	fs.IntVar(&o.grid, "grid", 0, "rule a labelled coordinate grid with this spacing on the -outimg overlay")
	fs.Var(&o.verbose, "v", "more logging, repeat for trace")
	fs.BoolVar(&o.veryVerbose, "vv", false, "trace logging")
	fs.Float64Var(&o.sampleMult, "samplemult", 0, "override sample_multiplier")
	fs.BoolVar(&o.multithread, "multithread", false, "fit contours on every CPU")
	fs.IntVar(&o.workers, "workers", 0, "number of contours fitted at once (implies -multithread)")
	fs.Uint64Var(&o.seed, "seed", 0, "random seed, for reproducible runs")
	fs.BoolVar(&o.contours, "contours", false, "include per-contour statistics in the result")
	fs.BoolVar(&o.version, "version", false, "print version information")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "particle-detect - find elliptical particles in an image")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Usage: particle-detect -file image.png -config fit.yaml [options]")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Environment variables:")
		fmt.Fprintf(stderr, "  %s=debug    Set the log level\n", logging.EnvLevel)
		fmt.Fprintf(stderr, "  %s=path     Also log to a rotating file\n", logging.EnvFile)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version {
		return &o, nil
	}
	if o.file == "" || o.configPath == "" {
		fs.Usage()
		return nil, errors.New("-file and -config are required")
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &o, nil
}

// workerCount maps -multithread and -workers onto an ExtractAll limit.
func (o *options) workerCount() int {
	switch {
	case o.workers > 0:
		return o.workers
	case o.multithread:
		return runtime.NumCPU()
	default:
		return 1
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "particle-detect: %v\n", err)
		return 1
	}
	if o.version {
		fmt.Fprintf(stdout, "particle-detect %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return 0
	}

	level := int(o.verbose)
	if o.veryVerbose {
		level = 2
	}
	log, err := logging.New(logging.Options{Verbosity: level, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "particle-detect: %v\n", err)
		return 1
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		log.WithError(err).Error("cannot load configuration")
		return 1
	}
	if o.sampleMult != 0 {
		cfg.SampleMultiplier = o.sampleMult
	}

	res, img, err := pipeline.Run(ctx, imaging.NewImageCache(), o.file, cfg, pipeline.Options{
		Workers:      o.workerCount(),
		Seed:         o.seed,
		WithContours: o.contours,
		Logger:       log,
	})
	if err != nil {
		log.WithError(err).Error("detection failed")
		return 1
	}

	if o.outFile != "" {
		err = res.WriteFile(o.outFile)
	} else {
		err = res.Encode(stdout)
	}
	if err != nil {
		log.WithError(err).Error("cannot write result")
		return 1
	}

	if o.outImage != "" {
		overlay, err := imaging.Overlay(img, res.Groups(), imaging.OverlayOptions{
			Labels:          true,
			GridSpacing:     o.grid,
			GridCoordinates: true,
		})
		if err == nil {
			err = imaging.SavePNG(o.outImage, overlay)
		}
		if err != nil {
			log.WithError(err).Error("cannot write overlay")
			return 1
		}
	}
	return 0
}
