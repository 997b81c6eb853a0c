// Package report assembles and serializes the result document of a
// detection run.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/ironsheep/particle-detect/internal/detection"
	"github.com/ironsheep/particle-detect/internal/geometry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Particle is one fitted ellipse with its source contour.
type Particle struct {
	Contour int     `json:"contour"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	A       float64 `json:"a"`
	B       float64 `json:"b"`
	Theta   float64 `json:"theta"`
	Length  float64 `json:"length"`
	Width   float64 `json:"width"`
	Aspect  float64 `json:"aspect"`
}

// NewParticle describes e found in contour.
func NewParticle(contour int, e geometry.Ellipse) Particle {
	return Particle{
		Contour: contour,
		X:       e.X,
		Y:       e.Y,
		A:       e.A,
		B:       e.B,
		Theta:   e.Theta,
		Length:  e.Length(),
		Width:   e.Width(),
		Aspect:  e.Aspect(),
	}
}

// Ellipse returns the geometric ellipse of p.
func (p Particle) Ellipse() geometry.Ellipse {
	return geometry.NewEllipse(p.X, p.Y, p.A, p.B, p.Theta)
}

// Result is the document written for one image.
type Result struct {
	RunID         string     `json:"run_id"`
	Image         string     `json:"image"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Seed          uint64     `json:"seed"`
	ElapsedMS     int64      `json:"elapsed_ms"`
	ContourCount  int        `json:"contour_count"`
	ParticleCount int        `json:"particle_count"`
	Particles     []Particle `json:"particles"`

	// Contours carries per-contour statistics when requested.
	Contours []detection.ContourResult `json:"contours,omitempty"`
}

// Options fills the descriptive fields of a Result.
type Options struct {
	Image         string
	Width, Height int
	Seed          uint64
	Elapsed       time.Duration

	// WithContours keeps the per-contour results in the document.
	WithContours bool
}

// New builds a Result from the per-contour output of detection.ExtractAll.
// Particles are listed contour by contour in selection order.
func New(results []detection.ContourResult, opts Options) *Result {
	r := &Result{
		RunID:        NewRunID(),
		Image:        opts.Image,
		Width:        opts.Width,
		Height:       opts.Height,
		Seed:         opts.Seed,
		ElapsedMS:    opts.Elapsed.Milliseconds(),
		ContourCount: len(results),
		Particles:    []Particle{},
	}
	for _, cr := range results {
		for _, e := range cr.Ellipses {
			r.Particles = append(r.Particles, NewParticle(cr.Index, e))
		}
	}
	r.ParticleCount = len(r.Particles)
	if opts.WithContours {
		r.Contours = results
	}
	return r
}

// Groups returns the particle ellipses indexed by contour, the layout
// expected by imaging.Overlay.
func (r *Result) Groups() [][]geometry.Ellipse {
	groups := make([][]geometry.Ellipse, r.ContourCount)
	for _, p := range r.Particles {
		if p.Contour >= 0 && p.Contour < len(groups) {
			groups[p.Contour] = append(groups[p.Contour], p.Ellipse())
		}
	}
	return groups
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Encode writes r as indented JSON.
func (r *Result) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// WriteFile writes r to path.
func (r *Result) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close result file: %w", err)
	}
	return nil
}

// Marshal returns the compact JSON encoding of v with the same settings as
// Encode.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Read decodes a Result.
func Read(r io.Reader) (*Result, error) {
	var res Result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &res, nil
}
