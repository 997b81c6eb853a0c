package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration parse or validation failure.
var ErrInvalid = errors.New("config: invalid fit configuration")

// Distance methods accepted by FitConfig.DistanceMethod.
const (
	DistanceFast  = "fast"
	DistanceExact = "exact"
)

// FitConfig is the read-only parameter record shared by every contour fit
// of a run.
//
// Ranges are inclusive. Length and width are full axis lengths in pixels
// and the aspect ratio is length/width, so it is never below 1.
type FitConfig struct {
	// Threshold binarises the image: pixels brighter than it are background.
	Threshold uint8 `yaml:"threshold" json:"threshold"`

	// MinFitness is the smallest inliers-per-perimeter score a candidate
	// needs to be accepted.
	MinFitness float64 `yaml:"min_fitness" json:"min_fitness" validate:"gt=0"`

	// DistThreshold is the inlier distance from a candidate perimeter.
	DistThreshold float64 `yaml:"dist_threshold" json:"dist_threshold" validate:"gt=0"`

	// RadiusThreshold is the neighbourhood radius around sampled seeds.
	// Seed pairs must lie between 2 and 10 radii apart.
	RadiusThreshold float64 `yaml:"radius_threshold" json:"radius_threshold" validate:"gt=0"`

	MinContourPoints int `yaml:"min_contour_points" json:"min_contour_points" validate:"gte=0"`
	MaxContourPoints int `yaml:"max_contour_points" json:"max_contour_points" validate:"gtefield=MinContourPoints"`

	MinAspectRatio float64 `yaml:"min_aspect_ratio" json:"min_aspect_ratio" validate:"gte=1"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio" validate:"gtefield=MinAspectRatio"`

	MinLength float64 `yaml:"min_length" json:"min_length" validate:"gte=0"`
	MaxLength float64 `yaml:"max_length" json:"max_length" validate:"gtefield=MinLength"`

	MinWidth float64 `yaml:"min_width" json:"min_width" validate:"gte=0"`
	MaxWidth float64 `yaml:"max_width" json:"max_width" validate:"gtefield=MinWidth"`

	// RotationCenterX and RotationCenterY locate the centre that the
	// detection radius is measured from.
	RotationCenterX float64 `yaml:"rotation_center_x" json:"rotation_center_x"`
	RotationCenterY float64 `yaml:"rotation_center_y" json:"rotation_center_y"`

	DetectRadiusMin float64 `yaml:"detect_radius_min" json:"detect_radius_min" validate:"gte=0"`
	DetectRadiusMax float64 `yaml:"detect_radius_max" json:"detect_radius_max" validate:"gtefield=DetectRadiusMin"`

	// SampleMultiplier scales the consensus sample count. 1 is the bare
	// probabilistic estimate.
	SampleMultiplier float64 `yaml:"sample_multiplier" json:"sample_multiplier" validate:"gt=0"`

	// PairRetryLimit bounds the draws spent looking for one seed pair.
	PairRetryLimit int `yaml:"pair_retry_limit" json:"pair_retry_limit" validate:"gte=1"`

	FastDistanceIterations int    `yaml:"fast_distance_iterations" json:"fast_distance_iterations" validate:"gte=3,lte=10"`
	DistanceMethod         string `yaml:"distance_method" json:"distance_method" validate:"oneof=fast exact"`

	// BlurSigma applies a Gaussian blur before thresholding when positive.
	BlurSigma float64 `yaml:"blur_sigma" json:"blur_sigma" validate:"gte=0"`
}

// Default returns a permissive configuration. Files only need to set the
// keys they care about.
func Default() FitConfig {
	return FitConfig{
		Threshold:              55,
		MinFitness:             0.3,
		DistThreshold:          2,
		RadiusThreshold:        6,
		MinContourPoints:       30,
		MaxContourPoints:       100000,
		MinAspectRatio:         1,
		MaxAspectRatio:         100,
		MinLength:              0,
		MaxLength:              1e6,
		MinWidth:               0,
		MaxWidth:               1e6,
		DetectRadiusMin:        0,
		DetectRadiusMax:        1e9,
		SampleMultiplier:       2,
		PairRetryLimit:         1000,
		FastDistanceIterations: 5,
		DistanceMethod:         DistanceFast,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and cross-field range. The error wraps
// ErrInvalid and names the offending YAML keys.
func (c FitConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), yamlName(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// yamlName maps a Go field name used in a cross-field tag to its YAML key.
func yamlName(field string) string {
	f, ok := reflect.TypeOf(FitConfig{}).FieldByName(field)
	if !ok {
		return field
	}
	return strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func Parse(r io.Reader) (FitConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FitConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return FitConfig{}, err
	}
	return cfg, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte) (FitConfig, error) {
	return Parse(bytes.NewReader(data))
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (FitConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return FitConfig{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return FitConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
