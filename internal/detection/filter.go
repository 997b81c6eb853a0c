package detection

import (
	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/geometry"
)

// Accepts reports whether e satisfies the configured shape ranges. Length is
// 2·max(a, b), width is 2·min(a, b) and aspect is length/width. All bounds
// are inclusive.
func Accepts(cfg config.FitConfig, e geometry.Ellipse) bool {
	length, width := e.Length(), e.Width()
	aspect := length / width
	return within(length, cfg.MinLength, cfg.MaxLength) &&
		within(width, cfg.MinWidth, cfg.MaxWidth) &&
		within(aspect, cfg.MinAspectRatio, cfg.MaxAspectRatio)
}

// InDetectionRange reports whether the centroid of contour lies within the
// configured annulus around the rotation centre.
func InDetectionRange(cfg config.FitConfig, contour []geometry.Point) bool {
	center := geometry.Pt(cfg.RotationCenterX, cfg.RotationCenterY)
	r := geometry.Centroid(contour).Distance(center)
	return within(r, cfg.DetectRadiusMin, cfg.DetectRadiusMax)
}

func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
