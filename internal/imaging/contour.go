package imaging

import (
	"image"
	"image/color"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/geometry"
)

// BoundaryMask keeps the outline of every dark region of a binarized image
// and clears its interior.
//
// Each row is scanned from the left and from the right and each column
// from the top and from the bottom. An Ink pixel is kept when it is the
// first Ink pixel of a run in at least one of those four scans. Everything
// else becomes Background.
func BoundaryMask(bin *image.Gray) *image.Gray {
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = Background
	}
	keep := func(x, y int) { out.SetGray(x, y, color.Gray{Y: Ink}) }
	ink := func(x, y int) bool { return isInk(bin, b.Min.X+x, b.Min.Y+y) }

	for y := 0; y < h; y++ {
		inner := false
		for x := 0; x < w; x++ {
			inner = scanStep(ink(x, y), inner, func() { keep(x, y) })
		}
		inner = false
		for x := w - 1; x >= 0; x-- {
			inner = scanStep(ink(x, y), inner, func() { keep(x, y) })
		}
	}
	for x := 0; x < w; x++ {
		inner := false
		for y := 0; y < h; y++ {
			inner = scanStep(ink(x, y), inner, func() { keep(x, y) })
		}
		inner = false
		for y := h - 1; y >= 0; y-- {
			inner = scanStep(ink(x, y), inner, func() { keep(x, y) })
		}
	}
	return out
}

// scanStep advances one pixel of a run scan and calls mark on the first
// Ink pixel of a run. It returns whether the scan is now inside a run.
func scanStep(ink, inner bool, mark func()) bool {
	if !ink {
		return false
	}
	if !inner {
		mark()
	}
	return true
}

// FindContours groups the Ink pixels of mask into 8-connected contours and
// returns those whose pixel count lies in [minPoints, maxPoints]. Contours
// come out in raster order of their first pixel. A non-positive maxPoints
// means no upper limit.
func FindContours(mask *image.Gray, minPoints, maxPoints int) [][]geometry.Point {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)

	var contours [][]geometry.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !isInk(mask, b.Min.X+x, b.Min.Y+y) {
				continue
			}
			contour := floodFill(mask, visited, x, y)
			if len(contour) < minPoints || (maxPoints > 0 && len(contour) > maxPoints) {
				continue
			}
			contours = append(contours, contour)
		}
	}
	return contours
}

// floodFill collects the 8-connected Ink region containing (startX, startY).
// It uses an explicit stack so large particles cannot overflow the
// goroutine stack.
func floodFill(mask *image.Gray, visited []bool, startX, startY int) []geometry.Point {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	stack := []image.Point{{X: startX, Y: startY}}
	var contour []geometry.Point

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		if visited[p.Y*w+p.X] || !isInk(mask, b.Min.X+p.X, b.Min.Y+p.Y) {
			continue
		}
		visited[p.Y*w+p.X] = true
		contour = append(contour, geometry.Pt(float64(p.X), float64(p.Y)))

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return contour
}

// Contours runs the full front end on img: optional blur, threshold,
// boundary mask and grouping, filtered by the configured contour size.
func Contours(img image.Image, cfg config.FitConfig) [][]geometry.Point {
	mask := BoundaryMask(Binarize(img, cfg.Threshold, cfg.BlurSigma))
	return FindContours(mask, cfg.MinContourPoints, cfg.MaxContourPoints)
}
