package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Binary pixel values. Particles are dark on a light background.
const (
	Ink        uint8 = 0
	Background uint8 = 255
)

// Binarize converts img to a two-level gray image. Pixels whose luma is
// above threshold become Background and all others Ink. A positive
// blurSigma smooths the image first, which suppresses single-pixel noise
// on particle edges.
//
// The result always has its origin at (0, 0).
func Binarize(img image.Image, threshold uint8, blurSigma float64) *image.Gray {
	if blurSigma > 0 {
		img = imaging.Blur(img, blurSigma)
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := Ink
			if luma(img, b.Min.X+x, b.Min.Y+y) > threshold {
				v = Background
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

// luma returns the BT.601 gray value of the pixel at (x, y).
func luma(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

// isInk reports whether the pixel at (x, y) of a binarized image is dark.
func isInk(g *image.Gray, x, y int) bool {
	return g.GrayAt(x, y).Y == Ink
}
