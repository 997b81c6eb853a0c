package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

// DistanceScale is the distance in pixels at which the distance map reaches
// tanh(1) of full brightness.
const DistanceScale = 5.0

// DistanceMap renders the perimeter distance of e as a width×height gray
// image. Each pixel is 255·tanh(d/DistanceScale), so the perimeter is black
// and brightness saturates a few multiples of DistanceScale away.
func DistanceMap(width, height int, e geometry.Ellipse, metric geometry.Metric) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := metric(e, geometry.Pt(float64(x), float64(y)))
			out.Pix[y*out.Stride+x] = uint8(math.Round(255 * math.Tanh(d/DistanceScale)))
		}
	}
	return out
}

// RenderResult is a PNG rendering returned inline to MCP clients.
type RenderResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as base64 PNG.
func EncodePNG(img image.Image) (*RenderResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &RenderResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}
