package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

// PolygonVertices is the number of vertices used to draw one ellipse.
const PolygonVertices = 50

// OverlayOptions controls Overlay.
type OverlayOptions struct {
	// Color draws every ellipse in one "#RRGGBB" or "#RRGGBBAA" colour.
	// Empty means one palette hue per contour.
	Color string

	// Labels writes the contour index next to each ellipse.
	Labels bool

	// GridSpacing rules a coordinate grid under the ellipses every
	// GridSpacing pixels. Zero draws no grid.
	GridSpacing int

	// GridColor is the grid line colour, DefaultGridColor when empty.
	GridColor string

	// GridCoordinates labels each grid crossing with its pixel position.
	GridCoordinates bool
}

// Overlay draws the ellipses of each contour over a copy of img. groups[i]
// holds the ellipses found in contour i.
func Overlay(img image.Image, groups [][]geometry.Ellipse, opts OverlayOptions) (*image.RGBA, error) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	var fixedColor color.Color
	if opts.Color != "" {
		c, err := parseHexColor(opts.Color)
		if err != nil {
			return nil, err
		}
		fixedColor = c
	}
	if opts.GridSpacing > 0 {
		hex := opts.GridColor
		if hex == "" {
			hex = DefaultGridColor
		}
		gc, err := parseHexColor(hex)
		if err != nil {
			return nil, err
		}
		drawGrid(out, opts.GridSpacing, gc, opts.GridCoordinates)
	}

	palette := Palette(len(groups))

	for i, ellipses := range groups {
		c := fixedColor
		if c == nil {
			c = palette[i]
		}
		for _, e := range ellipses {
			drawPolygon(out, e.Polygon(PolygonVertices), c)
			if opts.Labels {
				drawLabel(out, e, strconv.Itoa(i), c)
			}
		}
	}
	return out, nil
}

// Palette returns n visually distinct colours spread around the hue wheel.
func Palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		// Golden-angle steps keep neighbouring indices apart.
		hue := math.Mod(float64(i)*137.508, 360)
		colors[i] = clampedRGBA(colorful.Hsv(hue, 0.9, 1))
	}
	return colors
}

func clampedRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA". The alpha is not
// premultiplied.
func parseHexColor(hex string) (color.NRGBA, error) {
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	alpha := uint8(255)
	switch len(hex) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:7]
	default:
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB or #RRGGBBAA", hex)
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// drawPolygon draws the closed polygon through vertices.
func drawPolygon(img draw.Image, vertices []geometry.Point, c color.Color) {
	for i, p := range vertices {
		q := vertices[(i+1)%len(vertices)]
		drawLine(img, round(p.X), round(p.Y), round(q.X), round(q.Y), c)
	}
}

// drawLine draws a Bresenham line. Pixels outside img are skipped.
// Translucent colours are composited over the image.
func drawLine(img draw.Image, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// plot composites c over the pixel at (x, y) when it lies inside img.
func plot(img draw.Image, x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := c.RGBA()
	if sa == 0xffff {
		img.Set(x, y, c)
		return
	}
	dr, dg, db, da := img.At(x, y).RGBA()
	k := 0xffff - sa
	img.Set(x, y, color.RGBA64{
		R: uint16(sr + dr*k/0xffff),
		G: uint16(sg + dg*k/0xffff),
		B: uint16(sb + db*k/0xffff),
		A: uint16(sa + da*k/0xffff),
	})
}

// drawLabel writes text just right of the rightmost point of e.
func drawLabel(img draw.Image, e geometry.Ellipse, text string, c color.Color) {
	face := basicfont.Face7x13
	x := int(math.Ceil(e.X + math.Hypot(e.A*math.Cos(e.Theta), e.B*math.Sin(e.Theta)) + 3))
	y := round(e.Y) + face.Ascent/2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func round(v float64) int {
	return int(math.Round(v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
