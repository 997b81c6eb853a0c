package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultGridColor is the grid colour used when none is given: a
// semi-transparent red.
const DefaultGridColor = "#FF000080"

var (
	gridLabelColor = color.NRGBA{255, 255, 255, 255}
	gridLabelBg    = color.NRGBA{0, 0, 0, 180}
)

// drawGrid rules a line every spacing pixels and, with coordinates set,
// labels each crossing with its "x,y" pixel position.
func drawGrid(img draw.Image, spacing int, c color.Color, coordinates bool) {
	if spacing <= 0 {
		return
	}
	b := img.Bounds()

	for x := b.Min.X + spacing; x < b.Max.X; x += spacing {
		drawLine(img, x, b.Min.Y, x, b.Max.Y-1, c)
	}
	for y := b.Min.Y + spacing; y < b.Max.Y; y += spacing {
		// Skip crossings so translucent lines are not blended twice.
		for x := b.Min.X; x < b.Max.X; x++ {
			if x == b.Min.X || (x-b.Min.X)%spacing != 0 {
				plot(img, x, y, c)
			}
		}
	}

	if !coordinates {
		return
	}
	for y := b.Min.Y + spacing; y < b.Max.Y; y += spacing {
		for x := b.Min.X + spacing; x < b.Max.X; x += spacing {
			drawBoxedText(img, x+2, y+2, strconv.Itoa(x)+","+strconv.Itoa(y))
		}
	}
}

// drawBoxedText writes text with its top-left corner at (x, y) on a dark
// backing box.
func drawBoxedText(img draw.Image, x, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(gridLabelColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	box := image.Rect(x-1, y-1, x+d.MeasureString(text).Ceil()+1, y+face.Height)
	draw.Draw(img, box.Intersect(img.Bounds()), image.NewUniform(gridLabelBg), image.Point{}, draw.Over)
	d.DrawString(text)
}
