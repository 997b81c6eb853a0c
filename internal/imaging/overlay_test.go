package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/particle-detect/internal/geometry"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, false},
		{"00ff80", color.NRGBA{0, 255, 128, 255}, false},
		{"#0000FF80", color.NRGBA{0, 0, 255, 128}, false},
		{"", color.NRGBA{}, true},
		{"#F00", color.NRGBA{}, true},
		{"#GG0000", color.NRGBA{}, true},
		{"#FF0000ZZ", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPalette(t *testing.T) {
	p := Palette(12)
	if len(p) != 12 {
		t.Fatalf("got %d colours, want 12", len(p))
	}
	seen := map[color.RGBA]bool{}
	for i, c := range p {
		rgba := c.(color.RGBA)
		if rgba.A != 255 {
			t.Errorf("colour %d is not opaque", i)
		}
		if seen[rgba] {
			t.Errorf("colour %d repeats %v", i, rgba)
		}
		seen[rgba] = true
	}
	if len(Palette(0)) != 0 {
		t.Error("Palette(0) should be empty")
	}
}

func TestOverlay(t *testing.T) {
	bg := color.RGBA{0, 0, 0, 255}
	img := uniformImage(120, 100, bg)
	e := geometry.NewEllipse(60, 50, 40, 20, 0)

	out, err := Overlay(img, [][]geometry.Ellipse{{e}}, OverlayOptions{Color: "#00FF00"})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	green := color.RGBA{0, 255, 0, 255}
	// The four axis ends lie on the outline.
	for _, p := range []image.Point{{100, 50}, {60, 70}, {20, 50}, {60, 30}} {
		if got := out.RGBAAt(p.X, p.Y); got != green {
			t.Errorf("vertex %v: got %v, want %v", p, got, green)
		}
	}
	if got := out.RGBAAt(60, 50); got != bg {
		t.Errorf("centre should be untouched, got %v", got)
	}
	if got := img.RGBAAt(100, 50); got != bg {
		t.Error("Overlay must not draw on its input")
	}
}

func TestOverlay_PolygonIsClosed(t *testing.T) {
	img := uniformImage(200, 200, color.Black)
	e := geometry.NewEllipse(100, 100, 70, 30, 0.7)

	out, err := Overlay(img, [][]geometry.Ellipse{{e}}, OverlayOptions{Color: "#FFFFFF"})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	// A 4-connected fill from the centre must stay inside the outline.
	white := color.RGBA{255, 255, 255, 255}
	seen := map[image.Point]bool{}
	stack := []image.Point{{100, 100}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] || out.RGBAAt(p.X, p.Y) == white {
			continue
		}
		if p.X == 0 || p.Y == 0 || p.X == 199 || p.Y == 199 {
			t.Fatalf("fill escaped the outline at %v", p)
		}
		seen[p] = true
		stack = append(stack, p.Add(image.Pt(1, 0)), p.Add(image.Pt(-1, 0)), p.Add(image.Pt(0, 1)), p.Add(image.Pt(0, -1)))
	}
	if len(seen) < 1000 {
		t.Errorf("interior has only %d pixels", len(seen))
	}
}

func TestOverlay_PaletteAndLabels(t *testing.T) {
	img := uniformImage(200, 100, color.Black)
	groups := [][]geometry.Ellipse{
		{geometry.NewEllipse(40, 50, 20, 10, 0)},
		nil,
		{geometry.NewEllipse(140, 50, 20, 10, 0)},
	}

	out, err := Overlay(img, groups, OverlayOptions{Labels: true})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	palette := Palette(len(groups))
	if got := out.At(60, 50); got != palette[0] {
		t.Errorf("contour 0 colour: got %v, want %v", got, palette[0])
	}
	if got := out.At(160, 50); got != palette[2] {
		t.Errorf("contour 2 colour: got %v, want %v", got, palette[2])
	}

	// The label sits right of the ellipse.
	labelled := false
	for y := 40; y < 60 && !labelled; y++ {
		for x := 63; x < 75; x++ {
			if out.RGBAAt(x, y) == palette[0] {
				labelled = true
				break
			}
		}
	}
	if !labelled {
		t.Error("no label pixels next to contour 0")
	}
}

func TestOverlay_BadColor(t *testing.T) {
	_, err := Overlay(uniformImage(10, 10, color.Black), nil, OverlayOptions{Color: "red"})
	if err == nil {
		t.Error("Overlay should reject a colour that is not hex")
	}
}

func TestDrawLine_ClipsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawLine(img, -5, -5, 15, 15, color.White)
	for i := 0; i < 10; i++ {
		if img.RGBAAt(i, i) != (color.RGBA{255, 255, 255, 255}) {
			t.Errorf("diagonal pixel %d not drawn", i)
		}
	}
}

func TestOverlay_Grid(t *testing.T) {
	img := uniformImage(100, 80, color.Black)
	out, err := Overlay(img, nil, OverlayOptions{GridSpacing: 25, GridColor: "#FFFFFF"})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	white := color.RGBA{255, 255, 255, 255}
	for _, x := range []int{25, 50, 75} {
		for y := 0; y < 80; y++ {
			if out.RGBAAt(x, y) != white {
				t.Fatalf("vertical grid line missing at (%d,%d)", x, y)
			}
		}
	}
	for _, y := range []int{25, 50, 75} {
		for x := 0; x < 100; x++ {
			if out.RGBAAt(x, y) != white {
				t.Fatalf("horizontal grid line missing at (%d,%d)", x, y)
			}
		}
	}
	if got := out.RGBAAt(10, 10); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("cell interior: got %v, want black", got)
	}
}

func TestOverlay_GridBlendsOnce(t *testing.T) {
	out, err := Overlay(uniformImage(60, 60, color.Black), nil, OverlayOptions{GridSpacing: 20})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	// Half-transparent red over black, crossings included.
	want := color.RGBA{128, 0, 0, 255}
	for _, p := range []image.Point{{20, 5}, {5, 40}, {20, 20}, {40, 40}} {
		if got := out.RGBAAt(p.X, p.Y); got != want {
			t.Errorf("pixel %v: got %v, want %v", p, got, want)
		}
	}
}

func TestOverlay_GridCoordinates(t *testing.T) {
	out, err := Overlay(uniformImage(120, 100, color.Black), nil, OverlayOptions{
		GridSpacing:     50,
		GridColor:       "#00FF00",
		GridCoordinates: true,
	})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}

	// "50,50" is written below and right of the first crossing.
	lit := 0
	for y := 52; y < 66; y++ {
		for x := 52; x < 90; x++ {
			if out.RGBAAt(x, y) == (color.RGBA{255, 255, 255, 255}) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("no coordinate label at the first crossing")
	}
}

func TestOverlay_BadGridColor(t *testing.T) {
	_, err := Overlay(uniformImage(10, 10, color.Black), nil, OverlayOptions{GridSpacing: 5, GridColor: "#12"})
	if err == nil {
		t.Error("Overlay should reject a bad grid colour")
	}
}

func TestDistanceMap(t *testing.T) {
	e := geometry.NewEllipse(50, 40, 30, 15, 0)
	m := DistanceMap(100, 80, e, geometry.ExactMetric())

	if b := m.Bounds(); b.Dx() != 100 || b.Dy() != 80 {
		t.Fatalf("bounds: got %v", b)
	}
	if got := m.GrayAt(80, 40).Y; got != 0 {
		t.Errorf("on the perimeter: got %d, want 0", got)
	}
	// 5 px outside: 255·tanh(1).
	want := uint8(math.Round(255 * math.Tanh(1)))
	if got := m.GrayAt(85, 40).Y; got != want {
		t.Errorf("5 px outside: got %d, want %d", got, want)
	}
	// The centre is 15 px from the perimeter along the minor axis.
	want = uint8(math.Round(255 * math.Tanh(3)))
	if got := m.GrayAt(50, 40).Y; got != want {
		t.Errorf("centre: got %d, want %d", got, want)
	}
	if m.GrayAt(0, 0).Y < 250 {
		t.Errorf("far corner should be near white, got %d", m.GrayAt(0, 0).Y)
	}
}

func TestEncodePNG(t *testing.T) {
	img := uniformImage(30, 20, color.RGBA{10, 20, 30, 255})
	res, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if res.Width != 30 || res.Height != 20 || res.MimeType != "image/png" {
		t.Errorf("unexpected result header: %+v", res)
	}

	data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	r, g, b, _ := decoded.At(5, 5).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Errorf("pixel: got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.png")
	if err := SavePNG(path, uniformImage(8, 6, color.White)); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("saved file is not a PNG: %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 6 {
		t.Errorf("saved size: got %dx%d", cfg.Width, cfg.Height)
	}

	if err := SavePNG(filepath.Join(dir, "missing", "x.png"), uniformImage(1, 1, color.White)); err == nil {
		t.Error("SavePNG should fail when the directory does not exist")
	}
}
