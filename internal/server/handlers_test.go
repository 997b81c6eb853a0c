package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/ironsheep/particle-detect/internal/geometry"
	"github.com/ironsheep/particle-detect/internal/imaging"
	"github.com/ironsheep/particle-detect/internal/report"
)

// writeRodImage draws one dark elliptical particle on a light 200x140
// frame and returns its path.
func writeRodImage(t *testing.T) string {
	t.Helper()

	rod := geometry.NewEllipse(80, 70, 40, 12, 0.35)
	img := image.NewGray(image.Rect(0, 0, 200, 140))
	for y := 0; y < 140; y++ {
		for x := 0; x < 200; x++ {
			v := uint8(235)
			if rod.IsInside(geometry.Pt(float64(x), float64(y))) {
				v = 25
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	path := filepath.Join(t.TempDir(), "rod.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

const rodConfig = `{"min_aspect_ratio": 1, "max_aspect_ratio": 6, "min_length": 40, "max_length": 120, "min_width": 15, "max_width": 80}`

// callTool runs a tools/call request through the request router.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unpacks the JSON text content of a successful tool call.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result: got %T", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("content: got %v", result["content"])
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
}

func decodePNG(t *testing.T, r *imaging.RenderResult) image.Image {
	t.Helper()

	if r == nil {
		t.Fatal("no image returned")
	}
	if r.MimeType != "image/png" {
		t.Errorf("MimeType: got %s", r.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(r.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	return img
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := New(nil, "dev")
	path := writeRodImage(t)

	var info imaging.ImageInfo
	decodeResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": path}), &info)

	if info.Width != 200 || info.Height != 140 {
		t.Errorf("dimensions: got %dx%d, want 200x140", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}
	if info.FileSizeBytes <= 0 {
		t.Errorf("FileSizeBytes: got %d", info.FileSizeBytes)
	}
}

func TestHandleToolsCall_ImageDimensions(t *testing.T) {
	s := New(nil, "dev")
	path := writeRodImage(t)

	var dims imaging.DimensionsResult
	decodeResult(t, callTool(t, s, "image_dimensions", map[string]interface{}{"path": path}), &dims)

	if dims.Width != 200 || dims.Height != 140 {
		t.Errorf("got %dx%d, want 200x140", dims.Width, dims.Height)
	}
}

type detectResponse struct {
	report.Result
	Overlay *imaging.RenderResult `json:"overlay"`
}

func TestHandleToolsCall_ParticlesDetect(t *testing.T) {
	s := New(nil, "dev")
	path := writeRodImage(t)

	var res detectResponse
	decodeResult(t, callTool(t, s, "particles_detect", map[string]interface{}{
		"path":             path,
		"config":           jsoniter.RawMessage(rodConfig),
		"seed":             3,
		"workers":          2,
		"include_contours": true,
		"overlay":          true,
		"grid_spacing":     50,
	}), &res)

	if res.ParticleCount != 1 || len(res.Particles) != 1 {
		t.Fatalf("ParticleCount: got %d, want 1", res.ParticleCount)
	}
	p := res.Particles[0]
	if math.Abs(p.X-80) > 1.5 || math.Abs(p.Y-70) > 1.5 {
		t.Errorf("centre: got (%.2f, %.2f), want (80, 70)", p.X, p.Y)
	}
	if res.Seed != 3 || res.RunID == "" {
		t.Errorf("Seed %d RunID %q", res.Seed, res.RunID)
	}
	if len(res.Contours) != 1 {
		t.Errorf("Contours: got %d, want 1", len(res.Contours))
	}

	overlay := decodePNG(t, res.Overlay)
	if b := overlay.Bounds(); b.Dx() != 200 || b.Dy() != 140 {
		t.Errorf("overlay size: got %v", b)
	}
}

func TestHandleToolsCall_ParticlesDetectConfigFile(t *testing.T) {
	s := New(nil, "dev")
	path := writeRodImage(t)
	cfgPath := filepath.Join(t.TempDir(), "fit.yaml")
	yaml := "min_length: 40\nmax_length: 120\nmin_width: 15\nmax_width: 80\nmax_aspect_ratio: 6\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := imaging.LoadImageInfo(s.cache, path); err != nil {
		t.Fatal(err)
	}

	var res detectResponse
	decodeResult(t, callTool(t, s, "particles_detect", map[string]interface{}{
		"path":        path,
		"config_path": cfgPath,
	}), &res)

	if res.ParticleCount != 1 {
		t.Errorf("ParticleCount: got %d, want 1", res.ParticleCount)
	}
	if res.Overlay != nil {
		t.Error("overlay returned without being requested")
	}
	if res.Contours != nil {
		t.Error("contours returned without being requested")
	}
	if s.cache.Len() != 1 {
		t.Errorf("cache holds %d images, want 1", s.cache.Len())
	}
}

func TestHandleToolsCall_EllipseFit(t *testing.T) {
	s := New(nil, "dev")
	want := geometry.NewEllipse(50, 40, 20, 10, 0.4)

	var res ellipseFitResult
	decodeResult(t, callTool(t, s, "ellipse_fit", map[string]interface{}{
		"points": want.Polygon(24),
	}), &res)

	if math.Abs(res.Ellipse.X-50) > 1e-6 || math.Abs(res.Ellipse.Y-40) > 1e-6 {
		t.Errorf("centre: got (%v, %v)", res.Ellipse.X, res.Ellipse.Y)
	}
	if math.Abs(res.Length-40) > 1e-6 || math.Abs(res.Width-20) > 1e-6 {
		t.Errorf("axes: got %v x %v, want 40 x 20", res.Length, res.Width)
	}
	if math.Abs(res.Aspect-2) > 1e-6 {
		t.Errorf("Aspect: got %v, want 2", res.Aspect)
	}
	if math.Abs(res.Perimeter-want.Perimeter()) > 1e-6 {
		t.Errorf("Perimeter: got %v, want %v", res.Perimeter, want.Perimeter())
	}
	if res.MeanDistance > 1e-6 {
		t.Errorf("MeanDistance: got %v, want 0", res.MeanDistance)
	}
}

func TestHandleToolsCall_EllipseDistance(t *testing.T) {
	s := New(nil, "dev")

	var res ellipseDistanceResult
	decodeResult(t, callTool(t, s, "ellipse_distance", map[string]interface{}{
		"ellipse": map[string]interface{}{"x": 0, "y": 0, "a": 10, "b": 5, "theta": 0},
		"points":  []geometry.Point{{X: 20, Y: 0}, {X: 0, Y: 2}},
	}), &res)

	if res.Iterations != geometry.DefaultFastIterations {
		t.Errorf("Iterations: got %d, want default", res.Iterations)
	}
	if len(res.Distances) != 2 {
		t.Fatalf("got %d distances, want 2", len(res.Distances))
	}

	outside, inside := res.Distances[0], res.Distances[1]
	if math.Abs(outside.Exact-10) > 1e-6 || math.Abs(outside.Fast-10) > 1e-6 || outside.Inside {
		t.Errorf("outside point: %+v", outside)
	}
	if math.Abs(inside.Exact-3) > 1e-6 || !inside.Inside {
		t.Errorf("inside point: %+v", inside)
	}
	if inside.Fast < inside.Exact-1e-9 {
		t.Errorf("fast distance %v undershoots exact %v", inside.Fast, inside.Exact)
	}
}

func TestHandleToolsCall_EllipseDistanceMap(t *testing.T) {
	s := New(nil, "dev")

	var res imaging.RenderResult
	decodeResult(t, callTool(t, s, "ellipse_distance_map", map[string]interface{}{
		"ellipse": map[string]interface{}{"x": 32, "y": 32, "a": 20, "b": 10, "theta": 0},
		"width":   64,
		"height":  48,
		"method":  "exact",
	}), &res)

	if res.Width != 64 || res.Height != 48 {
		t.Errorf("size: got %dx%d, want 64x48", res.Width, res.Height)
	}
	img := decodePNG(t, &res)
	gray := func(x, y int) uint8 {
		return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
	}
	if v := gray(52, 32); v != 0 {
		t.Errorf("perimeter pixel: got %d, want 0", v)
	}
	if v := gray(40, 35); v == 0 {
		t.Error("interior pixel should be off the perimeter")
	}
}

func TestHandleToolsCall_Errors(t *testing.T) {
	circle := map[string]interface{}{"x": 0, "y": 0, "a": 10, "b": 10, "theta": 0}

	tests := []struct {
		name string
		tool string
		args interface{}
		want string
	}{
		{"missing path", "image_load", map[string]interface{}{}, "path is required"},
		{"missing image", "image_dimensions", map[string]interface{}{"path": "/nonexistent/x.png"}, "failed to open image"},
		{"arguments not an object", "image_load", []int{1}, "invalid arguments"},
		{"unknown tool", "image_crop", map[string]interface{}{"path": "x"}, "unknown tool"},
		{"detect without path", "particles_detect", map[string]interface{}{}, "path is required"},
		{"both configs", "particles_detect", map[string]interface{}{
			"path": "x.png", "config": map[string]interface{}{}, "config_path": "fit.yaml",
		}, "mutually exclusive"},
		{"negative grid", "particles_detect", map[string]interface{}{
			"path": "x.png", "grid_spacing": -1,
		}, "grid_spacing"},
		{"unknown config key", "particles_detect", map[string]interface{}{
			"path": "x.png", "config": map[string]interface{}{"bogus": 1},
		}, "bogus"},
		{"invalid config", "particles_detect", map[string]interface{}{
			"path": "x.png", "config": map[string]interface{}{"min_length": 50, "max_length": 10},
		}, "max_length"},
		{"too few points", "ellipse_fit", map[string]interface{}{
			"points": []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}},
		}, "too few points"},
		{"flat ellipse", "ellipse_distance", map[string]interface{}{
			"ellipse": map[string]interface{}{"x": 0, "y": 0, "a": 0, "b": 5, "theta": 0},
		}, "invalid ellipse"},
		{"iterations out of range", "ellipse_distance", map[string]interface{}{
			"ellipse": circle, "iterations": 20,
		}, "iterations must be between 3 and 10"},
		{"empty map", "ellipse_distance_map", map[string]interface{}{
			"ellipse": circle, "width": 0, "height": 10,
		}, "width and height"},
		{"huge map", "ellipse_distance_map", map[string]interface{}{
			"ellipse": circle, "width": 10, "height": 5000,
		}, "width and height"},
		{"unknown method", "ellipse_distance_map", map[string]interface{}{
			"ellipse": circle, "width": 10, "height": 10, "method": "manhattan",
		}, "unknown method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, New(nil, "dev"), tt.tool, tt.args)
			if resp.Error == nil {
				t.Fatal("expected an error response")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("Code: got %d, want -32000", resp.Error.Code)
			}
			data, _ := resp.Error.Data.(string)
			if !strings.Contains(data, tt.want) {
				t.Errorf("Data: got %q, want it to contain %q", data, tt.want)
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(nil, "dev")
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      9,
		Method:  "tools/call",
		Params:  []byte(`"image_load"`),
	})

	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("got %+v, want -32602", resp.Error)
	}
	if resp.ID != 9 {
		t.Errorf("ID: got %v, want 9", resp.ID)
	}
}

func TestHandleToolsCall_Cancelled(t *testing.T) {
	s := New(nil, "dev")
	path := writeRodImage(t)
	args, _ := json.Marshal(map[string]interface{}{
		"name":      "particles_detect",
		"arguments": map[string]interface{}{"path": path},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := s.handleToolsCall(ctx, &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: args})

	if resp.Error == nil {
		t.Fatal("cancelled detection should fail")
	}
	if data, _ := resp.Error.Data.(string); !strings.Contains(data, context.Canceled.Error()) {
		t.Errorf("Data: got %q", data)
	}
}
