package server

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/particle-detect/internal/config"
	"github.com/ironsheep/particle-detect/internal/conic"
	"github.com/ironsheep/particle-detect/internal/geometry"
	"github.com/ironsheep/particle-detect/internal/imaging"
	"github.com/ironsheep/particle-detect/internal/pipeline"
	"github.com/ironsheep/particle-detect/internal/report"
)

// maxMapSide bounds the sides of a rendered distance map.
const maxMapSide = 4096

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "particles_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments jsoniter.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithFields(logrus.Fields{"tool": params.Name}).WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args jsoniter.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	case "particles_detect":
		return s.handleParticlesDetect(ctx, args)

	case "ellipse_fit":
		return s.handleEllipseFit(args)
	case "ellipse_distance":
		return s.handleEllipseDistance(args)
	case "ellipse_distance_map":
		return s.handleEllipseDistanceMap(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments. Missing arguments decode as {}.
func unmarshalArgs(args jsoniter.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (a imageLoadArgs) validate() error {
	if a.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (s *Server) handleImageLoad(args jsoniter.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args jsoniter.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Detection Handlers ===

type particlesDetectArgs struct {
	Path            string              `json:"path"`
	Config          jsoniter.RawMessage `json:"config"`
	ConfigPath      string              `json:"config_path"`
	Seed            uint64              `json:"seed"`
	Workers         int                 `json:"workers"`
	IncludeContours bool                `json:"include_contours"`
	Overlay         bool                `json:"overlay"`
	GridSpacing     int                 `json:"grid_spacing"`
}

// fitConfig resolves the configuration of a particles_detect call. An
// inline object is decoded with the YAML loader, which accepts JSON.
func (a particlesDetectArgs) fitConfig() (config.FitConfig, error) {
	inline := len(a.Config) > 0 && string(a.Config) != "null"
	switch {
	case inline && a.ConfigPath != "":
		return config.FitConfig{}, errors.New("config and config_path are mutually exclusive")
	case a.ConfigPath != "":
		return config.Load(a.ConfigPath)
	case inline:
		return config.ParseBytes(a.Config)
	default:
		return config.Default(), nil
	}
}

type particlesDetectResult struct {
	*report.Result
	Overlay *imaging.RenderResult `json:"overlay,omitempty"`
}

func (s *Server) handleParticlesDetect(ctx context.Context, args jsoniter.RawMessage) (interface{}, error) {
	var a particlesDetectArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	if a.GridSpacing < 0 {
		return nil, fmt.Errorf("grid_spacing must not be negative, got %d", a.GridSpacing)
	}
	cfg, err := a.fitConfig()
	if err != nil {
		return nil, err
	}

	res, img, err := pipeline.Run(ctx, s.cache, a.Path, cfg, pipeline.Options{
		Workers:      a.Workers,
		Seed:         a.Seed,
		WithContours: a.IncludeContours,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	out := &particlesDetectResult{Result: res}
	if a.Overlay {
		drawn, err := imaging.Overlay(img, res.Groups(), imaging.OverlayOptions{
			Labels:          true,
			GridSpacing:     a.GridSpacing,
			GridCoordinates: true,
		})
		if err != nil {
			return nil, err
		}
		if out.Overlay, err = imaging.EncodePNG(drawn); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// === Ellipse Geometry Handlers ===

type ellipseArg struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Theta float64 `json:"theta"`
}

func (e ellipseArg) ellipse() (geometry.Ellipse, error) {
	el := geometry.NewEllipse(e.X, e.Y, e.A, e.B, e.Theta)
	if !el.Valid() {
		return geometry.Ellipse{}, fmt.Errorf("invalid ellipse: %v", el)
	}
	return el, nil
}

type ellipseFitArgs struct {
	Points []geometry.Point `json:"points"`
}

type ellipseFitResult struct {
	Ellipse   geometry.Ellipse `json:"ellipse"`
	Length    float64          `json:"length"`
	Width     float64          `json:"width"`
	Aspect    float64          `json:"aspect"`
	Perimeter float64          `json:"perimeter"`

	// MeanDistance is the mean exact distance of the input points from
	// the fitted perimeter.
	MeanDistance float64 `json:"mean_distance"`
}

func (s *Server) handleEllipseFit(args jsoniter.RawMessage) (interface{}, error) {
	var a ellipseFitArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	e, err := conic.Fit(a.Points)
	if err != nil {
		return nil, err
	}

	sum := 0.0
	for _, p := range a.Points {
		sum += e.DistanceExact(p)
	}
	return &ellipseFitResult{
		Ellipse:      e,
		Length:       e.Length(),
		Width:        e.Width(),
		Aspect:       e.Aspect(),
		Perimeter:    e.Perimeter(),
		MeanDistance: sum / float64(len(a.Points)),
	}, nil
}

type ellipseDistanceArgs struct {
	Ellipse    ellipseArg       `json:"ellipse"`
	Points     []geometry.Point `json:"points"`
	Iterations int              `json:"iterations"`
}

type pointDistance struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Exact  float64 `json:"exact"`
	Fast   float64 `json:"fast"`
	Inside bool    `json:"inside"`
}

type ellipseDistanceResult struct {
	Iterations int             `json:"iterations"`
	Distances  []pointDistance `json:"distances"`
}

func fastIterations(n int) (int, error) {
	if n == 0 {
		return geometry.DefaultFastIterations, nil
	}
	if n < 3 || n > 10 {
		return 0, fmt.Errorf("iterations must be between 3 and 10, got %d", n)
	}
	return n, nil
}

func (s *Server) handleEllipseDistance(args jsoniter.RawMessage) (interface{}, error) {
	var a ellipseDistanceArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	e, err := a.Ellipse.ellipse()
	if err != nil {
		return nil, err
	}
	iterations, err := fastIterations(a.Iterations)
	if err != nil {
		return nil, err
	}

	res := &ellipseDistanceResult{
		Iterations: iterations,
		Distances:  make([]pointDistance, len(a.Points)),
	}
	for i, p := range a.Points {
		res.Distances[i] = pointDistance{
			X:      p.X,
			Y:      p.Y,
			Exact:  e.DistanceExact(p),
			Fast:   e.DistanceFast(p, iterations),
			Inside: e.IsInside(p),
		}
	}
	return res, nil
}

type ellipseDistanceMapArgs struct {
	Ellipse    ellipseArg `json:"ellipse"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Method     string     `json:"method"`
	Iterations int        `json:"iterations"`
}

func (s *Server) handleEllipseDistanceMap(args jsoniter.RawMessage) (interface{}, error) {
	var a ellipseDistanceMapArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	e, err := a.Ellipse.ellipse()
	if err != nil {
		return nil, err
	}
	if a.Width < 1 || a.Height < 1 || a.Width > maxMapSide || a.Height > maxMapSide {
		return nil, fmt.Errorf("width and height must be between 1 and %d, got %dx%d", maxMapSide, a.Width, a.Height)
	}
	iterations, err := fastIterations(a.Iterations)
	if err != nil {
		return nil, err
	}

	var metric geometry.Metric
	switch a.Method {
	case "", config.DistanceFast:
		metric = geometry.FastMetric(iterations)
	case config.DistanceExact:
		metric = geometry.ExactMetric()
	default:
		return nil, fmt.Errorf("unknown method %q: want exact or fast", a.Method)
	}
	return imaging.EncodePNG(imaging.DistanceMap(a.Width, a.Height, e, metric))
}
