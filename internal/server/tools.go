package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func pointsProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"x": map[string]interface{}{"type": "number"},
				"y": map[string]interface{}{"type": "number"},
			},
			"required": []string{"x", "y"},
		},
	}
}

func ellipseProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Ellipse centre (x, y), semi-axes a and b, and rotation theta in radians",
		"properties": map[string]interface{}{
			"x":     map[string]interface{}{"type": "number"},
			"y":     map[string]interface{}{"type": "number"},
			"a":     map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
			"b":     map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
			"theta": map[string]interface{}{"type": "number"},
		},
		"required": []string{"x", "y", "a", "b", "theta"},
	}
}

func methodProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"exact", "fast"},
		"description": "Distance method: exact closed form or fast iterative approximation. Default fast",
		"default":     "fast",
	}
}

func iterationsProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Iterations of the fast method (3-10). Default 5",
		"minimum":     3,
		"maximum":     10,
		"default":     5,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Image information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and file size. The image stays cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Detection
		{
			Name: "particles_detect",
			Description: "Detect elliptical particles in an image. The image is thresholded, particle outlines are grouped " +
				"into contours and several ellipses may be fitted per contour with RANSAC, so touching particles are " +
				"separated. Returns every particle with its contour index, centre, semi-axes, rotation, length, width and aspect.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"config": map[string]interface{}{
						"type": "object",
						"description": "Fit configuration with the same keys as the YAML file " +
							"(threshold, min_fitness, dist_threshold, radius_threshold, min_length, max_length, ...). " +
							"Missing keys take their defaults",
					},
					"config_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to a YAML fit configuration. Mutually exclusive with config",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed for reproducible runs. Default 0",
						"default":     0,
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Contours fitted at once. Default: all CPUs",
					},
					"include_contours": map[string]interface{}{
						"type":        "boolean",
						"description": "Include per-contour fitting statistics. Default false",
						"default":     false,
					},
					"overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return the image with the fitted ellipses drawn as base64 PNG. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},

		// Ellipse geometry
		{
			Name:        "ellipse_fit",
			Description: "Fit an ellipse to at least 6 points by direct least squares. Fails when the points are degenerate (collinear, coincident or conic is not an ellipse).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"points": pointsProperty("Points to fit, at least 6"),
				},
				"required": []string{"points"},
			},
		},
		{
			Name:        "ellipse_distance",
			Description: "Distance from each point to the perimeter of an ellipse, by the exact and fast methods, and whether the point is inside.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ellipse":    ellipseProperty(),
					"points":     pointsProperty("Query points"),
					"iterations": iterationsProperty(),
				},
				"required": []string{"ellipse", "points"},
			},
		},
		{
			Name:        "ellipse_distance_map",
			Description: "Render the perimeter distance of an ellipse as a grayscale base64 PNG, each pixel 255*tanh(d/5). Useful to inspect the distance functions.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ellipse": ellipseProperty(),
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Image width in pixels (1-4096)",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Image height in pixels (1-4096)",
					},
					"method":     methodProperty(),
					"iterations": iterationsProperty(),
				},
				"required": []string{"ellipse", "width", "height"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
