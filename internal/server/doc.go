// Package server implements the MCP (Model Context Protocol) server for
// particle detection.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line on stdin
// and one response per line on stdout. Logs go to stderr.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Image information:
//   - image_load: Load an image and report its metadata
//   - image_dimensions: Get width and height
//
// Detection:
//   - particles_detect: Threshold an image, trace particle contours and
//     fit one or more ellipses per contour
//
// Ellipse geometry:
//   - ellipse_fit: Direct least squares fit of an ellipse to points
//   - ellipse_distance: Exact and fast perimeter distance of points
//   - ellipse_distance_map: Render a perimeter distance field as PNG
//
// # Image Caching
//
// Decoded images are cached by path for the lifetime of the server, so
// image_load followed by particles_detect decodes the file once.
//
// # Error Handling
//
// Tool failures are JSON-RPC errors with code -32000 and the Go error
// string as data. Malformed tools/call params get -32602 and unknown
// methods -32601.
package server
