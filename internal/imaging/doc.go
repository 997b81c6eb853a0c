// Package imaging is the image front end of particle detection and the
// renderer for its results.
//
// The front end turns a micrograph into contours:
//
//	img, _ := cache.Load(path)       // decode with EXIF orientation
//	bin := Binarize(img, 55, 0)      // luma > threshold is background
//	mask := BoundaryMask(bin)        // keep particle outlines only
//	contours := FindContours(mask, 30, 100000)
//
// [Contours] runs all three steps from a config.FitConfig.
//
// The renderers draw fitted ellipses over the source image ([Overlay]) and
// visualise a perimeter distance function ([DistanceMap]). Overlay can rule
// a labelled coordinate grid under the ellipses. Both produce
// ordinary image values that [EncodePNG] turns into base64 for MCP clients
// and [SavePNG] writes to disk.
//
// # Coordinate System
//
// Pixel (0,0) is the top-left corner, X grows rightward and Y downward.
// Contour points are pixel indices converted to float64, so a contour
// point sits at the pixel's integer coordinate, not at its centre. Every
// function rebases images with a non-zero origin to (0,0).
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The other functions only read
// their inputs and allocate fresh outputs.
package imaging
