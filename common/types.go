// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// Viewport describes the rasterizer viewport rectangle in pixels and its depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// ScissorRect describes the scissor rectangle in pixels.
type ScissorRect struct {
	X, Y, Width, Height uint32
}

// Color is a linear RGBA clear color.
type Color struct {
	R, G, B, A float64
}

// FullViewport returns a viewport and scissor covering a width x height target.
//
// Parameters:
//   - width: target width in pixels
//   - height: target height in pixels
//
// Returns:
//   - Viewport: a viewport covering the full target with depth range [0, 1]
//   - ScissorRect: a scissor rectangle covering the full target
func FullViewport(width, height uint32) (Viewport, ScissorRect) {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1},
		ScissorRect{Width: width, Height: height}
}
