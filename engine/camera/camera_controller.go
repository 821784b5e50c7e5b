package camera

import "github.com/Carmen-Shannon/oxy-deferred/common"

// Controller owns the positional state of a camera: where it is and where it looks.
// The camera reads it on Update. Implementations are safe for concurrent use, so input
// callbacks may drive a controller while the render loop reads it.
type Controller interface {
	// Position returns the world-space eye position.
	Position() common.Vec3

	// SetPosition moves the eye without changing the look direction.
	SetPosition(p common.Vec3)

	// Look returns the unit look direction.
	Look() common.Vec3

	// LookAt turns the camera towards target.
	//
	// Parameters:
	//   - target: world-space point to face; ignored if it equals the position
	LookAt(target common.Vec3)

	// Walk moves along the look direction. Negative distances walk backwards.
	//
	// Parameters:
	//   - d: distance in world units, scaled by the move speed
	Walk(d float32)

	// Strafe moves along the right vector. Negative distances strafe left.
	//
	// Parameters:
	//   - d: distance in world units, scaled by the move speed
	Strafe(d float32)

	// Pitch tilts the look direction up (positive) or down, clamped short of straight up or down.
	//
	// Parameters:
	//   - angle: radians
	Pitch(angle float32)

	// RotateY turns the look direction around the world up axis. Positive turns right.
	//
	// Parameters:
	//   - angle: radians
	RotateY(angle float32)

	// MouseLook applies a mouse movement in pixels, scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx: horizontal movement, positive to the right
	//   - dy: vertical movement, positive downwards
	MouseLook(dx, dy float32)
}
