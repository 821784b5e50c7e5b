package camera

import "github.com/Carmen-Shannon/oxy-deferred/common"

// ControllerBuilderOption is a functional option for configuring a fly controller.
type ControllerBuilderOption func(*flyController)

// WithPosition sets the initial eye position.
//
// Parameters:
//   - p: world-space position
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithPosition(p common.Vec3) ControllerBuilderOption {
	return func(fc *flyController) {
		fc.position = p
	}
}

// WithTarget turns the controller towards target. Apply it after WithPosition.
//
// Parameters:
//   - target: world-space point to face
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithTarget(target common.Vec3) ControllerBuilderOption {
	return func(fc *flyController) {
		fc.lookAt(target)
	}
}

// WithMoveSpeed scales Walk and Strafe distances.
func WithMoveSpeed(speed float32) ControllerBuilderOption {
	return func(fc *flyController) {
		fc.moveSpeed = speed
	}
}

// WithMouseSensitivity sets the radians turned per pixel of mouse movement.
func WithMouseSensitivity(sensitivity float32) ControllerBuilderOption {
	return func(fc *flyController) {
		fc.mouseSensitivity = sensitivity
	}
}
