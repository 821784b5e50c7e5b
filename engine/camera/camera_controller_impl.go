package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// maxPitch keeps the look direction off the world up axis so LookAt stays well defined.
const maxPitch = math.Pi/2 - 0.05

// flyController is a first-person controller. The look direction is stored as yaw and pitch;
// yaw 0 looks down -Z.
type flyController struct {
	mu *sync.Mutex

	position common.Vec3
	yaw      float32
	pitch    float32

	moveSpeed        float32
	mouseSensitivity float32
}

var _ Controller = &flyController{}

// NewFlyController creates a first-person controller at the origin looking down -Z.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - Controller: the newly created controller
func NewFlyController(options ...ControllerBuilderOption) Controller {
	fc := &flyController{
		mu:               &sync.Mutex{},
		moveSpeed:        1.0,
		mouseSensitivity: 0.005,
	}
	for _, option := range options {
		option(fc)
	}
	return fc
}

func (fc *flyController) Position() common.Vec3 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.position
}

func (fc *flyController) SetPosition(p common.Vec3) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.position = p
}

func (fc *flyController) Look() common.Vec3 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.look()
}

func (fc *flyController) LookAt(target common.Vec3) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.lookAt(target)
}

func (fc *flyController) Walk(d float32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.position = fc.position.Add(fc.look().Scale(d * fc.moveSpeed))
}

func (fc *flyController) Strafe(d float32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.position = fc.position.Add(fc.right().Scale(d * fc.moveSpeed))
}

func (fc *flyController) Pitch(angle float32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.pitch = clampPitch(fc.pitch + angle)
}

func (fc *flyController) RotateY(angle float32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.yaw = wrapAngle(fc.yaw + angle)
}

func (fc *flyController) MouseLook(dx, dy float32) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.yaw = wrapAngle(fc.yaw + dx*fc.mouseSensitivity)
	fc.pitch = clampPitch(fc.pitch - dy*fc.mouseSensitivity)
}

// --- internal helpers ---

// look returns the unit look vector. Caller must hold the mutex.
func (fc *flyController) look() common.Vec3 {
	sy, cy := math.Sincos(float64(fc.yaw))
	sp, cp := math.Sincos(float64(fc.pitch))
	return common.Vec3{float32(sy * cp), float32(sp), float32(-cy * cp)}
}

// right returns the horizontal right vector. Caller must hold the mutex.
func (fc *flyController) right() common.Vec3 {
	sy, cy := math.Sincos(float64(fc.yaw))
	return common.Vec3{float32(cy), 0, float32(sy)}
}

// lookAt derives yaw and pitch from a target point. Caller must hold the mutex.
func (fc *flyController) lookAt(target common.Vec3) {
	dir := target.Sub(fc.position)
	if dir.Length() == 0 {
		return
	}
	dir = dir.Normalize()
	fc.yaw = float32(math.Atan2(float64(dir[0]), float64(-dir[2])))
	fc.pitch = clampPitch(float32(math.Asin(float64(dir[1]))))
}

func clampPitch(p float32) float32 {
	return max(-maxPitch, min(maxPitch, p))
}

func wrapAngle(a float32) float32 {
	return float32(math.Remainder(float64(a), 2*math.Pi))
}
