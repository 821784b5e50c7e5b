package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

type cameraImpl struct {
	mu *sync.Mutex

	fov    float32
	aspect float32
	near   float32
	far    float32

	view common.Mat4
	proj common.Mat4
	eye  common.Vec3

	controller Controller
}

// Camera holds the lens settings and computes the view and projection matrices from an attached
// Controller each time Update is called.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// SetLens replaces every lens setting at once.
	//
	// Parameters:
	//   - fov: vertical field of view in radians
	//   - aspect: width / height
	//   - near: near plane distance
	//   - far: far plane distance
	SetLens(fov, aspect, near, far float32)

	// SetAspect updates the aspect ratio, typically after a resize.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// View returns the world-to-view matrix computed by the last Update.
	View() common.Mat4

	// Proj returns the projection matrix.
	Proj() common.Mat4

	// Frustum returns the world-space view frustum used for culling.
	Frustum() common.Frustum

	// Controller returns the attached controller, or nil.
	Controller() Controller

	// SetController attaches ctrl and recomputes the matrices.
	SetController(ctrl Controller)

	// Update recomputes the view matrix from the controller. It is a no-op without one.
	Update()

	// FrameConstants returns the per-frame constants of the current view.
	//
	// Parameters:
	//   - width: render target width in pixels
	//   - height: render target height in pixels
	//   - lightCount: number of punctual lights in the frame
	//
	// Returns:
	//   - *upload.FrameConstants: a fresh value owned by the caller
	FrameConstants(width, height, lightCount uint32) *upload.FrameConstants
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera with a 45 degree field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		fov:    45.0 * (math.Pi / 180.0),
		aspect: 1.0,
		near:   0.1,
		far:    100.0,
		view:   common.Identity4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateProjection()
	c.updateView()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetLens(fov, aspect, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov, c.aspect, c.near, c.far = fov, aspect, near, far
	c.updateProjection()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateProjection()
}

func (c *cameraImpl) View() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) Proj() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proj
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.FrustumFromMatrix(c.proj.Mul(c.view))
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateView()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateView()
}

func (c *cameraImpl) FrameConstants(width, height, lightCount uint32) *upload.FrameConstants {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &upload.FrameConstants{
		View:       c.view,
		Proj:       c.proj,
		Eye:        c.eye,
		Width:      width,
		Height:     height,
		Near:       c.near,
		Far:        c.far,
		LightCount: lightCount,
	}
}

// updateProjection rebuilds the projection matrix. Caller must hold the mutex.
func (c *cameraImpl) updateProjection() {
	c.proj = common.Perspective(c.fov, c.aspect, c.near, c.far)
}

// updateView rebuilds the view matrix from the controller. Caller must hold the mutex.
func (c *cameraImpl) updateView() {
	if c.controller == nil {
		return
	}
	c.eye = c.controller.Position()
	c.view = common.LookAt(c.eye, c.eye.Add(c.controller.Look()), common.Vec3{0, 1, 0})
}
