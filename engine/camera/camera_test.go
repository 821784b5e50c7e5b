package camera

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

func near(a, b common.Vec3) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-4 {
			return false
		}
	}
	return true
}

func TestFlyControllerMovement(t *testing.T) {
	fc := NewFlyController(WithMoveSpeed(2))
	if have := fc.Look(); !near(have, common.Vec3{0, 0, -1}) {
		t.Fatalf("have look %v, want -Z", have)
	}

	fc.Walk(1)
	if have := fc.Position(); !near(have, common.Vec3{0, 0, -2}) {
		t.Errorf("have position %v after Walk, want (0, 0, -2)", have)
	}
	fc.Strafe(-0.5)
	if have := fc.Position(); !near(have, common.Vec3{-1, 0, -2}) {
		t.Errorf("have position %v after Strafe, want (-1, 0, -2)", have)
	}

	fc.RotateY(math.Pi / 2)
	if have := fc.Look(); !near(have, common.Vec3{1, 0, 0}) {
		t.Errorf("have look %v after RotateY, want +X", have)
	}
}

func TestFlyControllerPitchClamp(t *testing.T) {
	fc := NewFlyController()
	fc.Pitch(10)
	look := fc.Look()
	if look[1] >= 1 || look[1] < 0.99 {
		t.Errorf("have look %v, want clamped just short of straight up", look)
	}
	fc.MouseLook(0, 1e6)
	if look := fc.Look(); look[1] > -0.99 {
		t.Errorf("have look %v, want clamped just short of straight down", look)
	}
}

func TestFlyControllerLookAt(t *testing.T) {
	fc := NewFlyController(WithPosition(common.Vec3{0, 0, 5}), WithTarget(common.Vec3{5, 0, 5}))
	if have := fc.Look(); !near(have, common.Vec3{1, 0, 0}) {
		t.Errorf("have look %v, want +X", have)
	}
	before := fc.Look()
	fc.LookAt(fc.Position())
	if have := fc.Look(); !near(have, before) {
		t.Errorf("looking at own position changed look to %v", have)
	}
}

func TestCameraFrameConstants(t *testing.T) {
	ctrl := NewFlyController(WithPosition(common.Vec3{0, 2, 8}), WithTarget(common.Vec3{}))
	cam := NewCamera(WithController(ctrl), WithAspect(16.0/9.0), WithClipPlanes(0.5, 50))

	fc := cam.FrameConstants(1280, 720, 4)
	if fc.Eye != (common.Vec3{0, 2, 8}) || fc.Width != 1280 || fc.Height != 720 || fc.LightCount != 4 {
		t.Errorf("have %+v", fc)
	}
	if fc.Near != 0.5 || fc.Far != 50 {
		t.Errorf("have clip planes (%v, %v), want (0.5, 50)", fc.Near, fc.Far)
	}
	if have := fc.View.TransformPoint(common.Vec3{0, 2, 8}); !near(have, common.Vec3{}) {
		t.Errorf("eye maps to %v in view space, want the origin", have)
	}

	f := cam.Frustum()
	if !f.SphereVisible(common.Vec3{}, 0.5) {
		t.Error("target outside the frustum")
	}
	if f.SphereVisible(common.Vec3{0, 2, 20}, 0.5) {
		t.Error("point behind the camera inside the frustum")
	}

	ctrl.Walk(1)
	if cam.FrameConstants(1, 1, 0).Eye != (common.Vec3{0, 2, 8}) {
		t.Error("camera moved before Update")
	}
	cam.Update()
	if cam.FrameConstants(1, 1, 0).Eye == (common.Vec3{0, 2, 8}) {
		t.Error("camera did not follow the controller on Update")
	}
}

func TestCameraWithoutController(t *testing.T) {
	cam := NewCamera()
	cam.Update()
	if cam.View() != common.Identity4() {
		t.Errorf("have view %v, want identity", cam.View())
	}
	cam.SetAspect(0)
	if cam.Aspect() != 1 {
		t.Errorf("have aspect %v, want 1 after a zero resize", cam.Aspect())
	}
}
