package upload

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

const layoutSource = `//@deferred:include frame_constants
//@deferred:include point_light
@group(0) @binding(0) var<uniform> frame: FrameConstants;
@group(0) @binding(1) var<storage, read> lights: array<PointLight>;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(frame.screen_size, 0.0, 1.0);
}
`

func TestWireLayoutMatchesWGSL(t *testing.T) {
	s, err := shader.NewShader("layout", shader.ShaderTypeFragment, layoutSource,
		shader.WithInclude("frame_constants", GPUFrameConstantsSource),
		shader.WithInclude("point_light", GPUPointLightSource),
	)
	if err != nil {
		t.Fatal(err)
	}

	size, ok := s.StructSize("FrameConstants")
	if !ok {
		t.Fatal("FrameConstants not parsed")
	}
	fc := GPUFrameConstants{}
	if have := fc.Size(); uint64(have) != size || have != 304 {
		t.Errorf("have Go size %d, WGSL size %d, want 304", have, size)
	}
	if have := len(fc.Marshal()); have != 304 {
		t.Errorf("have marshaled length %d, want 304", have)
	}

	lightSize, ok := s.StructSize("PointLight")
	pl := GPUPointLight{}
	if !ok || uint64(pl.Size()) != lightSize {
		t.Errorf("have Go light size %d, WGSL size %d", pl.Size(), lightSize)
	}
}

func TestFrameConstantsMarshal(t *testing.T) {
	fc := FrameConstants{
		View:       common.Identity4(),
		Proj:       common.Perspective(math.Pi/3, 16.0/9.0, 0.1, 100),
		Eye:        common.Vec3{1, 2, 3},
		Width:      1280,
		Height:     720,
		Near:       0.1,
		Far:        100,
		LightCount: 7,
	}
	gpu := fc.GPU()
	buf := gpu.Marshal()

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	if f32(0) != 1 || f32(20) != 1 {
		t.Errorf("view is not identity on the diagonal")
	}
	if have := [4]float32{f32(256), f32(260), f32(264), f32(268)}; have != [4]float32{1, 2, 3, 1} {
		t.Errorf("have eye %v", have)
	}
	if f32(272) != 1280 || f32(276) != 720 {
		t.Errorf("have screen %v x %v", f32(272), f32(276))
	}
	if f32(280) != 0.1 || f32(284) != 100 {
		t.Errorf("have near/far %v/%v", f32(280), f32(284))
	}
	if have := binary.LittleEndian.Uint32(buf[288:]); have != 7 {
		t.Errorf("have light count %d, want 7", have)
	}

	// proj * invProj should be identity
	prod := fc.Proj.Mul(gpu.InvProj)
	id := common.Identity4()
	for i := range prod {
		if math.Abs(float64(prod[i]-id[i])) > 1e-4 {
			t.Fatalf("proj * invProj [%d] = %v", i, prod[i])
		}
	}
}

func TestMarshalPointLightsEmpty(t *testing.T) {
	if have := len(MarshalPointLights(nil)); have != 32 {
		t.Errorf("have %d bytes for zero lights, want 32", have)
	}
	two := MarshalPointLights([]GPUPointLight{{Range: 1}, {Range: 2}})
	if len(two) != 64 {
		t.Fatalf("have %d bytes, want 64", len(two))
	}
	if math.Float32frombits(binary.LittleEndian.Uint32(two[44:])) != 2 {
		t.Errorf("second light range misplaced")
	}
}

func TestRingWrite(t *testing.T) {
	d := device.NewSimulatedDevice()
	defer d.Release()

	r, err := NewRing(d, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.SlotCount() != 3 {
		t.Fatalf("have %d slots, want 3", r.SlotCount())
	}
	fc := &FrameConstants{View: common.Identity4(), Proj: common.Identity4(), Width: 64, Height: 32}
	if err := r.Write(1, fc); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	want := fc.GPU()
	if !bytes.Equal(device.Contents(r.Buffer(1)), want.Marshal()) {
		t.Errorf("slot 1 contents differ from marshaled constants")
	}
	if r.Last(0) != nil {
		t.Errorf("slot 0 written unexpectedly")
	}
	if r.Last(1).Width != 64 {
		t.Errorf("have last width %d", r.Last(1).Width)
	}
}
