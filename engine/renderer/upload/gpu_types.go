package upload

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// GPUFrameConstantsSource is the canonical WGSL definition of the FrameConstants struct.
// Matches GPUFrameConstants layout exactly (304 bytes, WGSL uniform aligned).
//
//go:embed assets/frame_constants.wgsl
var GPUFrameConstantsSource string

// GPUPointLightSource is the canonical WGSL definition of the PointLight struct.
// Matches GPUPointLight layout exactly (32 bytes).
//
//go:embed assets/point_light.wgsl
var GPUPointLightSource string

// FrameConstants is the CPU-side per-frame constant block shared by every pass of a frame.
type FrameConstants struct {
	View       common.Mat4
	Proj       common.Mat4
	Eye        common.Vec3
	Width      uint32
	Height     uint32
	Near       float32
	Far        float32
	LightCount uint32
}

// GPU converts the frame constants into their wire layout, computing the inverse matrices.
// A singular matrix yields the identity as its inverse.
//
// Returns:
//   - GPUFrameConstants: the GPU-aligned representation
func (fc *FrameConstants) GPU() GPUFrameConstants {
	invView, ok := fc.View.Invert()
	if !ok {
		invView = common.Identity4()
	}
	invProj, ok := fc.Proj.Invert()
	if !ok {
		invProj = common.Identity4()
	}
	return GPUFrameConstants{
		View:        fc.View,
		Proj:        fc.Proj,
		InvView:     invView,
		InvProj:     invProj,
		EyePosition: [4]float32{fc.Eye[0], fc.Eye[1], fc.Eye[2], 1},
		ScreenSize:  [2]float32{float32(fc.Width), float32(fc.Height)},
		NearFar:     [2]float32{fc.Near, fc.Far},
		LightCount:  fc.LightCount,
	}
}

// GPUFrameConstants is the GPU-aligned representation of the per-frame constant buffer.
// Matches the WGSL FrameConstants struct layout exactly (see GPUFrameConstantsSource).
// Size: 304 bytes.
type GPUFrameConstants struct {
	View        [16]float32 // offset   0: mat4x4<f32>
	Proj        [16]float32 // offset  64: mat4x4<f32>
	InvView     [16]float32 // offset 128: mat4x4<f32>
	InvProj     [16]float32 // offset 192: mat4x4<f32>
	EyePosition [4]float32  // offset 256: vec4<f32>, w = 1
	ScreenSize  [2]float32  // offset 272: vec2<f32>
	NearFar     [2]float32  // offset 280: vec2<f32>
	LightCount  uint32      // offset 288: u32
	_pad        [3]uint32   // offset 292: padding to 304
}

// Size returns the size of the GPUFrameConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (304)
func (g *GPUFrameConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUFrameConstants struct into a little-endian byte buffer suitable
// for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUFrameConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloats(buf[0:], g.View[:])
	putFloats(buf[64:], g.Proj[:])
	putFloats(buf[128:], g.InvView[:])
	putFloats(buf[192:], g.InvProj[:])
	putFloats(buf[256:], g.EyePosition[:])
	putFloats(buf[272:], g.ScreenSize[:])
	putFloats(buf[280:], g.NearFar[:])
	binary.LittleEndian.PutUint32(buf[288:], g.LightCount)
	return buf
}

// GPUPointLight is the GPU-aligned representation of a single punctual light.
// Matches the WGSL PointLight struct layout exactly (see GPUPointLightSource).
// Size: 32 bytes.
type GPUPointLight struct {
	Position  [3]float32 // offset  0: world-space position
	Range     float32    // offset 12: attenuation cutoff distance
	Color     [3]float32 // offset 16: linear RGB color
	Intensity float32    // offset 28: scalar multiplier
}

// Size returns the size of the GPUPointLight struct in bytes.
func (g *GPUPointLight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPointLight struct into a 32-byte little-endian buffer.
func (g *GPUPointLight) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloats(buf[0:], g.Position[:])
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(g.Range))
	putFloats(buf[16:], g.Color[:])
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(g.Intensity))
	return buf
}

// MarshalPointLights packs lights into one contiguous storage buffer payload. An empty slice
// yields a single zeroed light, since storage buffers may not be empty.
//
// Parameters:
//   - lights: the lights to pack
//
// Returns:
//   - []byte: the packed payload
func MarshalPointLights(lights []GPUPointLight) []byte {
	if len(lights) == 0 {
		return make([]byte, unsafe.Sizeof(GPUPointLight{}))
	}
	out := make([]byte, 0, len(lights)*int(unsafe.Sizeof(GPUPointLight{})))
	for i := range lights {
		out = append(out, lights[i].Marshal()...)
	}
	return out
}

func putFloats(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
