package pass

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// GPUObjectConstantsSource is the canonical WGSL definition of the ObjectConstants struct.
// Matches GPUObjectConstants layout exactly (96 bytes).
//
//go:embed assets/object_constants.wgsl
var GPUObjectConstantsSource string

// GPUPassParamsSource holds the WGSL parameter structs of the screen-space passes. Each struct
// matches the Go type of the same name.
//
//go:embed assets/pass_params.wgsl
var GPUPassParamsSource string

// GPUObjectConstants is the per-mesh constant block of the geometry pass.
// Size: 96 bytes.
type GPUObjectConstants struct {
	World     [16]float32 // offset  0: model-to-world matrix
	BaseColor [4]float32  // offset 64: linear RGBA base color
	Material  [4]float32  // offset 80: x = metal mask, y = smoothness
}

// Size returns the size of the GPUObjectConstants struct in bytes.
func (g *GPUObjectConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUObjectConstants struct for GPU upload.
func (g *GPUObjectConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloats(buf[0:], g.World[:])
	putFloats(buf[64:], g.BaseColor[:])
	putFloats(buf[80:], g.Material[:])
	return buf
}

// GPUAmbientOcclusionParams configures the ambient occlusion estimate. Size: 16 bytes.
type GPUAmbientOcclusionParams struct {
	Radius      float32 // offset  0: sample radius in view space
	Bias        float32 // offset  4: angle bias against self occlusion
	Intensity   float32 // offset  8: occlusion strength
	SampleCount uint32  // offset 12: samples per pixel
}

// Marshal serializes the GPUAmbientOcclusionParams struct for GPU upload.
func (g *GPUAmbientOcclusionParams) Marshal() []byte {
	buf := make([]byte, 16)
	putFloats(buf[0:], []float32{g.Radius, g.Bias, g.Intensity})
	binary.LittleEndian.PutUint32(buf[12:], g.SampleCount)
	return buf
}

// GPUBlurParams configures the box blur of the accessibility buffer. Size: 16 bytes.
type GPUBlurParams struct {
	Radius uint32 // offset 0: kernel half-width in pixels
	_pad   [3]uint32
}

// Marshal serializes the GPUBlurParams struct for GPU upload.
func (g *GPUBlurParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], g.Radius)
	return buf
}

// GPUAmbientParams is the ambient light color; A scales the intensity. Size: 16 bytes.
type GPUAmbientParams struct {
	Color [4]float32
}

// Marshal serializes the GPUAmbientParams struct for GPU upload.
func (g *GPUAmbientParams) Marshal() []byte {
	buf := make([]byte, 16)
	putFloats(buf, g.Color[:])
	return buf
}

// GPUEnvironmentParams describes the hemisphere and sun used for environment lighting. Size: 48 bytes.
type GPUEnvironmentParams struct {
	SkyColor     [4]float32 // offset  0
	GroundColor  [4]float32 // offset 16
	SunDirection [4]float32 // offset 32: xyz direction the sun shines along, w intensity
}

// Marshal serializes the GPUEnvironmentParams struct for GPU upload.
func (g *GPUEnvironmentParams) Marshal() []byte {
	buf := make([]byte, 48)
	putFloats(buf[0:], g.SkyColor[:])
	putFloats(buf[16:], g.GroundColor[:])
	putFloats(buf[32:], g.SunDirection[:])
	return buf
}

// GPUToneMappingParams configures Reinhard tone mapping. Size: 16 bytes.
type GPUToneMappingParams struct {
	Exposure float32
	Gamma    float32
	_pad     [2]float32
}

// Marshal serializes the GPUToneMappingParams struct for GPU upload.
func (g *GPUToneMappingParams) Marshal() []byte {
	buf := make([]byte, 16)
	putFloats(buf, []float32{g.Exposure, g.Gamma})
	return buf
}

// GPUPostProcessParams configures the final color grade. Size: 16 bytes.
type GPUPostProcessParams struct {
	Vignette   float32
	Saturation float32
	_pad       [2]float32
}

// Marshal serializes the GPUPostProcessParams struct for GPU upload.
func (g *GPUPostProcessParams) Marshal() []byte {
	buf := make([]byte, 16)
	putFloats(buf, []float32{g.Vignette, g.Saturation})
	return buf
}

func objectConstants(world common.Mat4, baseColor [4]float32, metalMask, smoothness float32) GPUObjectConstants {
	return GPUObjectConstants{World: world, BaseColor: baseColor, Material: [4]float32{metalMask, smoothness}}
}

func putFloats(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
