package pass

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

// passConfig collects the options of every recorder. Each recorder reads only the fields of its stage.
type passConfig struct {
	logger *slog.Logger
	label  string

	// geometry
	meshes     []Mesh
	recorders  int
	culling    bool
	clearColor common.Color

	// ambient occlusion and blur
	ambientOcclusion GPUAmbientOcclusionParams
	blurRadius       uint32

	// lighting
	ambient     GPUAmbientParams
	environment GPUEnvironmentParams
	lights      []upload.GPUPointLight

	// tone mapping and post process
	toneMapping GPUToneMappingParams
	postProcess GPUPostProcessParams
}

func newPassConfig(options []PassBuilderOption) *passConfig {
	c := &passConfig{
		logger:           common.Logger(),
		recorders:        1,
		ambientOcclusion: GPUAmbientOcclusionParams{Radius: 0.5, Bias: 0.05, Intensity: 1, SampleCount: 8},
		blurRadius:       2,
		ambient:          GPUAmbientParams{Color: [4]float32{1, 1, 1, 0.2}},
		environment: GPUEnvironmentParams{
			SkyColor:     [4]float32{0.35, 0.45, 0.6, 1},
			GroundColor:  [4]float32{0.15, 0.12, 0.1, 1},
			SunDirection: [4]float32{-0.3, -1, -0.2, 1.5},
		},
		toneMapping: GPUToneMappingParams{Exposure: 1, Gamma: 2.2},
		postProcess: GPUPostProcessParams{Vignette: 0.3, Saturation: 1},
	}
	for _, opt := range options {
		opt(c)
	}
	c.recorders = max(c.recorders, 1)
	return c
}

// PassBuilderOption is a functional option used to configure a recorder during construction.
type PassBuilderOption func(*passConfig)

// WithLogger sets the logger used by the recorder.
func WithLogger(l *slog.Logger) PassBuilderOption {
	return func(c *passConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLabel overrides the debug label of the recorder's command ring. Defaults to the stage key.
func WithLabel(label string) PassBuilderOption {
	return func(c *passConfig) {
		c.label = label
	}
}

// WithMeshes sets the meshes drawn by the geometry pass.
//
// Parameters:
//   - meshes: the meshes to draw
//
// Returns:
//   - PassBuilderOption: a function that sets the meshes
func WithMeshes(meshes ...Mesh) PassBuilderOption {
	return func(c *passConfig) {
		c.meshes = append(c.meshes, meshes...)
	}
}

// WithRecorders sets how many command buffers the geometry pass records in parallel.
// Meshes are distributed round-robin; the first buffer also clears the geometry buffers.
//
// Parameters:
//   - n: the recorder count, at least 1
//
// Returns:
//   - PassBuilderOption: a function that sets the recorder count
func WithRecorders(n int) PassBuilderOption {
	return func(c *passConfig) {
		c.recorders = n
	}
}

// WithFrustumCulling skips meshes whose bounding sphere lies outside the camera frustum.
func WithFrustumCulling(enabled bool) PassBuilderOption {
	return func(c *passConfig) {
		c.culling = enabled
	}
}

// WithClearColor sets the color the geometry buffers are cleared to.
func WithClearColor(color common.Color) PassBuilderOption {
	return func(c *passConfig) {
		c.clearColor = color
	}
}

// WithAmbientOcclusion sets the ambient occlusion estimate parameters.
//
// Parameters:
//   - radius: the sample radius in view space
//   - bias: the angle bias against self occlusion
//   - intensity: the occlusion strength
//   - samples: the number of samples per pixel
//
// Returns:
//   - PassBuilderOption: a function that sets the parameters
func WithAmbientOcclusion(radius, bias, intensity float32, samples uint32) PassBuilderOption {
	return func(c *passConfig) {
		c.ambientOcclusion = GPUAmbientOcclusionParams{Radius: radius, Bias: bias, Intensity: intensity, SampleCount: samples}
	}
}

// WithBlurRadius sets the kernel half-width of the accessibility blur.
func WithBlurRadius(radius uint32) PassBuilderOption {
	return func(c *passConfig) {
		c.blurRadius = radius
	}
}

// WithAmbientColor sets the ambient light color and intensity.
func WithAmbientColor(color [3]float32, intensity float32) PassBuilderOption {
	return func(c *passConfig) {
		c.ambient = GPUAmbientParams{Color: [4]float32{color[0], color[1], color[2], intensity}}
	}
}

// WithEnvironment sets the hemisphere colors and the sun of the environment light.
//
// Parameters:
//   - sky: the color of light from above
//   - ground: the color of light from below
//   - sunDirection: the direction the sun shines along
//   - sunIntensity: the sun's intensity
//
// Returns:
//   - PassBuilderOption: a function that sets the environment
func WithEnvironment(sky, ground [3]float32, sunDirection common.Vec3, sunIntensity float32) PassBuilderOption {
	return func(c *passConfig) {
		d := sunDirection.Normalize()
		c.environment = GPUEnvironmentParams{
			SkyColor:     [4]float32{sky[0], sky[1], sky[2], 1},
			GroundColor:  [4]float32{ground[0], ground[1], ground[2], 1},
			SunDirection: [4]float32{d[0], d[1], d[2], sunIntensity},
		}
	}
}

// WithLights sets the punctual lights. They are uploaded once, when the pass is initialised.
func WithLights(lights ...upload.GPUPointLight) PassBuilderOption {
	return func(c *passConfig) {
		c.lights = append(c.lights, lights...)
	}
}

// WithExposure sets the tone mapping exposure and output gamma.
func WithExposure(exposure, gamma float32) PassBuilderOption {
	return func(c *passConfig) {
		c.toneMapping = GPUToneMappingParams{Exposure: exposure, Gamma: gamma}
	}
}

// WithColorGrade sets the post process vignette strength and saturation.
func WithColorGrade(vignette, saturation float32) PassBuilderOption {
	return func(c *passConfig) {
		c.postProcess = GPUPostProcessParams{Vignette: vignette, Saturation: saturation}
	}
}
