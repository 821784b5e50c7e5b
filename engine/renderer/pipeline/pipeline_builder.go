package pipeline

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ConfigBuilderOption is a functional option used to configure a Config during construction.
type ConfigBuilderOption func(*config)

// WithVertexShader sets the vertex shader for this config.
//
// Parameters:
//   - s: the vertex shader
//
// Returns:
//   - ConfigBuilderOption: a function that sets the vertex shader
func WithVertexShader(s shader.Shader) ConfigBuilderOption {
	return func(c *config) {
		c.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this config.
//
// Parameters:
//   - s: the fragment shader
//
// Returns:
//   - ConfigBuilderOption: a function that sets the fragment shader
func WithFragmentShader(s shader.Shader) ConfigBuilderOption {
	return func(c *config) {
		c.fragmentShader = s
	}
}

// WithTopology sets the primitive topology. Defaults to a triangle list.
func WithTopology(t wgpu.PrimitiveTopology) ConfigBuilderOption {
	return func(c *config) {
		c.topology = t
	}
}

// WithCullMode sets the face culling mode. Defaults to no culling.
func WithCullMode(m wgpu.CullMode) ConfigBuilderOption {
	return func(c *config) {
		c.cullMode = m
	}
}

// WithColorFormats sets the formats of the color render targets, in attachment order.
// wgpu.TextureFormatUndefined resolves to the swap chain format.
//
// Parameters:
//   - formats: the render target formats
//
// Returns:
//   - ConfigBuilderOption: a function that sets the color formats
func WithColorFormats(formats ...wgpu.TextureFormat) ConfigBuilderOption {
	return func(c *config) {
		c.colorFormats = formats
	}
}

// WithDepth enables a depth attachment.
//
// Parameters:
//   - format: the depth buffer format
//   - test: whether fragments are depth tested
//   - write: whether fragments write depth
//
// Returns:
//   - ConfigBuilderOption: a function that sets the depth state
func WithDepth(format wgpu.TextureFormat, test, write bool) ConfigBuilderOption {
	return func(c *config) {
		c.depthFormat = format
		c.depthTest = test
		c.depthWrite = write
	}
}

// WithVertexLayouts overrides the vertex buffer layouts parsed from the vertex shader.
func WithVertexLayouts(layouts ...wgpu.VertexBufferLayout) ConfigBuilderOption {
	return func(c *config) {
		c.vertexLayouts = layouts
	}
}

// WithBlendState sets the blend state applied to every color target. Nil disables blending.
//
// Parameters:
//   - b: the blend state
//
// Returns:
//   - ConfigBuilderOption: a function that sets the blend state
func WithBlendState(b *wgpu.BlendState) ConfigBuilderOption {
	return func(c *config) {
		c.blend = b
	}
}

// AdditiveBlend returns a blend state that adds the fragment color onto the target, used by
// passes that accumulate lighting into a shared color buffer.
func AdditiveBlend() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}
