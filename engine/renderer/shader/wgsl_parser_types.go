package shader

import "github.com/cogentcore/webgpu/wgpu"

// BindingKind classifies a resource declaration.
type BindingKind int

const (
	BindingKindUniform BindingKind = iota
	BindingKindStorage
	BindingKindReadOnlyStorage
	BindingKindTexture
	BindingKindDepthTexture
	BindingKindSampler
	BindingKindUnknown
)

// Binding is one @group(G) @binding(B) declaration.
type Binding struct {
	Group   int
	Binding int
	Name    string
	Type    string
	Kind    BindingKind

	// MinSize is the resolved size of a buffer binding's type, 0 when unknown or not a buffer.
	MinSize uint64
}

// wgslTypeLayout holds the byte size and alignment of a WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

type parsedField struct {
	name     string
	typeName string
	location int
	builtin  bool
}

type parsedStruct struct {
	name   string
	fields []parsedField
}

type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}
