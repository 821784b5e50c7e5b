package shader

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoEntryPoint is returned when a shader source has no entry point for its stage.
var ErrNoEntryPoint = errors.New("shader: no entry point")

// ShaderType identifies the pipeline stage a shader is written for.
type ShaderType int

const (
	// ShaderTypeVertex is the vertex stage.
	ShaderTypeVertex ShaderType = iota

	// ShaderTypeFragment is the fragment stage.
	ShaderTypeFragment
)

func (t ShaderType) visibility() wgpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return wgpu.ShaderStageVertex
	case ShaderTypeFragment:
		return wgpu.ShaderStageFragment
	default:
		return wgpu.ShaderStageNone
	}
}

// shader is the implementation of the Shader interface.
type shader struct {
	key        string
	shaderType ShaderType
	source     string
	entryPoint string
	bindings   []Binding
	layouts    map[int]wgpu.BindGroupLayoutDescriptor
	vertex     []wgpu.VertexBufferLayout
	structs    map[string]wgslTypeLayout
}

// Shader is a pre-processed and parsed WGSL program for one pipeline stage. It is the binding
// layout contract of the stage: which groups and bindings the program expects, and how large
// each uniform struct is.
type Shader interface {
	// Key returns the unique identifier of the shader.
	Key() string

	// Type returns the stage the shader targets.
	Type() ShaderType

	// Source returns the pre-processed WGSL source.
	Source() string

	// EntryPoint returns the name of the stage entry function.
	EntryPoint() string

	// Bindings returns every @group/@binding declaration, sorted by group then binding.
	Bindings() []Binding

	// BindGroupLayoutDescriptors returns the bind group layouts keyed by group index.
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// VertexLayouts returns the vertex buffer layouts of a vertex shader's input struct.
	VertexLayouts() []wgpu.VertexBufferLayout

	// StructSize returns the host-shareable size of a struct declared in the source.
	//
	// Parameters:
	//   - name: the WGSL struct name
	//
	// Returns:
	//   - uint64: the struct size in bytes, rounded to its alignment
	//   - bool: false if the struct is unknown or contains unresolvable types
	StructSize(name string) (uint64, bool)
}

var _ Shader = &shader{}

// NewShader pre-processes and parses WGSL source for one stage.
//
// Parameters:
//   - key: a unique identifier used for labels and lookups
//   - shaderType: the stage the source is written for
//   - source: the raw WGSL source, possibly containing include directives
//   - options: functional options such as WithInclude
//
// Returns:
//   - Shader: the parsed shader
//   - error: a pre-processor error, or ErrNoEntryPoint
func NewShader(key string, shaderType ShaderType, source string, options ...ShaderBuilderOption) (Shader, error) {
	pp := newPreProcessor(options)
	processed, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}

	s := &shader{
		key:        key,
		shaderType: shaderType,
		source:     processed,
	}
	s.entryPoint = parseEntryPoint(processed, shaderType)
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %s: %w for stage %d", key, ErrNoEntryPoint, shaderType)
	}

	cleaned := stripComments(processed)
	structs := parseStructBlocks(cleaned)
	s.structs = computeStructSizes(structs)
	s.bindings = parseBindings(cleaned, s.structs)
	s.layouts = bindingLayouts(s.bindings, shaderType.visibility())
	if shaderType == ShaderTypeVertex {
		s.vertex = parseVertexLayouts(structs)
	}
	return s, nil
}

// MustShader is like NewShader but panics on error. It is meant for embedded sources.
func MustShader(key string, shaderType ShaderType, source string, options ...ShaderBuilderOption) Shader {
	s, err := NewShader(key, shaderType, source, options...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *shader) Key() string                               { return s.key }
func (s *shader) Type() ShaderType                          { return s.shaderType }
func (s *shader) Source() string                            { return s.source }
func (s *shader) EntryPoint() string                        { return s.entryPoint }
func (s *shader) Bindings() []Binding                       { return s.bindings }
func (s *shader) VertexLayouts() []wgpu.VertexBufferLayout { return s.vertex }

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.layouts
}

func (s *shader) StructSize(name string) (uint64, bool) {
	l, ok := s.structs[name]
	return l.size, ok
}
