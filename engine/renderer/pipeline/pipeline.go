package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrUnknownConfig is returned when a registry lookup misses.
	ErrUnknownConfig = errors.New("pipeline: unknown pipeline config")

	// ErrDuplicateConfig is returned when two configs are registered under one key.
	ErrDuplicateConfig = errors.New("pipeline: pipeline config already registered")

	// ErrNotReady is returned when a config is used before it was initialised.
	ErrNotReady = errors.New("pipeline: pipeline config not initialised")
)

// State is the lifecycle state of a Config.
type State int

const (
	// StateUninitialized means the GPU pipeline has not been compiled yet.
	StateUninitialized State = iota

	// StateReady means the GPU pipeline is compiled and the config may be bound.
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "Ready"
	}
	return "Uninitialized"
}

// config is the implementation of the Config interface.
type config struct {
	key string

	vertexShader, fragmentShader shader.Shader

	topology      wgpu.PrimitiveTopology
	cullMode      wgpu.CullMode
	colorFormats  []wgpu.TextureFormat
	blend         *wgpu.BlendState
	depthFormat   wgpu.TextureFormat
	depthTest     bool
	depthWrite    bool
	vertexLayouts []wgpu.VertexBufferLayout

	once    sync.Once
	mu      *sync.Mutex
	state   State
	handle  device.Pipeline
	initErr error
}

// Config is the pipeline configuration shared by every recorder of one stage type: the shader
// pair with its binding layout plus fixed-function state. It is compiled once, on first Init,
// and is immutable afterwards.
type Config interface {
	// Key returns the unique key the config is registered under.
	Key() string

	// State returns the lifecycle state of the config.
	State() State

	// Init compiles the GPU pipeline on dev. Only the first call compiles; later calls return its result.
	//
	// Parameters:
	//   - dev: the device to compile on
	//
	// Returns:
	//   - error: the compilation error, if any
	Init(dev device.Device) error

	// Pipeline returns the compiled pipeline handle, or nil before Init succeeded.
	Pipeline() device.Pipeline

	// Shader returns the shader for the given stage, or nil.
	Shader(t shader.ShaderType) shader.Shader

	// Descriptor returns the device pipeline descriptor built from the config.
	Descriptor() device.PipelineDescriptor
}

var _ Config = &config{}

// NewConfig creates an uninitialised Config.
//
// Parameters:
//   - key: the unique key of the config, typically the stage name
//   - options: functional options such as WithVertexShader and WithColorFormats
//
// Returns:
//   - Config: the new config
func NewConfig(key string, options ...ConfigBuilderOption) Config {
	c := &config{
		key:      key,
		topology: wgpu.PrimitiveTopologyTriangleList,
		cullMode: wgpu.CullModeNone,
		mu:       &sync.Mutex{},
	}
	for _, opt := range options {
		opt(c)
	}
	if c.vertexShader != nil && c.vertexLayouts == nil {
		c.vertexLayouts = c.vertexShader.VertexLayouts()
	}
	return c
}

func (c *config) Key() string { return c.key }

func (c *config) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *config) Init(dev device.Device) error {
	c.once.Do(func() {
		h, err := dev.CreatePipeline(c.Descriptor())
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.initErr = fmt.Errorf("pipeline %s: %w", c.key, err)
			return
		}
		c.handle = h
		c.state = StateReady
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

func (c *config) Pipeline() device.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *config) Shader(t shader.ShaderType) shader.Shader {
	switch t {
	case shader.ShaderTypeVertex:
		return c.vertexShader
	case shader.ShaderTypeFragment:
		return c.fragmentShader
	default:
		return nil
	}
}

func (c *config) Descriptor() device.PipelineDescriptor {
	return device.PipelineDescriptor{
		Label:         c.key,
		Vertex:        c.vertexShader,
		Fragment:      c.fragmentShader,
		Topology:      c.topology,
		CullMode:      c.cullMode,
		ColorFormats:  c.colorFormats,
		Blend:         c.blend,
		DepthFormat:   c.depthFormat,
		DepthTest:     c.depthTest,
		DepthWrite:    c.depthWrite,
		VertexLayouts: c.vertexLayouts,
	}
}
