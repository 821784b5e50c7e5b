package device

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*deviceConfig)

type deviceConfig struct {
	backend              BackendType
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	width, height        uint32
	swapChainBuffers     int
	swapChainFormat      wgpu.TextureFormat
	presentMode          PresentMode
	autoComplete         bool
	logger               *slog.Logger
}

func newDeviceConfig(options []DeviceBuilderOption) *deviceConfig {
	cfg := &deviceConfig{
		backend:          BackendTypeSimulated,
		width:            1280,
		height:           720,
		swapChainBuffers: 3,
		swapChainFormat:  wgpu.TextureFormatBGRA8Unorm,
		presentMode:      PresentModeVSync,
	}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.swapChainBuffers < 2 {
		cfg.swapChainBuffers = 2
	}
	if cfg.logger == nil {
		cfg.logger = common.Logger()
	}
	return cfg
}

// WithBackend selects the backend implementation. Defaults to BackendTypeSimulated.
//
// Parameters:
//   - b: the backend to use
//
// Returns:
//   - DeviceBuilderOption: a function that sets the backend
func WithBackend(b BackendType) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.backend = b
	}
}

// WithSurfaceDescriptor sets the native surface the wgpu backend presents to.
// Required for BackendTypeWGPU.
//
// Parameters:
//   - desc: the surface descriptor, typically from the window
//
// Returns:
//   - DeviceBuilderOption: a function that sets the surface descriptor
func WithSurfaceDescriptor(desc *wgpu.SurfaceDescriptor) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.surfaceDescriptor = desc
	}
}

// WithForceFallbackAdapter forces the wgpu backend onto the software adapter.
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithSurfaceSize sets the swap chain dimensions in pixels.
//
// Parameters:
//   - width: the surface width
//   - height: the surface height
//
// Returns:
//   - DeviceBuilderOption: a function that sets the surface size
func WithSurfaceSize(width, height uint32) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.width = width
		c.height = height
	}
}

// WithSwapChainBufferCount sets the number of back buffers. Values below 2 are raised to 2.
//
// Parameters:
//   - n: the back buffer count
//
// Returns:
//   - DeviceBuilderOption: a function that sets the back buffer count
func WithSwapChainBufferCount(n int) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.swapChainBuffers = n
	}
}

// WithSwapChainFormat sets the back buffer format used by the simulated backend.
// The wgpu backend always uses the surface's preferred format.
func WithSwapChainFormat(f wgpu.TextureFormat) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.swapChainFormat = f
	}
}

// WithPresentMode sets the presentation mode of the swap chain.
func WithPresentMode(m PresentMode) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.presentMode = m
	}
}

// WithAutoComplete makes the simulated backend complete every fence signal as soon as it is executed.
// Without it, tests drive completion through CompleteNext and CompleteAll.
//
// Parameters:
//   - auto: whether signals complete automatically
//
// Returns:
//   - DeviceBuilderOption: a function that sets automatic fence completion
func WithAutoComplete(auto bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.autoComplete = auto
	}
}

// WithLogger sets the logger used by the device.
func WithLogger(l *slog.Logger) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.logger = l
	}
}

// NewDevice opens a Device on the configured backend.
//
// Parameters:
//   - options: functional options such as WithBackend and WithSurfaceSize
//
// Returns:
//   - Device: the opened device
//   - error: an error if the backend could not be initialised
func NewDevice(options ...DeviceBuilderOption) (Device, error) {
	cfg := newDeviceConfig(options)
	switch cfg.backend {
	case BackendTypeWGPU:
		return newWGPUDevice(cfg)
	default:
		return newSimulatedDevice(cfg), nil
	}
}
