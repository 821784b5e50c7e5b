package device

import (
	"context"
	"errors"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrDeviceLost is returned by every device operation once the GPU device has been removed.
	// It is fatal and must never be retried.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrListNotOpen is returned when a command list is closed or submitted in the wrong state.
	ErrListNotOpen = errors.New("device: command list is not open")
)

// Device is the GPU device collaborator. It owns the single hardware queue, the completion
// fence, the swap chain and every GPU object created through it.
type Device interface {
	// Backend returns the backend implementation this device runs on.
	Backend() BackendType

	// Queue returns the single hardware queue of the device.
	Queue() Queue

	// Fence returns the completion fence signaled by Queue.Signal.
	Fence() Fence

	// SwapChain returns the presentation swap chain.
	SwapChain() SwapChain

	// CreateTexture allocates a 2D texture. The returned texture's Resource must be registered
	// with a resource_state.Tracker before it is transitioned.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the new texture
	//   - error: an error if allocation failed
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateBuffer allocates a GPU buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error if allocation failed
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// CreatePipeline compiles a render pipeline.
	//
	// Parameters:
	//   - desc: the pipeline descriptor
	//
	// Returns:
	//   - Pipeline: the compiled pipeline handle
	//   - error: an error if compilation failed
	CreatePipeline(desc PipelineDescriptor) (Pipeline, error)

	// CreateCommandAllocator creates the backing memory pool for command lists.
	CreateCommandAllocator(label string) (CommandAllocator, error)

	// CreateCommandList creates a command list in the closed state backed by alloc.
	CreateCommandList(alloc CommandAllocator, label string) (CommandList, error)

	// Release frees every device-level object. The device must be idle.
	Release()
}

// Queue is the single ordered hardware queue. Submission order is execution order.
type Queue interface {
	// Submit hands closed command lists to the GPU in order.
	Submit(lists ...CommandList) error

	// Signal asks the GPU to set the fence to value once all prior submissions finished.
	Signal(value uint64) error

	// WriteBuffer schedules a CPU-to-GPU copy into buf, ordered before the next Submit.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
}

// Fence is a monotonically increasing completion counter written by the GPU.
type Fence interface {
	// Completed returns the latest value observed as reached by the GPU.
	Completed() uint64

	// Wait blocks until Completed() >= value, the context is done, or the device is lost.
	//
	// Parameters:
	//   - ctx: the context bounding the wait
	//   - value: the value to wait for
	//
	// Returns:
	//   - error: ctx.Err(), ErrDeviceLost, or nil once the value is reached
	Wait(ctx context.Context, value uint64) error
}

// CommandAllocator is the memory pool backing command lists. It may only be reset once
// every list recorded from it has finished executing on the GPU.
type CommandAllocator interface {
	Label() string
	Reset() error
}

// CommandList records GPU commands between Reset and Close.
type CommandList interface {
	Label() string

	// Reset reopens the list on alloc, bound to pipeline p (nil for barrier-only lists).
	Reset(alloc CommandAllocator, p Pipeline) error

	// Close ends recording; the list may then be submitted.
	Close() error

	SetViewport(v common.Viewport)
	SetScissor(r common.ScissorRect)
	SetRenderTargets(colors []View, depth View)
	ClearRenderTarget(v View, c common.Color)
	ClearDepth(v View, depth float32)
	SetViewTable(views []View)
	SetBindingLayout(p Pipeline)
	SetConstants(buffers []Buffer)
	SetVertexBuffer(buf Buffer)
	SetIndexBuffer(buf Buffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	ResourceBarrier(directives []resource_state.TransitionDirective)
}

// Texture is a GPU image tracked as a resource_state.Resource.
type Texture interface {
	resource_state.Source

	// View returns the default full-texture view.
	View() View

	Release()
}

// View is a bindable handle onto a texture. A View resolves its Resource per frame, which lets
// swap chain views follow the current back buffer.
type View interface {
	resource_state.Source
	Label() string
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Label() string
	Size() uint64
	Release()
}

// Pipeline is a compiled render pipeline handle.
type Pipeline interface {
	Label() string
}

// SwapChain is the ring of presentable back buffers.
type SwapChain interface {
	// BufferCount returns the number of back buffers.
	BufferCount() int

	// CurrentIndex returns the index of the back buffer being rendered this frame.
	CurrentIndex() int

	// Buffer returns the back buffer texture at index i.
	Buffer(i int) Texture

	// View returns a view that always resolves to the current back buffer.
	View() View

	// Present displays the current back buffer and advances to the next one.
	Present() error
}

// TextureDescriptor describes a texture to allocate.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
	Usage  wgpu.TextureUsage
}

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

// PipelineDescriptor describes a render pipeline to compile.
type PipelineDescriptor struct {
	Label         string
	Vertex        shader.Shader
	Fragment      shader.Shader
	Topology      wgpu.PrimitiveTopology
	CullMode      wgpu.CullMode
	ColorFormats  []wgpu.TextureFormat
	Blend         *wgpu.BlendState
	DepthFormat   wgpu.TextureFormat
	DepthTest     bool
	DepthWrite    bool
	VertexLayouts []wgpu.VertexBufferLayout
}
