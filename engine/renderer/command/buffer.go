package command

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
)

// BufferState is the lifecycle state of a CommandBuffer.
type BufferState int

const (
	// BufferOpen means the buffer is recording. Only its single writer may encode into it.
	BufferOpen BufferState = iota

	// BufferClosed means recording ended; the buffer may be pushed to a SubmissionQueue.
	BufferClosed

	// BufferRetired means the GPU finished executing the buffer and its slot may be reused.
	BufferRetired
)

func (s BufferState) String() string {
	switch s {
	case BufferOpen:
		return "Open"
	case BufferClosed:
		return "Closed"
	case BufferRetired:
		return "Retired"
	default:
		return fmt.Sprintf("BufferState(%d)", int(s))
	}
}

// CommandBuffer is one recording acquired from a Ring. It forwards encoding to the device
// command list while open; encoding into a buffer that is not open panics.
type CommandBuffer struct {
	mu       *sync.Mutex
	label    string
	slot     int
	list     device.CommandList
	pipeline device.Pipeline
	state    BufferState
	expected uint64
	retired  func() bool
}

// Label returns the debug label of the buffer, "<ring>[<slot>]".
func (b *CommandBuffer) Label() string { return b.label }

// Slot returns the ring slot the buffer was recorded in.
func (b *CommandBuffer) Slot() int { return b.slot }

// Expected returns the fence value that retires the buffer.
func (b *CommandBuffer) Expected() uint64 { return b.expected }

// Pipeline returns the pipeline the buffer was opened with, or nil for barrier-only buffers.
func (b *CommandBuffer) Pipeline() device.Pipeline { return b.pipeline }

// List returns the underlying device command list for submission.
func (b *CommandBuffer) List() device.CommandList { return b.list }

// State returns the lifecycle state. A closed buffer whose fence value has been reached
// reports BufferRetired.
func (b *CommandBuffer) State() BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BufferClosed && b.retired != nil && b.retired() {
		b.state = BufferRetired
	}
	return b.state
}

// Close ends recording.
//
// Returns:
//   - error: an error if the buffer was not open or the device refused to close the list
func (b *CommandBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BufferOpen {
		return fmt.Errorf("command: close %s in state %s: %w", b.label, b.state, device.ErrListNotOpen)
	}
	if err := b.list.Close(); err != nil {
		return fmt.Errorf("command: close %s: %w", b.label, err)
	}
	b.state = BufferClosed
	return nil
}

// retire marks the buffer done before its slot is reset. A buffer abandoned while still open has
// its list closed first; the list was never submitted, so the close result does not matter.
func (b *CommandBuffer) retire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BufferOpen {
		_ = b.list.Close()
	}
	b.state = BufferRetired
}

func (b *CommandBuffer) mustBeOpen(op string) {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	if state != BufferOpen {
		panic(fmt.Sprintf("command: %s on %s buffer %s", op, state, b.label))
	}
}

// SetViewport sets the viewport of subsequent draws.
//
// Parameters:
//   - v: the viewport in render target pixels
func (b *CommandBuffer) SetViewport(v common.Viewport) {
	b.mustBeOpen("SetViewport")
	b.list.SetViewport(v)
}

// SetScissor sets the scissor rectangle of subsequent draws.
//
// Parameters:
//   - r: the scissor rectangle in render target pixels
func (b *CommandBuffer) SetScissor(r common.ScissorRect) {
	b.mustBeOpen("SetScissor")
	b.list.SetScissor(r)
}

// SetRenderTargets binds the color outputs and the optional depth target.
//
// Parameters:
//   - colors: the color targets in attachment order
//   - depth: the depth target, or nil
func (b *CommandBuffer) SetRenderTargets(colors []device.View, depth device.View) {
	b.mustBeOpen("SetRenderTargets")
	b.list.SetRenderTargets(colors, depth)
}

// ClearRenderTarget clears the color target v to c.
func (b *CommandBuffer) ClearRenderTarget(v device.View, c common.Color) {
	b.mustBeOpen("ClearRenderTarget")
	b.list.ClearRenderTarget(v, c)
}

// ClearDepth clears the depth target v to depth.
func (b *CommandBuffer) ClearDepth(v device.View, depth float32) {
	b.mustBeOpen("ClearDepth")
	b.list.ClearDepth(v, depth)
}

// SetViewTable binds the shader-readable views in binding order.
//
// Parameters:
//   - views: the input views of the pass
func (b *CommandBuffer) SetViewTable(views []device.View) {
	b.mustBeOpen("SetViewTable")
	b.list.SetViewTable(views)
}

// SetBindingLayout binds the binding layout of the pipeline the buffer was opened with.
func (b *CommandBuffer) SetBindingLayout() {
	b.mustBeOpen("SetBindingLayout")
	b.list.SetBindingLayout(b.pipeline)
}

// SetConstants binds constant buffers in binding order.
//
// Parameters:
//   - buffers: the uniform buffers
func (b *CommandBuffer) SetConstants(buffers []device.Buffer) {
	b.mustBeOpen("SetConstants")
	b.list.SetConstants(buffers)
}

// SetVertexBuffer binds the vertex buffer of subsequent indexed draws.
func (b *CommandBuffer) SetVertexBuffer(buf device.Buffer) {
	b.mustBeOpen("SetVertexBuffer")
	b.list.SetVertexBuffer(buf)
}

// SetIndexBuffer binds the index buffer of subsequent indexed draws.
func (b *CommandBuffer) SetIndexBuffer(buf device.Buffer) {
	b.mustBeOpen("SetIndexBuffer")
	b.list.SetIndexBuffer(buf)
}

// Draw records a non-indexed draw.
//
// Parameters:
//   - vertexCount: vertices per instance
//   - instanceCount: number of instances
func (b *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	b.mustBeOpen("Draw")
	b.list.Draw(vertexCount, instanceCount)
}

// DrawIndexed records an indexed draw from the bound vertex and index buffers.
//
// Parameters:
//   - indexCount: indices per instance
//   - instanceCount: number of instances
func (b *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	b.mustBeOpen("DrawIndexed")
	b.list.DrawIndexed(indexCount, instanceCount)
}

// ResourceBarrier records transition directives. An empty slice records nothing.
func (b *CommandBuffer) ResourceBarrier(directives []resource_state.TransitionDirective) {
	b.mustBeOpen("ResourceBarrier")
	if len(directives) == 0 {
		return
	}
	b.list.ResourceBarrier(directives)
}
