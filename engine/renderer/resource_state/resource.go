package resource_state

import (
	"fmt"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

var nextResourceID atomic.Uint64

// Resource is an opaque handle to a device-memory texture or buffer.
// It carries identity and shape only; its access state lives in a Tracker.
type Resource struct {
	ID     uint64
	Label  string
	Format wgpu.TextureFormat
	Width  uint32
	Height uint32
}

// Source resolves to the Resource that should be used for the current frame.
// A plain *Resource resolves to itself; a swap chain resolves to its current back buffer.
type Source interface {
	Resource() *Resource
}

var _ Source = &Resource{}

// NewResource creates a Resource with a process-unique ID.
//
// Parameters:
//   - label: a debug label
//   - format: the texture format of the resource
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - *Resource: the new resource handle
func NewResource(label string, format wgpu.TextureFormat, width, height uint32) *Resource {
	return &Resource{
		ID:     nextResourceID.Add(1),
		Label:  label,
		Format: format,
		Width:  width,
		Height: height,
	}
}

// Resource returns r.
func (r *Resource) Resource() *Resource {
	return r
}

// String returns the label of the resource, or its ID when unlabeled.
func (r *Resource) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.Label != "" {
		return r.Label
	}
	return fmt.Sprintf("resource#%d", r.ID)
}
