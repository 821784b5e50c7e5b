package upload

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Ring is a set of per-frame constant buffers, one per queued frame slot. Slot i may only be
// rewritten once the frame fence has retired the frame that last read it; the caller enforces
// this by writing after fence.Controller.BeginFrame.
type Ring interface {
	// Write uploads fc into the buffer of slot.
	//
	// Parameters:
	//   - slot: the frame slot index
	//   - fc: the constants to upload
	//
	// Returns:
	//   - error: the device error, if any
	Write(slot int, fc *FrameConstants) error

	// Buffer returns the constant buffer of slot.
	Buffer(slot int) device.Buffer

	// Last returns the constants most recently written to slot, or nil.
	Last(slot int) *FrameConstants

	// SlotCount returns the number of buffers in the ring.
	SlotCount() int

	// Release frees every buffer of the ring.
	Release()
}

type ring struct {
	mu      *sync.Mutex
	dev     device.Device
	buffers []device.Buffer
	last    []*FrameConstants
	logger  *slog.Logger
}

var _ Ring = &ring{}

// NewRing allocates slots frame constant buffers on dev.
//
// Parameters:
//   - dev: the device to allocate on
//   - slots: the number of queued frames
//   - options: functional options such as WithLogger
//
// Returns:
//   - Ring: the new ring
//   - error: an allocation error
func NewRing(dev device.Device, slots int, options ...RingBuilderOption) (Ring, error) {
	if dev == nil {
		panic("upload: NewRing requires a device")
	}
	r := &ring{
		mu:      &sync.Mutex{},
		dev:     dev,
		buffers: make([]device.Buffer, slots),
		last:    make([]*FrameConstants, slots),
		logger:  common.Logger(),
	}
	for _, opt := range options {
		opt(r)
	}

	size := uint64((&GPUFrameConstants{}).Size())
	for i := range slots {
		buf, err := dev.CreateBuffer(device.BufferDescriptor{
			Label: fmt.Sprintf("FrameConstants[%d]", i),
			Size:  size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			r.Release()
			return nil, fmt.Errorf("upload: frame constants %d: %w", i, err)
		}
		r.buffers[i] = buf
	}
	return r, nil
}

func (r *ring) Write(slot int, fc *FrameConstants) error {
	gpu := fc.GPU()
	if err := r.dev.Queue().WriteBuffer(r.buffers[slot], 0, gpu.Marshal()); err != nil {
		return fmt.Errorf("upload: slot %d: %w", slot, err)
	}
	snapshot := *fc
	r.mu.Lock()
	r.last[slot] = &snapshot
	r.mu.Unlock()
	r.logger.Debug("frame constants uploaded", "slot", slot, "lights", fc.LightCount)
	return nil
}

func (r *ring) Buffer(slot int) device.Buffer {
	return r.buffers[slot]
}

func (r *ring) Last(slot int) *FrameConstants {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[slot]
}

func (r *ring) SlotCount() int {
	return len(r.buffers)
}

func (r *ring) Release() {
	for _, b := range r.buffers {
		if b != nil {
			b.Release()
		}
	}
}
