package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/fence"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
)

// ErrRingOverrun is returned when a ring slot is acquired twice within the frame being built.
// Waiting for it would deadlock, since its fence value is only signaled at the end of that frame.
var ErrRingOverrun = errors.New("command: ring overrun")

type ringSlot struct {
	alloc    device.CommandAllocator
	list     device.CommandList
	expected uint64
	last     *CommandBuffer
}

// Ring is a per-recorder ring of command allocators and lists, one per queued frame. A slot is
// reused only after the frame fence has passed the value recorded when it was last acquired.
type Ring interface {
	// AcquireNext opens the next slot round-robin. It blocks until the GPU has retired the slot's
	// previous recording, resets its allocator, and opens a buffer bound to cfg.
	//
	// Parameters:
	//   - ctx: bounds the fence wait
	//   - cfg: the pipeline configuration to bind, or nil for a barrier-only buffer
	//
	// Returns:
	//   - *CommandBuffer: the open buffer
	//   - error: ErrRingOverrun, pipeline.ErrNotReady, ctx.Err() or a device error
	AcquireNext(ctx context.Context, cfg pipeline.Config) (*CommandBuffer, error)

	// Label returns the ring's debug label.
	Label() string

	// Size returns the number of slots.
	Size() int
}

type ring struct {
	mu     *sync.Mutex
	label  string
	fences *fence.Controller
	slots  []ringSlot
	next   int
	logger *slog.Logger
}

var _ Ring = &ring{}

// NewRing creates a ring with one allocator and command list per queued frame of fences.
//
// Parameters:
//   - dev: the device that creates the allocators and lists
//   - fences: the frame fence controller gating slot reuse
//   - options: functional options such as WithLabel
//
// Returns:
//   - Ring: the new ring
//   - error: a device error from allocation
func NewRing(dev device.Device, fences *fence.Controller, options ...RingBuilderOption) (Ring, error) {
	if dev == nil || fences == nil {
		panic("command: NewRing requires a device and a fence controller")
	}
	r := &ring{
		mu:     &sync.Mutex{},
		label:  "ring",
		fences: fences,
		logger: common.Logger(),
	}
	for _, opt := range options {
		opt(r)
	}

	r.slots = make([]ringSlot, fences.SlotCount())
	for i := range r.slots {
		name := fmt.Sprintf("%s[%d]", r.label, i)
		alloc, err := dev.CreateCommandAllocator(name)
		if err != nil {
			return nil, fmt.Errorf("command: allocator %s: %w", name, err)
		}
		list, err := dev.CreateCommandList(alloc, name)
		if err != nil {
			return nil, fmt.Errorf("command: list %s: %w", name, err)
		}
		r.slots[i] = ringSlot{alloc: alloc, list: list}
	}
	return r, nil
}

func (r *ring) Label() string { return r.label }

func (r *ring) Size() int { return len(r.slots) }

func (r *ring) AcquireNext(ctx context.Context, cfg pipeline.Config) (*CommandBuffer, error) {
	var handle device.Pipeline
	if cfg != nil {
		if cfg.State() != pipeline.StateReady {
			return nil, fmt.Errorf("command: %s: %w: %s", r.label, pipeline.ErrNotReady, cfg.Key())
		}
		handle = cfg.Pipeline()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.next
	slot := &r.slots[idx]
	pending := r.fences.PendingValue()
	if slot.expected == pending {
		return nil, fmt.Errorf("%w: %s[%d] already recorded for fence value %d", ErrRingOverrun, r.label, idx, pending)
	}

	if slot.expected > r.fences.Completed() {
		r.logger.Debug("ring slot waiting on fence", "ring", r.label, "slot", idx, "value", slot.expected)
	}
	if err := r.fences.WaitFor(ctx, slot.expected); err != nil {
		return nil, fmt.Errorf("command: %s[%d]: %w", r.label, idx, err)
	}
	if slot.last != nil {
		slot.last.retire()
	}

	if err := slot.alloc.Reset(); err != nil {
		return nil, fmt.Errorf("command: %s[%d]: %w", r.label, idx, err)
	}
	if err := slot.list.Reset(slot.alloc, handle); err != nil {
		return nil, fmt.Errorf("command: %s[%d]: %w", r.label, idx, err)
	}

	slot.expected = pending
	buf := &CommandBuffer{
		mu:       &sync.Mutex{},
		label:    fmt.Sprintf("%s[%d]", r.label, idx),
		slot:     idx,
		list:     slot.list,
		pipeline: handle,
		state:    BufferOpen,
		expected: pending,
		retired:  func() bool { return r.fences.Completed() >= pending },
	}
	slot.last = buf
	r.next = (idx + 1) % len(r.slots)
	return buf, nil
}
