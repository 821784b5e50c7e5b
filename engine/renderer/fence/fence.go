// Package fence paces the CPU against the GPU. It owns the N frame-in-flight slots, signals the
// device queue at the end of every frame and gates reuse of a slot's per-frame resources until
// the GPU has reached the value recorded the last time the slot was submitted.
package fence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
)

// ErrInvalidQueuedFrames is returned when the queued frame count is outside [MinQueuedFrames, MaxQueuedFrames].
var ErrInvalidQueuedFrames = errors.New("fence: invalid queued frame count")

const (
	// DefaultQueuedFrames is the number of frames that may be in flight when none is configured.
	DefaultQueuedFrames = 3
	MinQueuedFrames     = 1
	MaxQueuedFrames     = 8
)

// SlotState is the lifecycle state of a frame slot.
type SlotState int

const (
	// SlotIdle means the slot has never been submitted.
	SlotIdle SlotState = iota
	// SlotSubmitted means the slot's work was signaled and may still be executing.
	SlotSubmitted
	// SlotRetired means the GPU reached the slot's expected value; its resources may be reused.
	SlotRetired
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotSubmitted:
		return "Submitted"
	case SlotRetired:
		return "Retired"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

type frameSlot struct {
	state    SlotState
	expected uint64
}

// Controller is the frame fence controller. BeginFrame and EndFrame must be called from the
// frame driver goroutine; the remaining methods are safe for concurrent use.
type Controller struct {
	mu     *sync.Mutex
	dev    device.Device
	slots  []frameSlot
	index  int
	value  uint64
	logger *slog.Logger
}

// NewController creates a fence controller for dev.
//
// Parameters:
//   - dev: the device whose queue and fence are driven
//   - options: functional options such as WithQueuedFrames
//
// Returns:
//   - *Controller: the new controller
//   - error: ErrInvalidQueuedFrames if the configured count is out of range
func NewController(dev device.Device, options ...ControllerBuilderOption) (*Controller, error) {
	if dev == nil {
		panic("fence: NewController requires a device")
	}
	c := &controllerConfig{queuedFrames: DefaultQueuedFrames}
	for _, opt := range options {
		opt(c)
	}
	if c.queuedFrames < MinQueuedFrames || c.queuedFrames > MaxQueuedFrames {
		return nil, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidQueuedFrames, c.queuedFrames, MinQueuedFrames, MaxQueuedFrames)
	}
	if c.logger == nil {
		c.logger = common.Logger()
	}
	return &Controller{
		mu:     &sync.Mutex{},
		dev:    dev,
		slots:  make([]frameSlot, c.queuedFrames),
		logger: c.logger,
	}, nil
}

// BeginFrame waits until the GPU is done with the current slot's previous frame and marks the slot retired.
// After it returns, every per-frame resource indexed by SlotIndex may be rewritten.
//
// Parameters:
//   - ctx: bounds the wait
//
// Returns:
//   - error: ctx.Err() or device.ErrDeviceLost
func (c *Controller) BeginFrame(ctx context.Context) error {
	c.mu.Lock()
	s := c.slots[c.index]
	idx := c.index
	c.mu.Unlock()

	if s.state == SlotSubmitted {
		if c.dev.Fence().Completed() < s.expected {
			c.logger.Debug("waiting for frame slot", "slot", idx, "expected", s.expected)
		}
		if err := c.dev.Fence().Wait(ctx, s.expected); err != nil {
			return fmt.Errorf("fence: begin frame slot %d: %w", idx, err)
		}
	}

	c.mu.Lock()
	if c.slots[idx].state == SlotSubmitted {
		c.slots[idx].state = SlotRetired
	}
	c.mu.Unlock()
	return nil
}

// PendingValue returns the fence value the frame being built will signal.
func (c *Controller) PendingValue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value + 1
}

// EndFrame signals the device queue with PendingValue, stores it as the current slot's expected
// value and advances to the next slot.
//
// Returns:
//   - error: device.ErrDeviceLost if the signal could not be queued
func (c *Controller) EndFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.value + 1
	if err := c.dev.Queue().Signal(next); err != nil {
		return fmt.Errorf("fence: signal %d: %w", next, err)
	}
	c.value = next
	c.slots[c.index] = frameSlot{state: SlotSubmitted, expected: next}
	c.index = (c.index + 1) % len(c.slots)
	return nil
}

// WaitFor blocks until the GPU has reached v.
func (c *Controller) WaitFor(ctx context.Context, v uint64) error {
	if err := c.dev.Fence().Wait(ctx, v); err != nil {
		return fmt.Errorf("fence: wait for %d: %w", v, err)
	}
	return nil
}

// Flush signals a sentinel value and waits for it, guaranteeing no GPU work is outstanding.
// Every submitted slot is retired afterwards.
//
// Parameters:
//   - ctx: bounds the wait
//
// Returns:
//   - error: ctx.Err() or device.ErrDeviceLost
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.value++
	sentinel := c.value
	err := c.dev.Queue().Signal(sentinel)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("fence: flush signal %d: %w", sentinel, err)
	}

	if err := c.WaitFor(ctx, sentinel); err != nil {
		return err
	}

	c.mu.Lock()
	for i := range c.slots {
		if c.slots[i].state == SlotSubmitted {
			c.slots[i].state = SlotRetired
		}
	}
	c.mu.Unlock()
	c.logger.Debug("command queue flushed", "value", sentinel)
	return nil
}

// SlotIndex returns the index of the slot the current frame uses.
func (c *Controller) SlotIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// SlotCount returns the number of frame slots (the queued frame count).
func (c *Controller) SlotCount() int {
	return len(c.slots)
}

// SlotState returns the state and expected value of slot i.
func (c *Controller) SlotState(i int) (SlotState, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[i]
	return s.state, s.expected
}

// Completed returns the latest fence value observed as reached by the GPU.
func (c *Controller) Completed() uint64 {
	return c.dev.Fence().Completed()
}
