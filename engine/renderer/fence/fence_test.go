package fence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
)

func TestNewControllerQueuedFrames(t *testing.T) {
	d := device.NewSimulatedDevice()
	defer d.Release()

	for _, n := range []int{0, 9, -1} {
		if _, err := NewController(d, WithQueuedFrames(n)); !errors.Is(err, ErrInvalidQueuedFrames) {
			t.Errorf("n=%d: have %v, want ErrInvalidQueuedFrames", n, err)
		}
	}
	c, err := NewController(d)
	if err != nil {
		t.Fatal(err)
	}
	if c.SlotCount() != DefaultQueuedFrames {
		t.Errorf("have %d slots, want %d", c.SlotCount(), DefaultQueuedFrames)
	}
}

func TestControllerSlotLifecycle(t *testing.T) {
	d := device.NewSimulatedDevice()
	defer d.Release()
	c, _ := NewController(d, WithQueuedFrames(2))
	ctx := context.Background()

	if st, _ := c.SlotState(0); st != SlotIdle {
		t.Fatalf("have %s, want Idle", st)
	}
	if err := c.BeginFrame(ctx); err != nil {
		t.Fatal(err)
	}
	if c.PendingValue() != 1 {
		t.Errorf("have pending %d, want 1", c.PendingValue())
	}
	if err := c.EndFrame(); err != nil {
		t.Fatal(err)
	}
	st, exp := c.SlotState(0)
	if st != SlotSubmitted || exp != 1 {
		t.Errorf("slot 0: have (%s, %d), want (Submitted, 1)", st, exp)
	}
	if c.SlotIndex() != 1 {
		t.Errorf("have slot index %d, want 1", c.SlotIndex())
	}

	// frame 2 on slot 1 never blocks
	if err := c.BeginFrame(ctx); err != nil {
		t.Fatal(err)
	}
	_ = c.EndFrame()

	// frame 3 wraps to slot 0 and must wait for value 1
	d.WaitIdle()
	done := make(chan error, 1)
	go func() { done <- c.BeginFrame(ctx) }()
	select {
	case err := <-done:
		t.Fatalf("BeginFrame returned before slot 0 retired: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	d.CompleteNext()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("BeginFrame did not return after value 1 completed")
	}
	if st, _ := c.SlotState(0); st != SlotRetired {
		t.Errorf("have %s, want Retired", st)
	}
	if st, _ := c.SlotState(1); st != SlotSubmitted {
		t.Errorf("slot 1: have %s, want Submitted", st)
	}
}

func TestControllerFlush(t *testing.T) {
	d := device.NewSimulatedDevice(device.WithAutoComplete(true))
	defer d.Release()
	c, _ := NewController(d, WithQueuedFrames(3))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = c.BeginFrame(ctx)
		_ = c.EndFrame()
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Completed() != 3 {
		t.Errorf("have completed %d, want sentinel 3", c.Completed())
	}
	for i := 0; i < 2; i++ {
		if st, _ := c.SlotState(i); st != SlotRetired {
			t.Errorf("slot %d: have %s, want Retired", i, st)
		}
	}
	if c.PendingValue() != 4 {
		t.Errorf("have pending %d, want 4", c.PendingValue())
	}
}

func TestControllerDeviceLost(t *testing.T) {
	d := device.NewSimulatedDevice()
	defer d.Release()
	c, _ := NewController(d, WithQueuedFrames(1))
	ctx := context.Background()

	_ = c.BeginFrame(ctx)
	_ = c.EndFrame()
	d.LoseDevice()

	if err := c.BeginFrame(ctx); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("begin frame: have %v, want ErrDeviceLost", err)
	}
	if err := c.EndFrame(); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("end frame: have %v, want ErrDeviceLost", err)
	}
}

func TestControllerBeginFrameCancel(t *testing.T) {
	d := device.NewSimulatedDevice()
	defer d.Release()
	c, _ := NewController(d, WithQueuedFrames(1))

	_ = c.BeginFrame(context.Background())
	_ = c.EndFrame()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.BeginFrame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("have %v, want DeadlineExceeded", err)
	}
}
