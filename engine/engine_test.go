package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/orchestrator"
)

func newHeadless(t *testing.T, options ...orchestrator.DeferredBuilderOption) (*device.SimulatedDevice, orchestrator.Orchestrator) {
	t.Helper()
	d := device.NewSimulatedDevice(device.WithSurfaceSize(64, 32), device.WithAutoComplete(true))
	t.Cleanup(d.Release)
	o, err := orchestrator.NewOrchestrator(d, orchestrator.NewDeferredSchedule(options...), orchestrator.WithQueuedFrames(2))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return d, o
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	d, o := newHeadless(t)
	var seen []uint64
	e := NewEngine(d, o, WithMaxFrames(5))
	e.SetRenderCallback(func(stats orchestrator.FrameStats) { seen = append(seen, stats.Frame) })

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Frames() != 5 || len(seen) != 5 {
		t.Fatalf("have %d frames and %d callbacks, want 5", e.Frames(), len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Errorf("frame values not increasing: %v", seen)
		}
	}
	if d.Presents() != 5 {
		t.Errorf("have %d presents, want 5", d.Presents())
	}
	if err := o.ExecuteFrame(context.Background(), nil); !errors.Is(err, orchestrator.ErrTerminated) {
		t.Errorf("have %v after Run, want ErrTerminated", err)
	}
	if err := e.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestRunReturnsDeviceLoss(t *testing.T) {
	d, o := newHeadless(t)
	e := NewEngine(d, o)
	e.SetRenderCallback(func(stats orchestrator.FrameStats) {
		if e.Frames() == 2 {
			d.LoseDevice()
		}
	})

	err := e.Run(context.Background())
	if !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("have %v, want ErrDeviceLost", err)
	}
	if e.Frames() != 2 {
		t.Errorf("have %d frames, want 2", e.Frames())
	}
}

func TestQuitFromTick(t *testing.T) {
	d, o := newHeadless(t)
	e := NewEngine(d, o, WithTickRate(1000), WithRenderFrameLimit(2000))
	ticks := 0
	e.SetTickCallback(func(float32) {
		ticks++
		if ticks == 3 {
			e.Quit()
		}
	})

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	if e.Frames() == 0 {
		t.Error("no frames rendered before quit")
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	d, o := newHeadless(t)
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(d, o, WithProfiling(true), WithProfiler(profiler.NewProfiler(profiler.WithInterval(time.Nanosecond))))
	e.SetRenderCallback(func(orchestrator.FrameStats) {
		if e.Frames() == 3 {
			cancel()
		}
	})

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Frames() != 3 {
		t.Errorf("have %d frames, want 3", e.Frames())
	}
}

func TestFrameConstantsFollowSurface(t *testing.T) {
	d, o := newHeadless(t)
	e := NewEngine(d, o, WithLightCount(4), WithMaxFrames(1))
	if have := e.Camera().Aspect(); have != 2 {
		t.Errorf("have aspect %v, want 2 for a 64x32 surface", have)
	}
	fc := e.Camera().FrameConstants(64, 32, 4)
	if fc.LightCount != 4 {
		t.Errorf("have light count %d, want 4", fc.LightCount)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}
