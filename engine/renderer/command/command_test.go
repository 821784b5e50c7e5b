package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/fence"
)

func newRig(t *testing.T, frames int) (*device.SimulatedDevice, *fence.Controller, SubmissionQueue) {
	t.Helper()
	d := device.NewSimulatedDevice()
	fences, err := fence.NewController(d, fence.WithQueuedFrames(frames))
	if err != nil {
		t.Fatal(err)
	}
	q := NewSubmissionQueue(d)
	t.Cleanup(func() {
		q.Close()
		d.Release()
	})
	return d, fences, q
}

func mustRing(t *testing.T, d device.Device, fences *fence.Controller, label string) Ring {
	t.Helper()
	r, err := NewRing(d, fences, WithLabel(label))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// recordFrame acquires, closes and submits one buffer from each ring, then signals the frame.
func recordFrame(t *testing.T, ctx context.Context, fences *fence.Controller, q SubmissionQueue, rings ...Ring) []*CommandBuffer {
	t.Helper()
	q.ResetCount()
	bufs := make([]*CommandBuffer, 0, len(rings))
	for _, r := range rings {
		b, err := r.AcquireNext(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		b.SetViewport(common.Viewport{})
		if err := b.Close(); err != nil {
			t.Fatal(err)
		}
		if err := q.Push(b); err != nil {
			t.Fatal(err)
		}
		bufs = append(bufs, b)
	}
	if err := q.WaitExecuted(ctx, len(rings)); err != nil {
		t.Fatal(err)
	}
	if err := fences.EndFrame(); err != nil {
		t.Fatal(err)
	}
	return bufs
}

func TestRingOverrun(t *testing.T) {
	d, fences, _ := newRig(t, 2)
	r := mustRing(t, d, fences, "geometry")
	ctx := context.Background()

	b0, err := r.AcquireNext(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b0.Label() != "geometry[0]" || b0.Expected() != 1 {
		t.Errorf("have (%s, %d), want (geometry[0], 1)", b0.Label(), b0.Expected())
	}
	b1, err := r.AcquireNext(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b1.Slot() != 1 {
		t.Errorf("have slot %d, want 1", b1.Slot())
	}
	if _, err := r.AcquireNext(ctx, nil); !errors.Is(err, ErrRingOverrun) {
		t.Errorf("have %v, want ErrRingOverrun", err)
	}
}

func TestRingNoPrematureReuse(t *testing.T) {
	d, fences, q := newRig(t, 2)
	r := mustRing(t, d, fences, "blur")
	ctx := context.Background()

	first := recordFrame(t, ctx, fences, q, r)[0]
	recordFrame(t, ctx, fences, q, r)
	d.WaitIdle()

	if first.State() != BufferClosed {
		t.Fatalf("have %s before fence completion, want Closed", first.State())
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.AcquireNext(ctx, nil)
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("slot 0 reused before fence value 1 completed: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if v, ok := d.CompleteNext(); !ok || v != 1 {
		t.Fatalf("have completed (%d, %v), want (1, true)", v, ok)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("AcquireNext did not return after fence value 1")
	}
	if first.State() != BufferRetired {
		t.Errorf("have %s, want Retired", first.State())
	}
}

func TestRingAcquireCancel(t *testing.T) {
	d, fences, q := newRig(t, 1)
	r := mustRing(t, d, fences, "sky")
	recordFrame(t, context.Background(), fences, q, r)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.AcquireNext(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("have %v, want DeadlineExceeded", err)
	}
}

func TestRetirementFollowsSubmissionOrder(t *testing.T) {
	d, fences, q := newRig(t, 3)
	r := mustRing(t, d, fences, "tone")
	ctx := context.Background()

	a := recordFrame(t, ctx, fences, q, r)[0]
	b := recordFrame(t, ctx, fences, q, r)[0]
	d.WaitIdle()

	d.CompleteNext()
	if a.State() != BufferRetired || b.State() != BufferClosed {
		t.Errorf("after value 1: have (%s, %s), want (Retired, Closed)", a.State(), b.State())
	}
	d.CompleteNext()
	if b.State() != BufferRetired {
		t.Errorf("after value 2: have %s, want Retired", b.State())
	}
}

func TestSubmissionQueueFIFO(t *testing.T) {
	d, fences, q := newRig(t, 3)
	ctx := context.Background()

	labels := []string{"c", "a", "b", "e", "d"}
	bufs := make([]*CommandBuffer, len(labels))
	for i, l := range labels {
		b, err := mustRing(t, d, fences, l).AcquireNext(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		_ = b.Close()
		bufs[i] = b
	}
	for _, b := range bufs {
		if err := q.Push(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.WaitExecuted(ctx, len(bufs)); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	log := d.ExecutionLog()
	if len(log) != len(labels) {
		t.Fatalf("have %d executed lists, want %d", len(log), len(labels))
	}
	for i, l := range labels {
		if want := l + "[0]"; log[i].Label != want {
			t.Errorf("position %d: have %s, want %s", i, log[i].Label, want)
		}
	}
}

func TestSubmissionCounterMonotone(t *testing.T) {
	d, fences, q := newRig(t, 3)
	ctx := context.Background()

	const producers = 4
	rings := make([]Ring, producers*2)
	for i := range rings {
		rings[i] = mustRing(t, d, fences, fmt.Sprintf("p%d", i))
	}

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for _, r := range rings[p*2 : p*2+2] {
				b, err := r.AcquireNext(ctx, nil)
				if err != nil {
					t.Error(err)
					return
				}
				_ = b.Close()
				if err := q.Push(b); err != nil {
					t.Error(err)
				}
			}
		}(p)
	}

	last := 0
	deadline := time.Now().Add(time.Second)
	for last < len(rings) && time.Now().Before(deadline) {
		n := q.ExecutedCount()
		if n < last {
			t.Fatalf("counter went backwards: %d after %d", n, last)
		}
		last = n
	}
	wg.Wait()
	if err := q.WaitExecuted(ctx, len(rings)); err != nil {
		t.Fatal(err)
	}
	if have := q.ExecutedCount(); have != len(rings) {
		t.Errorf("have %d, want %d", have, len(rings))
	}
	if have := q.PushedCount(); have != len(rings) {
		t.Errorf("have %d pushed, want %d", have, len(rings))
	}
	q.ResetCount()
	if have, pushed := q.ExecutedCount(), q.PushedCount(); have != 0 || pushed != 0 {
		t.Errorf("have (%d executed, %d pushed) after reset, want zeros", have, pushed)
	}
}

func TestPushOpenBuffer(t *testing.T) {
	d, fences, q := newRig(t, 2)
	b, err := mustRing(t, d, fences, "ao").AcquireNext(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Push(b); !errors.Is(err, ErrBufferNotClosed) {
		t.Errorf("have %v, want ErrBufferNotClosed", err)
	}
}

func TestEncodeAfterClosePanics(t *testing.T) {
	d, fences, _ := newRig(t, 2)
	b, _ := mustRing(t, d, fences, "post").AcquireNext(context.Background(), nil)
	_ = b.Close()

	defer func() {
		if recover() == nil {
			t.Error("Draw on a closed buffer did not panic")
		}
	}()
	b.Draw(6, 1)
}

func TestSubmissionQueueDeviceLost(t *testing.T) {
	d, fences, q := newRig(t, 2)
	b, _ := mustRing(t, d, fences, "light").AcquireNext(context.Background(), nil)
	_ = b.Close()

	d.LoseDevice()
	_ = q.Push(b)
	if err := q.WaitExecuted(context.Background(), 1); !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("have %v, want ErrDeviceLost", err)
	}
	if err := q.Push(b); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("push after loss: have %v, want ErrDeviceLost", err)
	}
}

func TestSubmissionQueueClose(t *testing.T) {
	d, fences, q := newRig(t, 2)
	b, _ := mustRing(t, d, fences, "env").AcquireNext(context.Background(), nil)
	_ = b.Close()

	q.Close()
	q.Close()
	if err := q.Push(b); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("have %v, want ErrQueueClosed", err)
	}
}
