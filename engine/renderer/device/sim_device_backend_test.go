package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/cogentcore/webgpu/wgpu"
)

func newTestList(t *testing.T, d *SimulatedDevice, label string) (CommandAllocator, CommandList) {
	t.Helper()
	alloc, err := d.CreateCommandAllocator(label + " allocator")
	if err != nil {
		t.Fatal(err)
	}
	list, err := d.CreateCommandList(alloc, label)
	if err != nil {
		t.Fatal(err)
	}
	return alloc, list
}

func TestSimulatedSubmitOrder(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	for _, label := range []string{"a", "b", "c"} {
		alloc, list := newTestList(t, d, label)
		if err := list.Reset(alloc, nil); err != nil {
			t.Fatal(err)
		}
		list.Draw(6, 1)
		if err := list.Close(); err != nil {
			t.Fatal(err)
		}
		if err := d.Queue().Submit(list); err != nil {
			t.Fatal(err)
		}
	}
	d.WaitIdle()

	log := d.ExecutionLog()
	if len(log) != 3 {
		t.Fatalf("have %d executed lists, want 3", len(log))
	}
	for i, want := range []string{"a", "b", "c"} {
		if log[i].Label != want {
			t.Errorf("position %d: have %q, want %q", i, log[i].Label, want)
		}
		if log[i].Seq != i+1 {
			t.Errorf("position %d: have seq %d, want %d", i, log[i].Seq, i+1)
		}
		if log[i].Draws() != 1 {
			t.Errorf("position %d: have %d draws, want 1", i, log[i].Draws())
		}
	}
}

func TestSimulatedSubmitOpenList(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	alloc, list := newTestList(t, d, "open")
	_ = list.Reset(alloc, nil)
	if err := d.Queue().Submit(list); !errors.Is(err, ErrListNotOpen) {
		t.Fatalf("have %v, want ErrListNotOpen", err)
	}
}

func TestSimulatedRecordClosedListPanics(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	_, list := newTestList(t, d, "closed")
	defer func() {
		if recover() == nil {
			t.Fatal("recording into a closed list did not panic")
		}
	}()
	list.Draw(3, 1)
}

func TestSimulatedManualFence(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	for v := uint64(1); v <= 3; v++ {
		if err := d.Queue().Signal(v); err != nil {
			t.Fatal(err)
		}
	}
	d.WaitIdle()
	if have := d.Fence().Completed(); have != 0 {
		t.Fatalf("have completed %d before any completion, want 0", have)
	}
	if have := d.PendingSignals(); len(have) != 3 {
		t.Fatalf("have %d pending signals, want 3", len(have))
	}

	done := make(chan error, 1)
	go func() { done <- d.Fence().Wait(context.Background(), 2) }()

	if v, ok := d.CompleteNext(); !ok || v != 1 {
		t.Fatalf("have (%d, %v), want (1, true)", v, ok)
	}
	select {
	case err := <-done:
		t.Fatalf("wait for 2 returned early after completing 1: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	d.CompleteNext()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait for 2 did not return after completing 2")
	}
}

func TestSimulatedAutoComplete(t *testing.T) {
	d := NewSimulatedDevice(WithAutoComplete(true))
	defer d.Release()

	_ = d.Queue().Signal(7)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Fence().Wait(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if have := d.Fence().Completed(); have != 7 {
		t.Errorf("have completed %d, want 7", have)
	}
}

func TestSimulatedFenceWaitCancel(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Fence().Wait(ctx, 1) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("have %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled wait did not return")
	}
}

func TestSimulatedDeviceLoss(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	done := make(chan error, 1)
	go func() { done <- d.Fence().Wait(context.Background(), 1) }()
	time.Sleep(5 * time.Millisecond)
	d.LoseDevice()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDeviceLost) {
			t.Fatalf("have %v, want ErrDeviceLost", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by device loss")
	}

	if err := d.Queue().Signal(2); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("signal: have %v, want ErrDeviceLost", err)
	}
	if _, err := d.CreateCommandAllocator("x"); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("create allocator: have %v, want ErrDeviceLost", err)
	}
	if err := d.SwapChain().Present(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("present: have %v, want ErrDeviceLost", err)
	}
}

func TestSimulatedAllocatorReuse(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	alloc, list := newTestList(t, d, "reuse")
	_ = list.Reset(alloc, nil)
	_ = list.Close()
	_ = d.Queue().Submit(list)
	_ = d.Queue().Signal(1)
	d.WaitIdle()

	if err := alloc.Reset(); !errors.Is(err, ErrAllocatorInUse) {
		t.Fatalf("have %v, want ErrAllocatorInUse before the fence completed", err)
	}
	d.CompleteNext()
	if err := alloc.Reset(); err != nil {
		t.Fatalf("have %v after the fence completed, want nil", err)
	}
}

func TestSimulatedBarrierLog(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	tex, err := d.CreateTexture(TextureDescriptor{Label: "X", Width: 4, Height: 4, Format: wgpu.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	alloc, list := newTestList(t, d, "glue")
	_ = list.Reset(alloc, nil)
	list.ResourceBarrier(nil)
	list.ResourceBarrier([]resource_state.TransitionDirective{
		{Resource: tex.Resource(), From: resource_state.StateCommon, To: resource_state.StateRenderTarget},
	})
	list.ClearRenderTarget(tex.View(), common.Color{})
	_ = list.Close()
	_ = d.Queue().Submit(list)
	d.WaitIdle()

	log := d.ExecutionLog()
	if len(log) != 1 {
		t.Fatalf("have %d lists, want 1", len(log))
	}
	if len(log[0].Ops) != 2 {
		t.Errorf("have %d ops, want 2 (empty barrier elided)", len(log[0].Ops))
	}
	b := log[0].Barriers()
	if len(b) != 1 || b[0].Resource != tex.Resource() || b[0].To != resource_state.StateRenderTarget {
		t.Errorf("have barriers %v", b)
	}
}

func TestSimulatedSwapChain(t *testing.T) {
	d := NewSimulatedDevice(WithSwapChainBufferCount(3), WithSurfaceSize(320, 240))
	defer d.Release()

	sc := d.SwapChain()
	if sc.BufferCount() != 3 {
		t.Fatalf("have %d buffers, want 3", sc.BufferCount())
	}
	first := sc.View().Resource()
	if first != sc.Buffer(0).Resource() {
		t.Fatalf("view does not resolve to the current back buffer")
	}
	if first.Width != 320 || first.Height != 240 {
		t.Errorf("have %dx%d, want 320x240", first.Width, first.Height)
	}
	for i := 1; i <= 3; i++ {
		if err := sc.Present(); err != nil {
			t.Fatal(err)
		}
		if have, want := sc.CurrentIndex(), i%3; have != want {
			t.Errorf("have index %d, want %d", have, want)
		}
	}
	if sc.View().Resource() != first {
		t.Errorf("swap chain did not wrap around")
	}
	if d.Presents() != 3 {
		t.Errorf("have %d presents, want 3", d.Presents())
	}
}

func TestSimulatedWriteBuffer(t *testing.T) {
	d := NewSimulatedDevice()
	defer d.Release()

	buf, err := d.CreateBuffer(BufferDescriptor{Label: "cb", Size: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Queue().WriteBuffer(buf, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	have := Contents(buf)
	want := []byte{0, 0, 0, 0, 1, 2, 3, 4}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("have %v, want %v", have, want)
		}
	}
	if err := d.Queue().WriteBuffer(buf, 6, []byte{1, 2, 3}); err == nil {
		t.Errorf("overflowing write succeeded")
	}
}

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		in   string
		want BackendType
		ok   bool
	}{
		{"simulated", BackendTypeSimulated, true},
		{"", BackendTypeSimulated, true},
		{"wgpu", BackendTypeWGPU, true},
		{"vulkan", 0, false},
	}
	for _, tt := range tests {
		have, ok := ParseBackendType(tt.in)
		if have != tt.want || ok != tt.ok {
			t.Errorf("ParseBackendType(%q): have (%v, %v), want (%v, %v)", tt.in, have, ok, tt.want, tt.ok)
		}
	}
}

func TestMergeBindGroupLayouts(t *testing.T) {
	v := map[int]wgpu.BindGroupLayoutDescriptor{
		0: {Entries: []wgpu.BindGroupLayoutEntry{{Binding: 0, Visibility: wgpu.ShaderStageVertex}}},
	}
	f := map[int]wgpu.BindGroupLayoutDescriptor{
		0: {Entries: []wgpu.BindGroupLayoutEntry{{Binding: 0, Visibility: wgpu.ShaderStageFragment}}},
		1: {Entries: []wgpu.BindGroupLayoutEntry{{Binding: 1}, {Binding: 0}}},
	}
	m := mergeBindGroupLayouts(v, f)
	if len(m) != 2 {
		t.Fatalf("have %d groups, want 2", len(m))
	}
	if vis := m[0].Entries[0].Visibility; vis != wgpu.ShaderStageVertex|wgpu.ShaderStageFragment {
		t.Errorf("have visibility %v, want vertex|fragment", vis)
	}
	if m[1].Entries[0].Binding != 0 || m[1].Entries[1].Binding != 1 {
		t.Errorf("group 1 entries are not sorted by binding")
	}
}
