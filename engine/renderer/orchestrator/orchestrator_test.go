package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/geometry"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// itemPass records one buffer with a draw per item.
type itemPass struct {
	label string
	items int
	deps  pass.Dependencies
	ring  command.Ring

	// fail is returned once, with the acquired buffer left open
	fail error
	// pushed runs after the buffer reached the submission queue
	pushed func()
}

func newItemPass(deps pass.Dependencies, label string, items int) (*itemPass, error) {
	ring, err := command.NewRing(deps.Device, deps.Fences, command.WithLabel(label))
	if err != nil {
		return nil, err
	}
	return &itemPass{label: label, items: items, deps: deps, ring: ring}, nil
}

func (p *itemPass) Stage() pass.Stage     { return pass.StageGeometry }
func (p *itemPass) Init(pass.Views) error { return nil }
func (p *itemPass) BufferCount() int      { return 1 }

func (p *itemPass) RecordAndSubmit(ctx context.Context, _ *upload.FrameConstants) error {
	buf, err := p.ring.AcquireNext(ctx, nil)
	if err != nil {
		return err
	}
	if err := p.fail; err != nil {
		p.fail = nil
		return err
	}
	for range p.items {
		buf.Draw(3, 1)
	}
	if err := buf.Close(); err != nil {
		return err
	}
	if err := p.deps.Queue.Push(buf); err != nil {
		return err
	}
	if p.pushed != nil {
		p.pushed()
	}
	return nil
}

type observed struct {
	mu   sync.Mutex
	list []resource_state.TransitionDirective
}

func (o *observed) add(d resource_state.TransitionDirective) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, d)
}

func (o *observed) get() []resource_state.TransitionDirective {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.list)
}

type chain struct {
	x, y, z *resource_state.Resource
	passes  []*itemPass
}

// chainSchedule is pass1 writes X, pass2 reads X and writes Y, pass3 reads Y and writes Z.
func chainSchedule(c *chain, items [3]int) ScheduleBuilder {
	c.x = resource_state.NewResource("X", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	c.y = resource_state.NewResource("Y", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	c.z = resource_state.NewResource("Z", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	return func(deps pass.Dependencies) (*Schedule, error) {
		c.passes = c.passes[:0]
		for i, label := range []string{"pass1", "pass2", "pass3"} {
			p, err := newItemPass(deps, label, items[i])
			if err != nil {
				return nil, err
			}
			c.passes = append(c.passes, p)
		}
		rt := resource_state.StateRenderTarget
		return &Schedule{
			Resources: []Registration{
				{Resource: c.x, Initial: resource_state.StateCommon},
				{Resource: c.y, Initial: resource_state.StateCommon},
				{Resource: c.z, Initial: rt},
			},
			Steps: []Step{
				{Name: "pass1", Passes: []pass.Pass{c.passes[0]}, Writes: []Access{{c.x, rt}}},
				{Name: "pass2", Passes: []pass.Pass{c.passes[1]}, Reads: []resource_state.Source{c.x}, Writes: []Access{{c.y, rt}}},
				{Name: "pass3", Passes: []pass.Pass{c.passes[2]}, Reads: []resource_state.Source{c.y}, Writes: []Access{{c.z, rt}}},
			},
		}, nil
	}
}

// waitAfter marks the named step of build's schedule as WaitDispatched.
func waitAfter(build ScheduleBuilder, step string) ScheduleBuilder {
	return func(deps pass.Dependencies) (*Schedule, error) {
		s, err := build(deps)
		if err != nil {
			return nil, err
		}
		for i := range s.Steps {
			if s.Steps[i].Name == step {
				s.Steps[i].WaitDispatched = true
			}
		}
		return s, nil
	}
}

// gatedQueue holds back the submission of one command list until gate is closed.
type gatedQueue struct {
	device.Queue
	label string
	gate  chan struct{}
}

func (q *gatedQueue) Submit(lists ...device.CommandList) error {
	for _, l := range lists {
		if l.Label() == q.label {
			<-q.gate
		}
	}
	return q.Queue.Submit(lists...)
}

type gatedDevice struct {
	*device.SimulatedDevice
	queue *gatedQueue
}

func (d *gatedDevice) Queue() device.Queue { return d.queue }

// countedTexture counts Release calls.
type countedTexture struct {
	device.Texture
	released *int
}

func (t countedTexture) Release() {
	*t.released++
	t.Texture.Release()
}

func labels(log []device.ExecutedList) []string {
	out := make([]string, len(log))
	for i, l := range log {
		out[i] = l.Label
	}
	return out
}

func newSim(t *testing.T, options ...device.DeviceBuilderOption) *device.SimulatedDevice {
	t.Helper()
	d := device.NewSimulatedDevice(options...)
	t.Cleanup(d.Release)
	return d
}

func terminate(t *testing.T, o Orchestrator, d *device.SimulatedDevice) {
	t.Helper()
	d.SetAutoComplete(true)
	if err := o.Terminate(context.Background()); err != nil {
		t.Errorf("Terminate: %v", err)
	}
}

func TestScenarioTransitionSequence(t *testing.T) {
	d := newSim(t)
	var c chain
	var obs observed
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(2), WithTransitionObserver(obs.add))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	if err := o.ExecuteFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	rt, sr := resource_state.StateRenderTarget, resource_state.StateShaderReadable
	want := []resource_state.TransitionDirective{
		{Resource: c.x, From: resource_state.StateCommon, To: rt},
		{Resource: c.y, From: resource_state.StateCommon, To: rt},
		{Resource: c.x, From: rt, To: sr},
		{Resource: c.y, From: rt, To: sr},
	}
	if have := obs.get(); !slices.Equal(have, want) {
		t.Errorf("have transitions %v, want %v", have, want)
	}

	log := d.ExecutionLog()
	wantLabels := []string{"barrier/begin[0]", "pass1[0]", "barrier/pass2[0]", "pass2[0]", "barrier/pass3[0]", "pass3[0]"}
	if have := labels(log); !slices.Equal(have, wantLabels) {
		t.Errorf("have execution order %v, want %v", have, wantLabels)
	}

	var executed []resource_state.TransitionDirective
	for _, l := range log {
		executed = append(executed, l.Barriers()...)
	}
	if !slices.Equal(executed, want) {
		t.Errorf("have executed barriers %v, want %v", executed, want)
	}
	for _, dir := range executed {
		if dir.Resource == c.z {
			t.Errorf("extraneous transition on Z: %v", dir)
		}
	}
	if s, _ := o.Tracker().GetState(c.z); s != rt {
		t.Errorf("have Z in %s, want %s", s, rt)
	}

	stats := o.Stats()
	if stats.Buffers != 6 || stats.GlueBuffers != 3 || stats.Transitions != 4 {
		t.Errorf("have stats %+v, want 6 buffers, 3 glue, 4 transitions", stats)
	}
}

func TestScenarioZeroItems(t *testing.T) {
	d := newSim(t)
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{2, 0, 1}), WithQueuedFrames(2))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	if err := o.ExecuteFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()
	log := d.ExecutionLog()

	i := slices.IndexFunc(log, func(l device.ExecutedList) bool { return l.Label == "pass2[0]" })
	if i < 1 {
		t.Fatalf("pass2 missing from %v", labels(log))
	}
	if log[i].Draws() != 0 {
		t.Errorf("have %d draws for the empty pass, want 0", log[i].Draws())
	}
	if before := log[i-1]; before.Label != "barrier/pass2[0]" || len(before.Barriers()) != 1 {
		t.Errorf("have %s with %v before the empty pass, want its glue buffer", before.Label, before.Barriers())
	}
	if after := log[i+1]; after.Label != "barrier/pass3[0]" || len(after.Barriers()) != 1 || after.Barriers()[0].Resource != c.y {
		t.Errorf("have %s with %v after the empty pass, want Y's glue buffer", after.Label, after.Barriers())
	}
	if s, _ := o.Tracker().GetState(c.y); s != resource_state.StateShaderReadable {
		t.Errorf("have Y in %s, want ShaderReadable", s)
	}
}

func TestScenarioFrameSlotReuse(t *testing.T) {
	d := newSim(t)
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(3))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)
	ctx := context.Background()

	for frame := 1; frame <= 3; frame++ {
		if err := o.ExecuteFrame(ctx, nil); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	d.WaitIdle()
	if have := d.PendingSignals(); !slices.Equal(have, []uint64{1, 2, 3}) {
		t.Fatalf("have pending signals %v, want [1 2 3]", have)
	}

	frame4 := make(chan error, 1)
	go func() { frame4 <- o.ExecuteFrame(ctx, nil) }()
	other := make(chan error, 1)
	go func() { other <- o.Fences().WaitFor(ctx, 2) }()

	select {
	case err := <-frame4:
		t.Fatalf("frame 4 did not wait for frame 1's fence: %v", err)
	case err := <-other:
		t.Fatalf("waiter on frame 2 returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if v, ok := d.CompleteNext(); !ok || v != 1 {
		t.Fatalf("have completed (%d, %v), want (1, true)", v, ok)
	}
	select {
	case err := <-frame4:
		if err != nil {
			t.Fatalf("frame 4: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame 4 still blocked after frame 1 completed")
	}
	select {
	case err := <-other:
		t.Fatalf("completing frame 1 released the frame 2 waiter: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if o.Stats().Frame != 4 || o.Stats().Slot != 0 {
		t.Errorf("have stats %+v, want frame 4 in slot 0", o.Stats())
	}
	d.CompleteAll()
	if err := <-other; err != nil {
		t.Errorf("frame 2 waiter: %v", err)
	}
}

func TestFrameCancelledWhileWaiting(t *testing.T) {
	d := newSim(t)
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(1))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	if err := o.ExecuteFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := o.ExecuteFrame(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("have %v, want context.DeadlineExceeded", err)
	}
}

func TestDeviceLossStopsFrames(t *testing.T) {
	d := newSim(t, device.WithAutoComplete(true))
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(2))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := o.ExecuteFrame(ctx, &upload.FrameConstants{}); err != nil {
		t.Fatal(err)
	}

	d.LoseDevice()
	for range 2 {
		if err := o.ExecuteFrame(ctx, &upload.FrameConstants{}); !errors.Is(err, device.ErrDeviceLost) {
			t.Fatalf("have %v, want ErrDeviceLost", err)
		}
	}
	if err := o.Terminate(ctx); err != nil {
		t.Errorf("Terminate after device loss: %v", err)
	}
	if err := o.Terminate(ctx); err != nil {
		t.Errorf("second Terminate: %v", err)
	}
	if err := o.ExecuteFrame(ctx, nil); !errors.Is(err, ErrTerminated) {
		t.Errorf("have %v, want ErrTerminated", err)
	}
}

func TestTerminateUnregisters(t *testing.T) {
	d := newSim(t, device.WithAutoComplete(true))
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := o.ExecuteFrame(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := o.Terminate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Tracker().GetState(c.x); !errors.Is(err, resource_state.ErrUnknownResource) {
		t.Errorf("have %v, want ErrUnknownResource", err)
	}
	if len(o.Tracker().Resources()) != 0 {
		t.Errorf("have %d tracked resources after Terminate", len(o.Tracker().Resources()))
	}
}

func TestInvalidSchedules(t *testing.T) {
	x := resource_state.NewResource("X", wgpu.TextureFormatRGBA8Unorm, 1, 1)
	stray := resource_state.NewResource("stray", wgpu.TextureFormatRGBA8Unorm, 1, 1)
	reg := []Registration{{Resource: x, Initial: resource_state.StateCommon}}
	rt := resource_state.StateRenderTarget

	tests := []struct {
		name     string
		schedule *Schedule
		want     error
	}{
		{"no steps", &Schedule{Resources: reg}, ErrInvalidSchedule},
		{"unnamed step", &Schedule{Resources: reg, Steps: []Step{{}}}, ErrInvalidSchedule},
		{"duplicate step", &Schedule{Resources: reg, Steps: []Step{{Name: "a"}, {Name: "a"}}}, ErrInvalidSchedule},
		{"read state as write", &Schedule{Resources: reg, Steps: []Step{{Name: "a", Writes: []Access{{x, resource_state.StateShaderReadable}}}}}, ErrInvalidSchedule},
		{"read and write", &Schedule{Resources: reg, Steps: []Step{{Name: "a", Reads: []resource_state.Source{x}, Writes: []Access{{x, rt}}}}}, ErrInvalidSchedule},
		{"unregistered", &Schedule{Resources: reg, Steps: []Step{{Name: "a", Writes: []Access{{stray, rt}}}}}, resource_state.ErrUnknownResource},
		{"nil pass", &Schedule{Resources: reg, Steps: []Step{{Name: "a", Passes: []pass.Pass{nil}}}}, ErrInvalidSchedule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newSim(t)
			_, err := NewOrchestrator(d, StaticSchedule(tt.schedule))
			if !errors.Is(err, tt.want) {
				t.Errorf("have %v, want %v", err, tt.want)
			}
		})
	}
}

func deferredOrchestrator(t *testing.T, options ...DeferredBuilderOption) (Orchestrator, *device.SimulatedDevice) {
	t.Helper()
	d := newSim(t, device.WithSurfaceSize(64, 32), device.WithAutoComplete(true))
	box := geometry.NewBox(1, 1, 1)
	options = append([]DeferredBuilderOption{
		WithPassOptions(pass.StageGeometry, pass.WithMeshes(pass.Mesh{Label: "box", Data: &box, World: common.Identity4()})),
	}, options...)
	o, err := NewOrchestrator(d, NewDeferredSchedule(options...), WithQueuedFrames(2), WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := o.Terminate(context.Background()); err != nil {
			t.Errorf("Terminate: %v", err)
		}
	})
	return o, d
}

func deferredFrame() *upload.FrameConstants {
	return &upload.FrameConstants{
		View:   common.LookAt(common.Vec3{0, 1, 4}, common.Vec3{}, common.Vec3{0, 1, 0}),
		Proj:   common.Perspective(1.0, 2, 0.1, 100),
		Eye:    common.Vec3{0, 1, 4},
		Width:  64,
		Height: 32,
		Near:   0.1,
		Far:    100,
	}
}

func TestDeferredFrameOrder(t *testing.T) {
	o, d := deferredOrchestrator(t)
	if err := o.ExecuteFrame(context.Background(), deferredFrame()); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	have := labels(d.ExecutionLog())
	want := []string{
		"barrier/begin[0]", "geometry/0[0]",
		"barrier/ambient_occlusion[0]", "ambient_occlusion[0]",
		"barrier/blur[0]", "blur[0]",
		"barrier/ambient_light[0]", "ambient_light[0]",
		"environment_light[0]", "punctual_light[0]",
		"barrier/sky_box[0]", "sky_box[0]",
		"barrier/tone_mapping[0]", "tone_mapping[0]",
		"barrier/post_process[0]", "post_process[0]",
		"barrier/end[0]",
	}
	if !slices.Equal(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	stats := o.Stats()
	if stats.Buffers != len(want) || stats.GlueBuffers != 8 || stats.Transitions != 17 {
		t.Errorf("have stats %+v, want %d buffers, 8 glue, 17 transitions", stats, len(want))
	}
	if d.Presents() != 1 {
		t.Errorf("have %d presents, want 1", d.Presents())
	}
}

// TestDeferredStateConsistency replays every executed barrier from the registration states and
// checks each directive starts from the state the previous one left.
func TestDeferredStateConsistency(t *testing.T) {
	o, d := deferredOrchestrator(t)
	current := make(map[*resource_state.Resource]resource_state.State)
	for _, r := range o.Tracker().Resources() {
		s, err := o.Tracker().GetState(r)
		if err != nil {
			t.Fatal(err)
		}
		current[r] = s
	}

	for frame := range 5 {
		if err := o.ExecuteFrame(context.Background(), deferredFrame()); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	d.WaitIdle()

	for _, l := range d.ExecutionLog() {
		for _, dir := range l.Barriers() {
			if dir.From == dir.To {
				t.Errorf("%s: elided transition executed: %v", l.Label, dir)
			}
			if current[dir.Resource] != dir.From {
				t.Fatalf("%s: %v starts from %s, resource was in %s", l.Label, dir, dir.From, current[dir.Resource])
			}
			current[dir.Resource] = dir.To
		}
	}
	for r, s := range current {
		if have, _ := o.Tracker().GetState(r); have != s {
			t.Errorf("%s: tracker has %s, executed barriers left %s", r, have, s)
		}
	}
	if d.Presents() != 5 {
		t.Errorf("have %d presents, want 5", d.Presents())
	}
}

func TestDeferredToggles(t *testing.T) {
	o, d := deferredOrchestrator(t,
		WithEnvironmentLight(false),
		WithPunctualLight(false),
		WithSkyBox(false),
		WithPostProcess(false),
	)
	if err := o.ExecuteFrame(context.Background(), deferredFrame()); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	have := labels(d.ExecutionLog())
	want := []string{
		"barrier/begin[0]", "geometry/0[0]",
		"barrier/ambient_occlusion[0]", "ambient_occlusion[0]",
		"barrier/blur[0]", "blur[0]",
		"barrier/ambient_light[0]", "ambient_light[0]",
		"barrier/tone_mapping[0]", "tone_mapping[0]",
		"barrier/end[0]",
	}
	if !slices.Equal(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	rt := d.ExecutionLog()[9].Ops[2]
	if rt.Kind != device.OpRenderTargets || !slices.Equal(rt.Targets, []string{"BackBuffer[0]"}) {
		t.Errorf("have tone mapping targets %v, want the back buffer", rt.Targets)
	}
}

func TestDeferredZeroLights(t *testing.T) {
	o, d := deferredOrchestrator(t)
	if err := o.ExecuteFrame(context.Background(), deferredFrame()); err != nil {
		t.Fatal(err)
	}
	d.WaitIdle()

	log := d.ExecutionLog()
	i := slices.IndexFunc(log, func(l device.ExecutedList) bool { return l.Label == "punctual_light[0]" })
	if i < 0 {
		t.Fatal("punctual light buffer was not submitted")
	}
	if log[i].Draws() != 0 {
		t.Errorf("have %d draws with no lights, want 0", log[i].Draws())
	}
}

func TestFrameCancelledAfterPush(t *testing.T) {
	d := newSim(t, device.WithAutoComplete(true))
	var c chain
	o, err := NewOrchestrator(d, waitAfter(chainSchedule(&c, [3]int{1, 1, 1}), "pass1"), WithQueuedFrames(1))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	ctx, cancel := context.WithCancel(context.Background())
	c.passes[0].pushed = cancel
	if err := o.ExecuteFrame(ctx, nil); err != nil {
		t.Fatalf("have %v, want the begun frame to complete", err)
	}
	c.passes[0].pushed = nil

	for frame := 2; frame <= 4; frame++ {
		if err := o.ExecuteFrame(context.Background(), nil); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}
	if have := o.Stats(); have.Frame != 4 || have.Buffers != 6 {
		t.Errorf("have stats %+v, want frame 4 with 6 buffers", have)
	}
	d.WaitIdle()
	if have := d.Signals(); !slices.Equal(have, []uint64{1, 2, 3, 4}) {
		t.Errorf("have signals %v, want [1 2 3 4]", have)
	}
}

func TestFailedFrameRecovers(t *testing.T) {
	d := newSim(t, device.WithAutoComplete(true))
	var c chain
	o, err := NewOrchestrator(d, chainSchedule(&c, [3]int{1, 1, 1}), WithQueuedFrames(2))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	errRecord := errors.New("record failed")
	c.passes[1].fail = errRecord
	if err := o.ExecuteFrame(context.Background(), nil); !errors.Is(err, errRecord) {
		t.Fatalf("have %v, want the pass error", err)
	}
	if have := o.Fences().PendingValue(); have != 2 {
		t.Errorf("have pending value %d after the failed frame, want 2", have)
	}

	// four frames cycle both slots of every ring, including the one left open by the failure
	for frame := 2; frame <= 5; frame++ {
		if err := o.ExecuteFrame(context.Background(), nil); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if have := o.Stats().Buffers; have != 6 {
			t.Errorf("frame %d: have %d buffers, want 6", frame, have)
		}
	}
	d.WaitIdle()

	have := labels(d.ExecutionLog())
	want := []string{"barrier/begin[0]", "pass1[0]", "barrier/pass2[0]", "barrier/begin[1]"}
	if len(have) < len(want) || !slices.Equal(have[:len(want)], want) {
		t.Errorf("have execution order %v, want it to start with %v", have, want)
	}
	if have := d.Signals(); !slices.Equal(have, []uint64{1, 2, 3, 4, 5}) {
		t.Errorf("have signals %v, want [1 2 3 4 5]", have)
	}
}

func TestWaitDispatchedStep(t *testing.T) {
	sim := newSim(t)
	gate := make(chan struct{})
	d := &gatedDevice{SimulatedDevice: sim, queue: &gatedQueue{Queue: sim.Queue(), label: "pass1[0]", gate: gate}}
	var c chain
	o, err := NewOrchestrator(d, waitAfter(chainSchedule(&c, [3]int{1, 1, 1}), "pass1"), WithQueuedFrames(2))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, sim)
	release := sync.OnceFunc(func() { close(gate) })
	defer release()

	done := make(chan error, 1)
	go func() { done <- o.ExecuteFrame(context.Background(), nil) }()

	queue := o.Dependencies().Queue
	select {
	case err := <-done:
		t.Fatalf("frame finished while pass1 was held back: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if have := queue.PushedCount(); have != 2 {
		t.Errorf("have %d buffers pushed while waiting, want 2 with pass2's glue held back", have)
	}
	if have := queue.ExecutedCount(); have != 1 {
		t.Errorf("have %d buffers executed while waiting, want 1", have)
	}
	if s, _ := o.Tracker().GetState(c.x); s != resource_state.StateRenderTarget {
		t.Errorf("have X in %s while waiting, want RenderTarget", s)
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame still blocked after pass1 was submitted")
	}
	sim.WaitIdle()
	want := []string{"barrier/begin[0]", "pass1[0]", "barrier/pass2[0]", "pass2[0]", "barrier/pass3[0]", "pass3[0]"}
	if have := labels(sim.ExecutionLog()); !slices.Equal(have, want) {
		t.Errorf("have execution order %v, want %v", have, want)
	}
}

func TestParallelStep(t *testing.T) {
	d := newSim(t, device.WithAutoComplete(true))
	l := resource_state.NewResource("L", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	r := resource_state.NewResource("R", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	z := resource_state.NewResource("Z", wgpu.TextureFormatRGBA8Unorm, 8, 8)
	build := func(deps pass.Dependencies) (*Schedule, error) {
		var ps []pass.Pass
		for _, label := range []string{"left", "right", "join"} {
			p, err := newItemPass(deps, label, 1)
			if err != nil {
				return nil, err
			}
			ps = append(ps, p)
		}
		rt := resource_state.StateRenderTarget
		return &Schedule{
			Resources: []Registration{
				{Resource: l, Initial: resource_state.StateCommon},
				{Resource: r, Initial: resource_state.StateCommon},
				{Resource: z, Initial: rt},
			},
			Steps: []Step{
				{Name: "split", Passes: ps[:2], Writes: []Access{{l, rt}, {r, rt}}},
				{Name: "join", Passes: ps[2:], Reads: []resource_state.Source{l, r}, Writes: []Access{{z, rt}}},
			},
		}, nil
	}
	o, err := NewOrchestrator(d, build, WithQueuedFrames(2), WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	defer terminate(t, o, d)

	for frame := range 3 {
		d.ResetExecutionLog()
		if err := o.ExecuteFrame(context.Background(), nil); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		d.WaitIdle()
		have := labels(d.ExecutionLog())
		if len(have) != 5 {
			t.Fatalf("frame %d: have %v, want 5 buffers", frame, have)
		}
		split := slices.Clone(have[1:3])
		slices.Sort(split)
		slot := frame % 2
		want := []string{fmt.Sprintf("left[%d]", slot), fmt.Sprintf("right[%d]", slot)}
		if !strings.HasPrefix(have[0], "barrier/begin") || !slices.Equal(split, want) || !strings.HasPrefix(have[3], "barrier/join") {
			t.Errorf("frame %d: have %v, want begin glue, both split passes, join glue, join", frame, have)
		}
	}
	if have := o.Stats(); have.Buffers != 5 || have.GlueBuffers != 2 {
		t.Errorf("have stats %+v, want 5 buffers and 2 glue", have)
	}
}

func TestFailedLoadReleasesTextures(t *testing.T) {
	tests := []struct {
		name  string
		steps func(x *resource_state.Resource) []Step
		dup   bool
		want  error
	}{
		{"invalid schedule", func(*resource_state.Resource) []Step { return nil }, false, ErrInvalidSchedule},
		{"duplicate registration", func(x *resource_state.Resource) []Step {
			return []Step{{Name: "a", Writes: []Access{{x, resource_state.StateRenderTarget}}}}
		}, true, resource_state.ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newSim(t)
			released := 0
			build := func(deps pass.Dependencies) (*Schedule, error) {
				tx, err := deps.Device.CreateTexture(device.TextureDescriptor{Label: "X", Width: 8, Height: 8, Format: wgpu.TextureFormatRGBA8Unorm})
				if err != nil {
					return nil, err
				}
				reg := []Registration{{Resource: tx.Resource(), Initial: resource_state.StateCommon}}
				if tt.dup {
					reg = append(reg, reg[0])
				}
				return &Schedule{
					Resources: reg,
					Steps:     tt.steps(tx.Resource()),
					Textures:  []device.Texture{countedTexture{Texture: tx, released: &released}},
				}, nil
			}
			if _, err := NewOrchestrator(d, build); !errors.Is(err, tt.want) {
				t.Fatalf("have %v, want %v", err, tt.want)
			}
			if released != 1 {
				t.Errorf("have %d releases, want 1", released)
			}
		})
	}
}
