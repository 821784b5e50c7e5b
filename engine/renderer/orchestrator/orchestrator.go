// Package orchestrator drives one frame of the deferred pipeline: it moves every shared buffer into
// the state its consumer expects, records the passes of each schedule step on a worker pool and
// waits for the frame's buffers to reach the device queue before signalling the frame fence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/fence"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

var (
	// ErrInvalidSchedule is returned when a schedule breaks a structural rule.
	ErrInvalidSchedule = errors.New("orchestrator: invalid schedule")

	// ErrTerminated is returned by ExecuteFrame after Terminate.
	ErrTerminated = errors.New("orchestrator: terminated")
)

// FrameStats describes the last executed frame.
type FrameStats struct {
	Frame       uint64 // fence value the frame signalled
	Slot        int
	Buffers     int // buffers pushed, glue included
	GlueBuffers int
	Transitions int
	Elapsed     time.Duration
}

// Orchestrator is the per-frame driver.
type Orchestrator interface {
	// ExecuteFrame records and submits one frame. Cancellation is honoured only while waiting for
	// the frame slot; once the frame has begun it runs to its fence signal. A frame that fails after
	// it began still hands every pushed buffer to the device and signals its fence value, so the
	// next frame starts clean.
	//
	// Parameters:
	//   - ctx: bounds the wait for the frame slot
	//   - fc: the frame constants uploaded into the frame slot
	//
	// Returns:
	//   - error: ctx.Err(), device.ErrDeviceLost, ErrTerminated or a schedule error
	ExecuteFrame(ctx context.Context, fc *upload.FrameConstants) error

	// Terminate drains in-flight frames and releases the orchestrator's resources. It is idempotent.
	//
	// Parameters:
	//   - ctx: bounds the flush
	//
	// Returns:
	//   - error: ctx.Err() if the flush was cancelled
	Terminate(ctx context.Context) error

	// Tracker returns the resource state tracker of the schedule.
	Tracker() resource_state.Tracker

	// Fences returns the frame fence controller.
	Fences() *fence.Controller

	// Dependencies returns the collaborators shared with the passes.
	Dependencies() pass.Dependencies

	// Stats returns the statistics of the last executed frame.
	Stats() FrameStats
}

type orchestrator struct {
	mu *sync.Mutex

	dev       device.Device
	fences    *fence.Controller
	queue     command.SubmissionQueue
	constants upload.Ring
	pipelines pipeline.Registry
	tracker   resource_state.Tracker
	schedule  *Schedule

	beginRing command.Ring
	stepRings []command.Ring
	endRing   command.Ring

	pool    worker.DynamicWorkerPool
	workers int
	taskID  int

	queuedFrames int
	observer     func(resource_state.TransitionDirective)
	logger       *slog.Logger

	stats      FrameStats
	err        error
	terminated bool
}

var _ Orchestrator = &orchestrator{}

// NewOrchestrator creates the frame driver for dev and builds its schedule.
//
// Parameters:
//   - dev: the device every frame is submitted to
//   - build: creates and initialises the schedule's passes from the shared collaborators
//   - options: functional options such as WithQueuedFrames and WithWorkers
//
// Returns:
//   - Orchestrator: the ready orchestrator
//   - error: a configuration, schedule or device error
func NewOrchestrator(dev device.Device, build ScheduleBuilder, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	if dev == nil || build == nil {
		panic("orchestrator: NewOrchestrator requires a device and a schedule builder")
	}
	o := &orchestrator{
		mu:           &sync.Mutex{},
		dev:          dev,
		workers:      max(runtime.NumCPU()-1, 1),
		queuedFrames: fence.DefaultQueuedFrames,
		logger:       common.Logger(),
	}
	for _, opt := range options {
		opt(o)
	}

	fences, err := fence.NewController(dev, fence.WithQueuedFrames(o.queuedFrames), fence.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	constants, err := upload.NewRing(dev, fences.SlotCount(), upload.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	trackerOpts := []resource_state.TrackerBuilderOption{resource_state.WithLogger(o.logger)}
	if o.observer != nil {
		trackerOpts = append(trackerOpts, resource_state.WithTransitionObserver(o.observer))
	}

	o.fences = fences
	o.constants = constants
	o.pipelines = pipeline.NewRegistry(dev)
	o.tracker = resource_state.NewTracker(trackerOpts...)
	o.queue = command.NewSubmissionQueue(dev, command.WithQueueLogger(o.logger))

	if err := o.load(build); err != nil {
		o.queue.Close()
		o.constants.Release()
		return nil, err
	}

	o.pool = worker.NewDynamicWorkerPool(o.workers, 256, 1*time.Second)
	o.logger.Info("orchestrator ready",
		"steps", len(o.schedule.Steps),
		"resources", len(o.schedule.Resources),
		"queuedFrames", fences.SlotCount(),
		"workers", o.workers,
	)
	return o, nil
}

// load builds the schedule and prepares it. A schedule that cannot be prepared is unregistered and
// its textures are released.
func (o *orchestrator) load(build ScheduleBuilder) error {
	s, err := build(o.Dependencies())
	if err != nil {
		return fmt.Errorf("orchestrator: build schedule: %w", err)
	}
	if s == nil {
		return fmt.Errorf("%w: builder returned no schedule", ErrInvalidSchedule)
	}
	if err := o.prepare(s); err != nil {
		for _, r := range s.Resources {
			o.tracker.Unregister(r.Resource)
		}
		for _, t := range s.Textures {
			t.Release()
		}
		return err
	}
	o.schedule = s
	return nil
}

// prepare registers the schedule's resources, validates it and allocates one barrier ring per
// glue point.
func (o *orchestrator) prepare(s *Schedule) error {
	for _, r := range s.Resources {
		if err := o.tracker.Register(r.Resource, r.Initial); err != nil {
			return fmt.Errorf("orchestrator: register %s: %w", r.Resource, err)
		}
	}
	if err := s.validate(o.tracker); err != nil {
		return err
	}

	var err error
	ring := func(label string) (command.Ring, error) {
		return command.NewRing(o.dev, o.fences, command.WithLabel(label), command.WithRingLogger(o.logger))
	}
	if o.beginRing, err = ring("barrier/begin"); err != nil {
		return err
	}
	o.stepRings = make([]command.Ring, len(s.Steps))
	for i, step := range s.Steps {
		if o.stepRings[i], err = ring("barrier/" + step.Name); err != nil {
			return err
		}
	}
	if o.endRing, err = ring("barrier/end"); err != nil {
		return err
	}
	return nil
}

func (o *orchestrator) Tracker() resource_state.Tracker { return o.tracker }

func (o *orchestrator) Fences() *fence.Controller { return o.fences }

func (o *orchestrator) Dependencies() pass.Dependencies {
	return pass.Dependencies{
		Device:    o.dev,
		Fences:    o.fences,
		Pipelines: o.pipelines,
		Queue:     o.queue,
		Constants: o.constants,
	}
}

func (o *orchestrator) Stats() FrameStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *orchestrator) ExecuteFrame(ctx context.Context, fc *upload.FrameConstants) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.terminated {
		return ErrTerminated
	}
	if o.err != nil {
		return o.err
	}

	start := time.Now()
	if err := o.fences.BeginFrame(ctx); err != nil {
		return o.fail(err)
	}
	stats, err := o.run(context.WithoutCancel(ctx), fc)
	if err != nil {
		return o.abort(err)
	}
	if err := o.fences.EndFrame(); err != nil {
		return o.fail(err)
	}
	if len(o.schedule.Present) > 0 {
		if err := o.dev.SwapChain().Present(); err != nil {
			return o.fail(err)
		}
	}

	stats.Elapsed = time.Since(start)
	o.stats = stats
	return nil
}

// run records the begun frame and waits until every buffer it pushed reached the device queue.
func (o *orchestrator) run(ctx context.Context, fc *upload.FrameConstants) (FrameStats, error) {
	slot := o.fences.SlotIndex()
	stats := FrameStats{Frame: o.fences.PendingValue(), Slot: slot}
	o.queue.ResetCount()
	if fc != nil {
		if err := o.constants.Write(slot, fc); err != nil {
			return stats, err
		}
	}

	glue := func(ring command.Ring, requests []resource_state.TransitionDirective) error {
		n, err := o.barrier(ctx, ring, requests)
		if err != nil {
			return &glueError{err: err}
		}
		if n > 0 {
			stats.Buffers++
			stats.GlueBuffers++
			stats.Transitions += n
		}
		return nil
	}

	if err := glue(o.beginRing, o.schedule.firstUse()); err != nil {
		return stats, err
	}
	for i, step := range o.schedule.Steps {
		if err := glue(o.stepRings[i], step.requests()); err != nil {
			return stats, err
		}
		if err := o.record(ctx, step, fc); err != nil {
			return stats, fmt.Errorf("orchestrator: step %s: %w", step.Name, err)
		}
		for _, p := range step.Passes {
			stats.Buffers += p.BufferCount()
		}
		if step.WaitDispatched {
			if err := o.queue.WaitExecuted(ctx, stats.Buffers); err != nil {
				return stats, err
			}
		}
	}

	present := make([]resource_state.TransitionDirective, len(o.schedule.Present))
	for i, p := range o.schedule.Present {
		present[i] = resource_state.TransitionDirective{Resource: p.Resource(), To: resource_state.StatePresent}
	}
	if err := glue(o.endRing, present); err != nil {
		return stats, err
	}
	return stats, o.queue.WaitExecuted(ctx, stats.Buffers)
}

// glueError marks a failed barrier. The tracker has already moved the requested resources, so the
// orchestrator cannot record another frame after one.
type glueError struct {
	err error
}

func (e *glueError) Error() string { return e.err.Error() }
func (e *glueError) Unwrap() error { return e.err }

// abort closes a frame that failed after BeginFrame: every buffer already pushed is handed to the
// device and the frame's fence value is signalled, so ring slots acquired for it become reusable.
// Failures that leave the orchestrator inconsistent are latched.
func (o *orchestrator) abort(cause error) error {
	if errors.Is(cause, device.ErrDeviceLost) {
		return o.fail(cause)
	}
	frame, pushed := o.fences.PendingValue(), o.queue.PushedCount()
	if err := o.queue.WaitExecuted(context.Background(), pushed); err != nil {
		return o.latch(errors.Join(cause, err))
	}
	if err := o.fences.EndFrame(); err != nil {
		return o.latch(errors.Join(cause, err))
	}
	o.logger.Warn("frame aborted", "frame", frame, "pushed", pushed, "err", cause)

	var ge *glueError
	if errors.As(cause, &ge) {
		return o.latch(cause)
	}
	return cause
}

// barrier transitions every requested resource and pushes one barrier buffer carrying the
// directives that were produced. Nothing is pushed when every request was already satisfied.
func (o *orchestrator) barrier(ctx context.Context, ring command.Ring, requests []resource_state.TransitionDirective) (int, error) {
	var directives []resource_state.TransitionDirective
	for _, req := range requests {
		d, ok, err := o.tracker.Transition(req.Resource, req.To)
		if err != nil {
			return 0, fmt.Errorf("orchestrator: %s: %w", ring.Label(), err)
		}
		if ok {
			directives = append(directives, d)
		}
	}
	if len(directives) == 0 {
		return 0, nil
	}

	buf, err := ring.AcquireNext(ctx, nil)
	if err != nil {
		return 0, err
	}
	buf.ResourceBarrier(directives)
	if err := buf.Close(); err != nil {
		return 0, err
	}
	if err := o.queue.Push(buf); err != nil {
		return 0, err
	}
	return len(directives), nil
}

// record runs the passes of step. A single pass records on the calling goroutine; several passes
// fan out to the worker pool and are joined before the next glue buffer.
func (o *orchestrator) record(ctx context.Context, step Step, fc *upload.FrameConstants) error {
	if len(step.Passes) == 1 {
		return step.Passes[0].RecordAndSubmit(ctx, fc)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(step.Passes))
	for i, p := range step.Passes {
		wg.Add(1)
		id := o.taskID
		o.taskID++
		o.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				errs[i] = p.RecordAndSubmit(ctx, fc)
				return nil, nil
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// fail latches device loss so every later frame reports it.
func (o *orchestrator) fail(err error) error {
	if errors.Is(err, device.ErrDeviceLost) {
		return o.latch(err)
	}
	return err
}

// latch stops every later frame with err.
func (o *orchestrator) latch(err error) error {
	if o.err == nil {
		o.logger.Error("frames stopped", "err", err)
	}
	o.err = err
	return err
}

func (o *orchestrator) Terminate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.terminated {
		return nil
	}
	o.terminated = true

	var flushErr error
	if o.err == nil {
		if err := o.fences.Flush(ctx); err != nil && !errors.Is(err, device.ErrDeviceLost) {
			flushErr = err
		}
	}
	o.queue.Close()
	for _, r := range o.schedule.Resources {
		o.tracker.Unregister(r.Resource)
	}
	for _, t := range o.schedule.Textures {
		t.Release()
	}
	o.constants.Release()
	o.logger.Info("orchestrator terminated", "frames", o.stats.Frame)
	return flushErr
}
