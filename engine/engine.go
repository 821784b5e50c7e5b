package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/orchestrator"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	mu *sync.Mutex

	dev    device.Device
	orch   orchestrator.Orchestrator
	camera camera.Camera
	window window.Window
	logger *slog.Logger

	tickRateChannel chan time.Duration // dynamic tick rate updates
	tickRate        time.Duration
	tickCallback    func(deltaTime float32)
	renderCallback  func(stats orchestrator.FrameStats)

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	frameLimit       time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        uint64        // 0 = run until quit
	lightCount       uint32
	terminateTimeout time.Duration

	frames atomic.Uint64

	quitChannel chan struct{}
	quitOnce    sync.Once
	renderDone  chan struct{}
	running     atomic.Bool
}

// Engine drives the frame loop: it feeds the camera into the orchestrator once per frame, moves
// the camera from window input at a fixed tick rate and shuts the orchestrator down on exit.
type Engine interface {
	// Device returns the device frames are submitted to.
	Device() device.Device

	// Orchestrator returns the frame driver.
	Orchestrator() orchestrator.Orchestrator

	// Camera returns the camera whose frame constants are uploaded each frame.
	Camera() camera.Camera

	// Window returns the window, or nil when running headless.
	Window() window.Window

	// EnableProfiler enables periodic frame statistics in the log.
	EnableProfiler()

	// DisableProfiler disables periodic frame statistics.
	DisableProfiler()

	// SetTickRate sets the tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick, after camera input is applied.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each executed frame.
	//
	// Parameters:
	//   - callback: function receiving the statistics of the frame
	SetRenderCallback(callback func(stats orchestrator.FrameStats))

	// SetRenderFrameLimit caps the render loop. Pass 0 to uncap it (default).
	//
	// Parameters:
	//   - fps: maximum frames per second
	SetRenderFrameLimit(fps float64)

	// Frames returns the number of frames executed so far.
	Frames() uint64

	// Run starts the engine and blocks until it stops. With a window the caller must be the
	// goroutine that created it; the frame loop then runs on its own goroutine.
	// The orchestrator is terminated before Run returns.
	//
	// Parameters:
	//   - ctx: cancelling ctx stops the engine
	//
	// Returns:
	//   - error: the error that stopped the frame loop, such as device.ErrDeviceLost, or nil
	Run(ctx context.Context) error

	// Quit signals the engine to stop. Safe to call multiple times.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates an Engine around an opened device and its orchestrator.
// Panics if either is nil.
//
// Parameters:
//   - dev: the device the orchestrator submits to
//   - orch: the frame driver
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(dev device.Device, orch orchestrator.Orchestrator, options ...EngineBuilderOption) Engine {
	if dev == nil || orch == nil {
		panic("engine: device and orchestrator are required")
	}
	e := &engine{
		mu:               &sync.Mutex{},
		dev:              dev,
		orch:             orch,
		logger:           common.Logger(),
		tickRateChannel:  make(chan time.Duration, 1),
		tickRate:         time.Second / 60,
		terminateTimeout: 5 * time.Second,
		quitChannel:      make(chan struct{}),
		renderDone:       make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	width, height := e.surfaceSize()
	if e.camera == nil {
		e.camera = camera.NewCamera(
			camera.WithAspect(float32(width)/float32(height)),
			camera.WithController(camera.NewFlyController(
				camera.WithPosition(common.Vec3{0, 2, 8}),
				camera.WithTarget(common.Vec3{}),
			)),
		)
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.camera.SetAspect(float32(width) / float32(height))
		})
		e.window.SetMouseLookCallback(func(dx, dy float32) {
			if ctrl := e.camera.Controller(); ctrl != nil {
				ctrl.MouseLook(dx, dy)
			}
		})
	}
	return e
}

func (e *engine) Device() device.Device                   { return e.dev }
func (e *engine) Orchestrator() orchestrator.Orchestrator { return e.orch }
func (e *engine) Camera() camera.Camera                   { return e.camera }
func (e *engine) Window() window.Window                   { return e.window }
func (e *engine) Frames() uint64                          { return e.frames.Load() }

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the tick rate. If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.mu.Lock()
		e.tickRate = newRate
		e.mu.Unlock()
		return
	}
	// replace a pending update that the tick loop has not consumed yet
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(stats orchestrator.FrameStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fps <= 0 {
		e.frameLimit = 0
		return
	}
	e.frameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.handleTick(ctx)
	}()

	var err error
	if e.window == nil {
		err = e.handleRender(ctx)
	} else {
		errCh := make(chan error, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- e.handleRender(ctx)
		}()
		// the frame loop stopped on its own: close the window from its thread
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.renderDone:
				_ = e.window.Close()
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
		err = <-errCh
		if e.window.IsRunning() {
			_ = e.window.Close()
		}
	}

	e.signalQuit()
	wg.Wait()
	return err
}

// Quit signals all engine goroutines to stop.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel exactly once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleTick runs the fixed-rate tick loop: window input moves the camera, then the tick
// callback runs. Exits when the quit channel is closed or ctx is done.
func (e *engine) handleTick(ctx context.Context) {
	e.mu.Lock()
	rate := e.tickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quitChannel:
			return
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		case now := <-ticker.C:
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.applyInput(dt)
			e.mu.Lock()
			cb := e.tickCallback
			e.mu.Unlock()
			if cb != nil {
				cb(dt)
			}
		}
	}
}

// applyInput moves the camera controller from the held keys.
func (e *engine) applyInput(dt float32) {
	if e.window == nil {
		return
	}
	ctrl := e.camera.Controller()
	if ctrl == nil {
		return
	}
	axis := func(pos, neg window.Key) float32 {
		var v float32
		if e.window.KeyDown(pos) {
			v += dt
		}
		if e.window.KeyDown(neg) {
			v -= dt
		}
		return v
	}
	if d := axis(window.KeyW, window.KeyS); d != 0 {
		ctrl.Walk(d)
	}
	if d := axis(window.KeyD, window.KeyA); d != 0 {
		ctrl.Strafe(d)
	}
	if d := axis(window.KeyE, window.KeyQ); d != 0 {
		ctrl.RotateY(d)
	}
}

// handleRender runs the frame loop until quit, ctx cancellation, the frame limit or a frame
// error. The orchestrator is terminated on the way out.
func (e *engine) handleRender(ctx context.Context) (err error) {
	defer close(e.renderDone)
	defer e.terminate()
	// a panicking recorder must not take down the process without terminating the orchestrator
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame loop recovered from panic", "panic", r)
			err = fmt.Errorf("engine: frame loop panic: %v", r)
			e.signalQuit()
		}
	}()

	width, height := e.surfaceSize()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.quitChannel:
			return nil
		default:
		}
		start := time.Now()

		e.camera.Update()
		fc := e.camera.FrameConstants(width, height, e.lightCount)
		if err := e.orch.ExecuteFrame(ctx, fc); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			e.logger.Error("frame failed", "frame", e.frames.Load()+1, "err", err)
			e.signalQuit()
			return err
		}
		n := e.frames.Add(1)
		stats := e.orch.Stats()

		e.mu.Lock()
		cb, limit := e.renderCallback, e.frameLimit
		e.mu.Unlock()
		if cb != nil {
			cb(stats)
		}
		if e.profilingEnabled.Load() {
			e.profiler.Tick(stats)
		}
		if e.maxFrames > 0 && n >= e.maxFrames {
			e.signalQuit()
			return nil
		}

		if limit > 0 {
			if remaining := limit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// terminate flushes and shuts the orchestrator down with its own deadline, since the run
// context may already be cancelled.
func (e *engine) terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), e.terminateTimeout)
	defer cancel()
	if err := e.orch.Terminate(ctx); err != nil {
		e.logger.Warn("orchestrator terminate", "err", err)
	}
}

// surfaceSize returns the back buffer size in pixels.
func (e *engine) surfaceSize() (uint32, uint32) {
	res := e.dev.SwapChain().Buffer(0).Resource()
	return res.Width, max(res.Height, 1)
}
