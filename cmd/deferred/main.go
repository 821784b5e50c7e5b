// Command deferred runs the deferred renderer, either headless on the simulated device or in a
// GLFW window on the WebGPU backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/config"
	"github.com/Carmen-Shannon/oxy-deferred/engine/geometry"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/orchestrator"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// headlessFrames is the frame count of a simulated run when -frames is not given.
const headlessFrames = 120

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		frames     = flag.Uint64("frames", 0, "stop after this many frames (0 = until closed)")
		profile    = flag.Bool("profile", false, "log frame statistics every second")
	)
	flag.Parse()

	if err := run(*configPath, *frames, *profile); err != nil {
		fmt.Fprintln(os.Stderr, "deferred:", err)
		os.Exit(1)
	}
}

func run(configPath string, frames uint64, profile bool) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	common.SetLogger(logger)

	devOpts := cfg.DeviceOptions()
	var win window.Window
	if cfg.Backend() == device.BackendTypeWGPU {
		var err error
		win, err = window.NewWindow(
			window.WithTitle(cfg.Title),
			window.WithSize(int(cfg.Device.Width), int(cfg.Device.Height)),
		)
		if err != nil {
			return err
		}
		width, height := win.Size()
		devOpts = append(devOpts,
			device.WithSurfaceDescriptor(win.SurfaceDescriptor()),
			device.WithSurfaceSize(uint32(width), uint32(height)),
		)
	} else {
		devOpts = append(devOpts, device.WithAutoComplete(true))
		if frames == 0 {
			frames = headlessFrames
		}
	}

	dev, err := device.NewDevice(devOpts...)
	if err != nil {
		if win != nil {
			_ = win.Close()
		}
		return err
	}
	defer dev.Release()

	schedule := orchestrator.NewDeferredSchedule(append(cfg.DeferredOptions(),
		orchestrator.WithPassOptions(pass.StageGeometry, pass.WithMeshes(sceneMeshes()...)),
	)...)
	orch, err := orchestrator.NewOrchestrator(dev, schedule, cfg.OrchestratorOptions()...)
	if err != nil {
		return err
	}

	back := dev.SwapChain().Buffer(0).Resource()
	cam := camera.NewCamera(
		camera.WithFov(cfg.FovRadians()),
		camera.WithAspect(float32(back.Width)/float32(max(back.Height, 1))),
		camera.WithClipPlanes(cfg.Camera.Near, cfg.Camera.Far),
		camera.WithController(camera.NewFlyController(
			camera.WithPosition(cfg.CameraPosition()),
			camera.WithTarget(cfg.CameraTarget()),
			camera.WithMoveSpeed(cfg.Camera.MoveSpeed),
		)),
	)

	eng := engine.NewEngine(dev, orch,
		engine.WithWindow(win),
		engine.WithCamera(cam),
		engine.WithProfiling(profile),
		engine.WithMaxFrames(frames),
		engine.WithRenderFrameLimit(cfg.Frames.Limit),
		engine.WithLightCount(uint32(len(cfg.Lights))),
		engine.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("running", "backend", cfg.Backend(), "frames", frames, "queued", cfg.Frames.Queued)
	err = eng.Run(ctx)
	if errors.Is(err, device.ErrDeviceLost) {
		return fmt.Errorf("device lost after %d frames: %w", eng.Frames(), err)
	}
	if err != nil {
		return err
	}
	logger.Info("stopped", "frames", eng.Frames())
	return nil
}

// sceneMeshes returns a ground slab with a ring of spheres and boxes on it.
func sceneMeshes() []pass.Mesh {
	ground := geometry.NewBox(20, 0.2, 20)
	sphere := geometry.NewSphere(0.6, 24, 12)
	box := geometry.NewBox(1, 1, 1)

	meshes := []pass.Mesh{{
		Label:      "ground",
		Data:       &ground,
		World:      common.Translation(common.Vec3{0, -0.1, 0}),
		BaseColor:  [4]float32{0.6, 0.6, 0.6, 1},
		Smoothness: 0.2,
	}}
	const ring = 8
	for i := range ring {
		angle := float32(i) * 2 * math.Pi / ring
		pos := common.RotationY(angle).TransformPoint(common.Vec3{4, 0.6, 0})
		m := pass.Mesh{
			Label:      fmt.Sprintf("item/%d", i),
			World:      common.Translation(pos),
			BaseColor:  [4]float32{0.9, 0.3 + 0.08*float32(i), 0.2, 1},
			MetalMask:  float32(i % 2),
			Smoothness: 0.7,
		}
		if i%2 == 0 {
			m.Data = &sphere
		} else {
			m.Data = &box
		}
		meshes = append(meshes, m)
	}
	return meshes
}
