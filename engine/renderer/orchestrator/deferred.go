package orchestrator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/cogentcore/webgpu/wgpu"
)

// Deferred step names.
const (
	StepGeometry         = "geometry"
	StepAmbientOcclusion = "ambient_occlusion"
	StepBlur             = "blur"
	StepAmbientLight     = "ambient_light"
	StepEnvironmentLight = "environment_light"
	StepPunctualLight    = "punctual_light"
	StepSkyBox           = "sky_box"
	StepToneMapping      = "tone_mapping"
	StepPostProcess      = "post_process"
)

// Intermediate buffer formats of the deferred schedule.
const (
	NormalSmoothnessFormat   = wgpu.TextureFormatRGBA16Float
	BaseColorMetalMaskFormat = wgpu.TextureFormatRGBA8Unorm
	DepthFormat              = wgpu.TextureFormatDepth32Float
	AccessibilityFormat      = wgpu.TextureFormatRGBA8Unorm
	ColorFormat              = wgpu.TextureFormatRGBA16Float
)

type deferredConfig struct {
	width, height uint32

	environment bool
	punctual    bool
	skyBox      bool
	postProcess bool

	passOptions map[pass.Stage][]pass.PassBuilderOption
	common      []pass.PassBuilderOption
}

// DeferredBuilderOption configures the standard deferred schedule.
type DeferredBuilderOption func(*deferredConfig)

// WithSize sets the size of the intermediate buffers. The swap chain size is used when unset.
func WithSize(width, height uint32) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.width, c.height = width, height
	}
}

// WithEnvironmentLight toggles the environment lighting pass.
func WithEnvironmentLight(enabled bool) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.environment = enabled
	}
}

// WithPunctualLight toggles the punctual lighting pass.
func WithPunctualLight(enabled bool) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.punctual = enabled
	}
}

// WithSkyBox toggles the sky box pass.
func WithSkyBox(enabled bool) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.skyBox = enabled
	}
}

// WithPostProcess toggles the post-process pass. When disabled, tone mapping writes the back buffer.
func WithPostProcess(enabled bool) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.postProcess = enabled
	}
}

// WithPassOptions appends options for the recorder of stage.
//
// Parameters:
//   - stage: the stage the options apply to
//   - options: recorder options such as pass.WithMeshes or pass.WithExposure
//
// Returns:
//   - DeferredBuilderOption: the option
func WithPassOptions(stage pass.Stage, options ...pass.PassBuilderOption) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.passOptions[stage] = append(c.passOptions[stage], options...)
	}
}

// WithCommonPassOptions appends options applied to every recorder, ahead of the per-stage ones.
func WithCommonPassOptions(options ...pass.PassBuilderOption) DeferredBuilderOption {
	return func(c *deferredConfig) {
		c.common = append(c.common, options...)
	}
}

// deferredTargets are the intermediate buffers shared between the deferred passes.
type deferredTargets struct {
	normal, baseColor, depth, ambient, blur, color1, color2 device.Texture
}

// NewDeferredSchedule returns the builder of the standard deferred pipeline:
//
//	geometry -> ambient occlusion -> blur -> ambient light -> environment light
//	  -> punctual light -> sky box -> tone mapping -> post process -> back buffer
//
// Ambient light and tone mapping wait until their buffers reached the device queue before the
// frame moves on.
//
// Parameters:
//   - options: pass toggles and recorder options
//
// Returns:
//   - ScheduleBuilder: the builder passed to NewOrchestrator
func NewDeferredSchedule(options ...DeferredBuilderOption) ScheduleBuilder {
	cfg := &deferredConfig{
		environment: true,
		punctual:    true,
		skyBox:      true,
		postProcess: true,
		passOptions: make(map[pass.Stage][]pass.PassBuilderOption),
	}
	for _, opt := range options {
		opt(cfg)
	}
	return func(deps pass.Dependencies) (*Schedule, error) {
		return buildDeferred(cfg, deps)
	}
}

func buildDeferred(cfg *deferredConfig, deps pass.Dependencies) (_ *Schedule, err error) {
	swap := deps.Device.SwapChain()
	width, height := cfg.width, cfg.height
	if width == 0 || height == 0 {
		back := swap.Buffer(0).Resource()
		width, height = back.Width, back.Height
	}

	s := &Schedule{}
	defer func() {
		if err != nil {
			for _, tx := range s.Textures {
				tx.Release()
			}
		}
	}()
	create := func(label string, format wgpu.TextureFormat) (device.Texture, error) {
		t, err := deps.Device.CreateTexture(device.TextureDescriptor{Label: label, Width: width, Height: height, Format: format})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: create %s: %w", label, err)
		}
		s.Textures = append(s.Textures, t)
		s.Resources = append(s.Resources, Registration{Resource: t.Resource(), Initial: resource_state.StateCommon})
		return t, nil
	}

	var t deferredTargets
	for _, c := range []struct {
		dst    *device.Texture
		label  string
		format wgpu.TextureFormat
	}{
		{&t.normal, "NormalSmoothness", NormalSmoothnessFormat},
		{&t.baseColor, "BaseColorMetalMask", BaseColorMetalMaskFormat},
		{&t.depth, "Depth", DepthFormat},
		{&t.ambient, "AmbientAccessibility", AccessibilityFormat},
		{&t.blur, "Blur", AccessibilityFormat},
		{&t.color1, "Color1", ColorFormat},
		{&t.color2, "Color2", ColorFormat},
	} {
		if *c.dst, err = create(c.label, c.format); err != nil {
			return nil, err
		}
	}
	for i := range swap.BufferCount() {
		s.Resources = append(s.Resources, Registration{Resource: swap.Buffer(i).Resource(), Initial: resource_state.StatePresent})
	}
	back := swap.View()
	s.Present = []resource_state.Source{back}

	opts := func(stage pass.Stage) []pass.PassBuilderOption {
		return append(append([]pass.PassBuilderOption(nil), cfg.common...), cfg.passOptions[stage]...)
	}
	initPass := func(p pass.Pass, views pass.Views) (pass.Pass, error) {
		if err := p.Init(views); err != nil {
			return nil, fmt.Errorf("orchestrator: init %s: %w", p.Stage(), err)
		}
		return p, nil
	}
	v := func(tx ...device.Texture) []device.View {
		out := make([]device.View, len(tx))
		for i, x := range tx {
			out[i] = x.View()
		}
		return out
	}
	write := func(tx device.Texture) Access { return Access{Resource: tx.Resource(), State: resource_state.StateRenderTarget} }
	depthWrite := Access{Resource: t.depth.Resource(), State: resource_state.StateDepthWrite}

	geometry, err := initPass(pass.NewGeometryPass(deps, opts(pass.StageGeometry)...),
		pass.Views{Outputs: v(t.normal, t.baseColor), Depth: t.depth.View()})
	if err != nil {
		return nil, err
	}
	s.Steps = append(s.Steps, Step{
		Name:   StepGeometry,
		Passes: []pass.Pass{geometry},
		Writes: []Access{write(t.normal), write(t.baseColor), depthWrite},
	})

	ao, err := initPass(pass.NewAmbientOcclusionPass(deps, opts(pass.StageAmbientOcclusion)...),
		pass.Views{Inputs: v(t.normal, t.depth), Outputs: v(t.ambient)})
	if err != nil {
		return nil, err
	}
	s.Steps = append(s.Steps, Step{
		Name:   StepAmbientOcclusion,
		Passes: []pass.Pass{ao},
		Reads:  []resource_state.Source{t.normal.Resource(), t.depth.Resource()},
		Writes: []Access{write(t.ambient)},
	})

	blur, err := initPass(pass.NewBlurPass(deps, opts(pass.StageBlur)...),
		pass.Views{Inputs: v(t.ambient), Outputs: v(t.blur)})
	if err != nil {
		return nil, err
	}
	s.Steps = append(s.Steps, Step{
		Name:   StepBlur,
		Passes: []pass.Pass{blur},
		Reads:  []resource_state.Source{t.ambient.Resource()},
		Writes: []Access{write(t.blur)},
	})

	ambient, err := initPass(pass.NewAmbientLightPass(deps, opts(pass.StageAmbientLight)...),
		pass.Views{Inputs: v(t.baseColor, t.blur), Outputs: v(t.color1)})
	if err != nil {
		return nil, err
	}
	s.Steps = append(s.Steps, Step{
		Name:           StepAmbientLight,
		Passes:         []pass.Pass{ambient},
		Reads:          []resource_state.Source{t.baseColor.Resource(), t.blur.Resource()},
		Writes:         []Access{write(t.color1)},
		WaitDispatched: true,
	})

	// environment then punctual light add into color1; separate steps keep the blend order fixed
	lightViews := pass.Views{Inputs: v(t.normal, t.baseColor, t.depth), Outputs: v(t.color1)}
	lightReads := []resource_state.Source{t.normal.Resource(), t.baseColor.Resource(), t.depth.Resource()}
	for _, l := range []struct {
		enabled bool
		name    string
		stage   pass.Stage
		create  func(pass.Dependencies, ...pass.PassBuilderOption) pass.Pass
	}{
		{cfg.environment, StepEnvironmentLight, pass.StageEnvironmentLight, pass.NewEnvironmentLightPass},
		{cfg.punctual, StepPunctualLight, pass.StagePunctualLight, pass.NewPunctualLightPass},
	} {
		if !l.enabled {
			continue
		}
		p, err := initPass(l.create(deps, opts(l.stage)...), lightViews)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, Step{
			Name:   l.name,
			Passes: []pass.Pass{p},
			Reads:  lightReads,
			Writes: []Access{write(t.color1)},
		})
	}

	if cfg.skyBox {
		sky, err := initPass(pass.NewSkyBoxPass(deps, opts(pass.StageSkyBox)...),
			pass.Views{Outputs: v(t.color1), Depth: t.depth.View()})
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, Step{
			Name:   StepSkyBox,
			Passes: []pass.Pass{sky},
			Writes: []Access{write(t.color1), depthWrite},
		})
	}

	toneTarget := []device.View{t.color2.View()}
	toneWrite := write(t.color2)
	if !cfg.postProcess {
		toneTarget = []device.View{back}
		toneWrite = Access{Resource: back, State: resource_state.StateRenderTarget}
	}
	tone, err := initPass(pass.NewToneMappingPass(deps, opts(pass.StageToneMapping)...),
		pass.Views{Inputs: v(t.color1), Outputs: toneTarget})
	if err != nil {
		return nil, err
	}
	s.Steps = append(s.Steps, Step{
		Name:           StepToneMapping,
		Passes:         []pass.Pass{tone},
		Reads:          []resource_state.Source{t.color1.Resource()},
		Writes:         []Access{toneWrite},
		WaitDispatched: true,
	})

	if cfg.postProcess {
		post, err := initPass(pass.NewPostProcessPass(deps, opts(pass.StagePostProcess)...),
			pass.Views{Inputs: v(t.color2), Outputs: []device.View{back}})
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, Step{
			Name:   StepPostProcess,
			Passes: []pass.Pass{post},
			Reads:  []resource_state.Source{t.color2.Resource()},
			Writes: []Access{{Resource: back, State: resource_state.StateRenderTarget}},
		})
	}
	return s, nil
}
