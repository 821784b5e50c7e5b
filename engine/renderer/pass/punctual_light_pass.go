package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// punctualLightPass adds point lights onto the light accumulation buffer, drawing one point per
// light. The lights are uploaded once at Init into an immutable storage buffer.
//
// Views: Inputs [normal/smoothness, base color/metal mask, depth], Outputs [light accumulation].
type punctualLightPass struct {
	rec    *recorder
	cfg    *passConfig
	lights device.Buffer
}

var _ Pass = &punctualLightPass{}

// NewPunctualLightPass creates the punctual light recorder.
//
// Parameters:
//   - deps: the shared collaborators
//   - options: functional options such as WithLights
//
// Returns:
//   - Pass: the recorder, uninitialised
func NewPunctualLightPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &punctualLightPass{rec: newRecorder(StagePunctualLight, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *punctualLightPass) Stage() Stage { return StagePunctualLight }

func (p *punctualLightPass) BufferCount() int { return 1 }

// LightCount returns the number of lights drawn per frame.
func (p *punctualLightPass) LightCount() int { return len(p.cfg.lights) }

func (p *punctualLightPass) Init(views Views) error {
	build := func(views Views) (pipeline.Config, error) {
		vs, fs, err := shaderPair(StagePunctualLight, punctualLightVSSource, punctualLightFSSource)
		if err != nil {
			return nil, err
		}
		return pipeline.NewConfig(StagePunctualLight.Key(),
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
			pipeline.WithTopology(wgpu.PrimitiveTopologyPointList),
			pipeline.WithColorFormats(outputFormats(views)...),
			pipeline.WithBlendState(pipeline.AdditiveBlend()),
		), nil
	}
	if err := p.rec.bind(views, requirement{inputs: 3, outputs: 1}, build); err != nil {
		return err
	}
	buf, err := p.rec.upload("PunctualLights", wgpu.BufferUsageStorage, upload.MarshalPointLights(p.cfg.lights))
	if err != nil {
		return err
	}
	p.lights = buf
	return nil
}

// RecordAndSubmit draws one point per light. With no lights the buffer carries no draw but is
// still submitted, so the frame's buffer count does not depend on scene content.
func (p *punctualLightPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.rec.frameConstants(), p.lights)
	if n := len(p.cfg.lights); n > 0 {
		buf.Draw(uint32(n), 1)
	}
	return p.rec.submit(buf)
}
