package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// environmentLightPass adds hemisphere and sun lighting onto the light accumulation buffer.
//
// Views: Inputs [normal/smoothness, base color/metal mask, depth], Outputs [light accumulation].
type environmentLightPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &environmentLightPass{}

// NewEnvironmentLightPass creates the environment light recorder.
func NewEnvironmentLightPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &environmentLightPass{rec: newRecorder(StageEnvironmentLight, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *environmentLightPass) Stage() Stage { return StageEnvironmentLight }

func (p *environmentLightPass) BufferCount() int { return 1 }

func (p *environmentLightPass) Init(views Views) error {
	build := screenConfig(StageEnvironmentLight, environmentLightFSSource, pipeline.AdditiveBlend())
	if err := p.rec.bind(views, requirement{inputs: 3, outputs: 1}, build); err != nil {
		return err
	}
	buf, err := p.rec.upload("EnvironmentParams", wgpu.BufferUsageUniform, p.cfg.environment.Marshal())
	if err != nil {
		return err
	}
	p.params = buf
	return nil
}

func (p *environmentLightPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.rec.frameConstants(), p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
