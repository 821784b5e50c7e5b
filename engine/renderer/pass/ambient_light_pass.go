package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// ambientLightPass starts the light accumulation buffer: it clears it and writes base color
// times ambient light times the blurred accessibility. Later lighting stages add onto it.
//
// Views: Inputs [base color/metal mask, blur], Outputs [light accumulation].
type ambientLightPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &ambientLightPass{}

// NewAmbientLightPass creates the ambient light composite recorder.
func NewAmbientLightPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &ambientLightPass{rec: newRecorder(StageAmbientLight, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *ambientLightPass) Stage() Stage { return StageAmbientLight }

func (p *ambientLightPass) BufferCount() int { return 1 }

func (p *ambientLightPass) Init(views Views) error {
	if err := p.rec.bind(views, requirement{inputs: 2, outputs: 1}, screenConfig(StageAmbientLight, ambientLightFSSource, nil)); err != nil {
		return err
	}
	buf, err := p.rec.upload("AmbientParams", wgpu.BufferUsageUniform, p.cfg.ambient.Marshal())
	if err != nil {
		return err
	}
	p.params = buf
	return nil
}

func (p *ambientLightPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	buf.ClearRenderTarget(p.rec.views.Outputs[0], common.Color{A: 1})
	p.rec.bindInputs(buf, p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
