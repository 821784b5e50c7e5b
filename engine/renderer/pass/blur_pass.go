package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// blurPass box-filters the ambient accessibility buffer.
//
// Views: Inputs [ambient accessibility], Outputs [blur].
type blurPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &blurPass{}

// NewBlurPass creates the blur recorder.
func NewBlurPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &blurPass{rec: newRecorder(StageBlur, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *blurPass) Stage() Stage { return StageBlur }

func (p *blurPass) BufferCount() int { return 1 }

func (p *blurPass) Init(views Views) error {
	if err := p.rec.bind(views, requirement{inputs: 1, outputs: 1}, screenConfig(StageBlur, blurFSSource, nil)); err != nil {
		return err
	}
	params := GPUBlurParams{Radius: p.cfg.blurRadius}
	buf, err := p.rec.upload("BlurParams", wgpu.BufferUsageUniform, params.Marshal())
	if err != nil {
		return err
	}
	p.params = buf
	return nil
}

func (p *blurPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
