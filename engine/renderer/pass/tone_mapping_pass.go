package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// toneMappingPass maps the HDR light accumulation buffer into displayable range.
//
// Views: Inputs [light accumulation], Outputs [tone mapped color].
type toneMappingPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &toneMappingPass{}

// NewToneMappingPass creates the tone mapping recorder.
func NewToneMappingPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &toneMappingPass{rec: newRecorder(StageToneMapping, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *toneMappingPass) Stage() Stage { return StageToneMapping }

func (p *toneMappingPass) BufferCount() int { return 1 }

func (p *toneMappingPass) Init(views Views) error {
	if err := p.rec.bind(views, requirement{inputs: 1, outputs: 1}, screenConfig(StageToneMapping, toneMappingFSSource, nil)); err != nil {
		return err
	}
	buf, err := p.rec.upload("ToneMappingParams", wgpu.BufferUsageUniform, p.cfg.toneMapping.Marshal())
	if err != nil {
		return err
	}
	p.params = buf
	return nil
}

func (p *toneMappingPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
