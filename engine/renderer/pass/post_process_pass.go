package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// postProcessPass applies the final color grade and writes the back buffer.
//
// Views: Inputs [tone mapped color], Outputs [back buffer].
type postProcessPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &postProcessPass{}

// NewPostProcessPass creates the post process recorder.
func NewPostProcessPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &postProcessPass{rec: newRecorder(StagePostProcess, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *postProcessPass) Stage() Stage { return StagePostProcess }

func (p *postProcessPass) BufferCount() int { return 1 }

func (p *postProcessPass) Init(views Views) error {
	if err := p.rec.bind(views, requirement{inputs: 1, outputs: 1}, screenConfig(StagePostProcess, postProcessFSSource, nil)); err != nil {
		return err
	}
	buf, err := p.rec.upload("PostProcessParams", wgpu.BufferUsageUniform, p.cfg.postProcess.Marshal())
	if err != nil {
		return err
	}
	p.params = buf
	return nil
}

func (p *postProcessPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.rec.frameConstants(), p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
