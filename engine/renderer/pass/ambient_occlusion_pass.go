package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// ambientOcclusionPass estimates per-pixel ambient accessibility from the normal and depth
// buffers into a single output.
//
// Views: Inputs [normal/smoothness, depth], Outputs [ambient accessibility].
type ambientOcclusionPass struct {
	rec    *recorder
	cfg    *passConfig
	params device.Buffer
}

var _ Pass = &ambientOcclusionPass{}

// NewAmbientOcclusionPass creates the ambient occlusion recorder.
//
// Parameters:
//   - deps: the shared collaborators
//   - options: functional options such as WithAmbientOcclusion
//
// Returns:
//   - Pass: the recorder, uninitialised
func NewAmbientOcclusionPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &ambientOcclusionPass{rec: newRecorder(StageAmbientOcclusion, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *ambientOcclusionPass) Stage() Stage { return StageAmbientOcclusion }

func (p *ambientOcclusionPass) BufferCount() int { return 1 }

func (p *ambientOcclusionPass) Init(views Views) error {
	if err := p.rec.bind(views, requirement{inputs: 2, outputs: 1}, screenConfig(StageAmbientOcclusion, ambientOcclusionFSSource, nil)); err != nil {
		return err
	}
	params, err := p.rec.upload("AmbientOcclusionParams", wgpu.BufferUsageUniform, p.cfg.ambientOcclusion.Marshal())
	if err != nil {
		return err
	}
	p.params = params
	return nil
}

func (p *ambientOcclusionPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	buf.ClearRenderTarget(p.rec.views.Outputs[0], common.Color{R: 1, G: 1, B: 1, A: 1})
	p.rec.bindInputs(buf, p.rec.frameConstants(), p.params)
	buf.Draw(screenVertexCount, 1)
	return p.rec.submit(buf)
}
