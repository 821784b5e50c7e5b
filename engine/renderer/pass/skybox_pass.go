package pass

import (
	"context"

	"github.com/Carmen-Shannon/oxy-deferred/engine/geometry"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
)

// skyBoxPass draws a sphere centered on the camera at the far plane, depth tested against the
// geometry so only uncovered pixels receive sky.
//
// Views: Outputs [light accumulation], Depth [depth].
type skyBoxPass struct {
	rec        *recorder
	cfg        *passConfig
	vertices   device.Buffer
	indices    device.Buffer
	indexCount uint32
}

var _ Pass = &skyBoxPass{}

// NewSkyBoxPass creates the sky box recorder.
func NewSkyBoxPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	return &skyBoxPass{rec: newRecorder(StageSkyBox, cfg.label, deps, cfg.logger), cfg: cfg}
}

func (p *skyBoxPass) Stage() Stage { return StageSkyBox }

func (p *skyBoxPass) BufferCount() int { return 1 }

func (p *skyBoxPass) Init(views Views) error {
	build := func(views Views) (pipeline.Config, error) {
		vs, fs, err := shaderPair(StageSkyBox, skyBoxVSSource, skyBoxFSSource)
		if err != nil {
			return nil, err
		}
		return pipeline.NewConfig(StageSkyBox.Key(),
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
			pipeline.WithColorFormats(outputFormats(views)...),
			pipeline.WithDepth(views.Depth.Resource().Format, true, false),
		), nil
	}
	if err := p.rec.bind(views, requirement{outputs: 1, depth: true}, build); err != nil {
		return err
	}

	sphere := geometry.NewSphere(1, 32, 16)
	vb, err := p.rec.upload("SkyBoxVertices", wgpu.BufferUsageVertex, sphere.VertexBytes())
	if err != nil {
		return err
	}
	ib, err := p.rec.upload("SkyBoxIndices", wgpu.BufferUsageIndex, sphere.IndexBytes())
	if err != nil {
		return err
	}
	p.vertices, p.indices, p.indexCount = vb, ib, uint32(len(sphere.Indices))
	return nil
}

func (p *skyBoxPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	buf, err := p.rec.begin(ctx)
	if err != nil {
		return err
	}
	p.rec.bindInputs(buf, p.rec.frameConstants())
	buf.SetVertexBuffer(p.vertices)
	buf.SetIndexBuffer(p.indices)
	buf.DrawIndexed(p.indexCount, 1)
	return p.rec.submit(buf)
}
