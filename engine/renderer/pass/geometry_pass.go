package pass

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/geometry"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/sync/errgroup"
)

// Mesh is one drawable of the geometry pass.
type Mesh struct {
	Label      string
	Data       *geometry.MeshData
	World      common.Mat4
	BaseColor  [4]float32
	MetalMask  float32
	Smoothness float32
}

// meshBuffers are the GPU buffers of one mesh plus its world-space bounding sphere.
type meshBuffers struct {
	label      string
	vertices   device.Buffer
	indices    device.Buffer
	object     device.Buffer
	indexCount uint32
	center     common.Vec3
	radius     float32
}

// geometryPass fills the geometry buffers. Meshes are spread over several recorders that encode
// in parallel; their buffers are pushed in recorder order and the first one clears the targets.
//
// Views: Outputs [normal/smoothness, base color/metal mask], Depth [depth].
type geometryPass struct {
	cfg       *passConfig
	recorders []*recorder
	batches   [][]*meshBuffers
	visible   atomic.Int64
}

var _ Pass = &geometryPass{}

// NewGeometryPass creates the geometry recorder.
//
// Parameters:
//   - deps: the shared collaborators
//   - options: functional options such as WithMeshes, WithRecorders and WithFrustumCulling
//
// Returns:
//   - Pass: the recorder, uninitialised
func NewGeometryPass(deps Dependencies, options ...PassBuilderOption) Pass {
	cfg := newPassConfig(options)
	label := common.Coalesce(cfg.label, StageGeometry.Key())

	p := &geometryPass{cfg: cfg, recorders: make([]*recorder, cfg.recorders)}
	for i := range p.recorders {
		p.recorders[i] = newRecorder(StageGeometry, fmt.Sprintf("%s/%d", label, i), deps, cfg.logger)
	}
	return p
}

func (p *geometryPass) Stage() Stage { return StageGeometry }

func (p *geometryPass) BufferCount() int { return len(p.recorders) }

// Visible returns how many meshes the last RecordAndSubmit drew.
func (p *geometryPass) Visible() int { return int(p.visible.Load()) }

func (p *geometryPass) Init(views Views) error {
	build := func(views Views) (pipeline.Config, error) {
		vs, fs, err := shaderPair(StageGeometry, geometryVSSource, geometryFSSource)
		if err != nil {
			return nil, err
		}
		return pipeline.NewConfig(StageGeometry.Key(),
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
			pipeline.WithCullMode(wgpu.CullModeBack),
			pipeline.WithColorFormats(outputFormats(views)...),
			pipeline.WithDepth(views.Depth.Resource().Format, true, true),
		), nil
	}
	for _, r := range p.recorders {
		if err := r.bind(views, requirement{outputs: 2, depth: true}, build); err != nil {
			return err
		}
	}

	p.batches = make([][]*meshBuffers, len(p.recorders))
	for i, m := range p.cfg.meshes {
		mb, err := p.uploadMesh(i, m)
		if err != nil {
			return err
		}
		b := i % len(p.batches)
		p.batches[b] = append(p.batches[b], mb)
	}
	return nil
}

func (p *geometryPass) uploadMesh(i int, m Mesh) (*meshBuffers, error) {
	if m.Data == nil || len(m.Data.Indices) == 0 {
		return nil, fmt.Errorf("%w: mesh %d (%s) has no geometry", ErrInvalidConfiguration, i, m.Label)
	}
	label := common.Coalesce(m.Label, fmt.Sprintf("mesh%d", i))
	r := p.recorders[0]

	vb, err := r.upload(label+" vertices", wgpu.BufferUsageVertex, m.Data.VertexBytes())
	if err != nil {
		return nil, err
	}
	ib, err := r.upload(label+" indices", wgpu.BufferUsageIndex, m.Data.IndexBytes())
	if err != nil {
		return nil, err
	}
	oc := objectConstants(m.World, m.BaseColor, m.MetalMask, m.Smoothness)
	ob, err := r.upload(label+" object", wgpu.BufferUsageUniform, oc.Marshal())
	if err != nil {
		return nil, err
	}

	center, radius := m.Data.Bounds()
	return &meshBuffers{
		label:      label,
		vertices:   vb,
		indices:    ib,
		object:     ob,
		indexCount: uint32(len(m.Data.Indices)),
		center:     m.World.TransformPoint(center),
		radius:     radius * m.World.MaxScale(),
	}, nil
}

func (p *geometryPass) RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error {
	var frustum *common.Frustum
	if p.cfg.culling && fc != nil {
		f := common.FrustumFromMatrix(fc.Proj.Mul(fc.View))
		frustum = &f
	}

	bufs := make([]*command.CommandBuffer, len(p.recorders))
	var visible atomic.Int64
	var g errgroup.Group
	for i, r := range p.recorders {
		g.Go(func() error {
			buf, n, err := p.record(ctx, i, r, frustum)
			bufs[i] = buf
			visible.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		p.visible.Store(visible.Load())
	}

	// every buffer that closed is pushed, even when a sibling failed, so the frame's submission
	// count covers each ring slot acquired for it
	for _, buf := range bufs {
		if buf == nil {
			continue
		}
		if perr := p.recorders[0].deps.Queue.Push(buf); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

// record encodes batch i into a closed buffer and returns the number of meshes drawn.
func (p *geometryPass) record(ctx context.Context, i int, r *recorder, frustum *common.Frustum) (*command.CommandBuffer, int, error) {
	buf, err := r.begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	if i == 0 {
		for _, v := range r.views.Outputs {
			buf.ClearRenderTarget(v, p.cfg.clearColor)
		}
		buf.ClearDepth(r.views.Depth, 1)
	}
	r.bindInputs(buf)

	frame := r.frameConstants()
	drawn := 0
	for _, mb := range p.batches[i] {
		if frustum != nil && !frustum.SphereVisible(mb.center, mb.radius) {
			continue
		}
		buf.SetConstants([]device.Buffer{frame, mb.object})
		buf.SetVertexBuffer(mb.vertices)
		buf.SetIndexBuffer(mb.indices)
		buf.DrawIndexed(mb.indexCount, 1)
		drawn++
	}
	if err := buf.Close(); err != nil {
		return nil, 0, err
	}
	return buf, drawn, nil
}
