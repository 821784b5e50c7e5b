package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuDevice implements Device on top of WebGPU. WebGPU tracks resource usage itself, so
// transition directives are recorded but encode nothing. Render passes are opened lazily from
// the recorded render targets when a list is submitted.
type wgpuDevice struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode

	q      *wgpuQueue
	fence  *wgpuFence
	swap   *wgpuSwapChain
	logger *slog.Logger
}

var _ Device = &wgpuDevice{}

func newWGPUDevice(cfg *deviceConfig) (*wgpuDevice, error) {
	if cfg.surfaceDescriptor == nil {
		return nil, errors.New("device: wgpu backend requires a surface descriptor")
	}
	runtime.LockOSThread()

	w := &wgpuDevice{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		logger:      cfg.logger,
	}
	if cfg.presentMode == PresentModeUncapped {
		w.presentMode = wgpu.PresentModeImmediate
	}
	w.surface = w.instance.CreateSurface(cfg.surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("device: request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Deferred Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("device: request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	w.configureSurface(cfg.width, cfg.height)

	w.q = &wgpuQueue{d: w}
	fmu := &sync.Mutex{}
	w.fence = &wgpuFence{d: w, mu: fmu, cond: sync.NewCond(fmu)}
	w.swap = newWGPUSwapChain(w, cfg)

	w.logger.Info("wgpu device opened", "format", w.surfaceFormat, "width", cfg.width, "height", cfg.height)
	return w, nil
}

func (b *wgpuDevice) configureSurface(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuDevice) Backend() BackendType { return BackendTypeWGPU }
func (b *wgpuDevice) Queue() Queue         { return b.q }
func (b *wgpuDevice) Fence() Fence         { return b.fence }
func (b *wgpuDevice) SwapChain() SwapChain { return b.swap }

func (b *wgpuDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	usage := desc.Usage
	if usage == 0 {
		usage = wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("device: create texture %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("device: create view %q: %w", desc.Label, err)
	}
	t := &wgpuTexture{
		res: resource_state.NewResource(desc.Label, desc.Format, desc.Width, desc.Height),
		tex: tex,
	}
	t.view = &wgpuView{tex: t, view: view}
	return t, nil
}

func (b *wgpuDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	usage := desc.Usage
	if usage == 0 {
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("device: create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{label: desc.Label, size: desc.Size, buf: buf}, nil
}

func (b *wgpuDevice) CreatePipeline(desc PipelineDescriptor) (Pipeline, error) {
	if desc.Vertex == nil || desc.Fragment == nil {
		return nil, fmt.Errorf("device: pipeline %q requires vertex and fragment shaders", desc.Label)
	}

	vs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Vertex.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Vertex.Source(),
		},
	})
	if err != nil {
		return nil, err
	}
	fs, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Fragment.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Fragment.Source(),
		},
	})
	if err != nil {
		return nil, err
	}

	merged := mergeBindGroupLayouts(desc.Vertex.BindGroupLayoutDescriptors(), desc.Fragment.BindGroupLayoutDescriptors())
	maxGroup := -1
	for g := range merged {
		maxGroup = max(maxGroup, g)
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		d := merged[g]
		d.Label = fmt.Sprintf("%s group %d", desc.Label, g)
		layout, layoutErr := b.device.CreateBindGroupLayout(&d)
		if layoutErr != nil {
			return nil, fmt.Errorf("device: bind group layout %d of %q: %w", g, desc.Label, layoutErr)
		}
		layouts[g] = layout
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}

	targets := make([]wgpu.ColorTargetState, len(desc.ColorFormats))
	for i, f := range desc.ColorFormats {
		if f == wgpu.TextureFormatUndefined {
			f = b.surfaceFormat
		}
		targets[i] = wgpu.ColorTargetState{Format: f, Blend: desc.Blend, WriteMask: wgpu.ColorWriteMaskAll}
	}

	var depthStencil *wgpu.DepthStencilState
	if desc.DepthFormat != wgpu.TextureFormatUndefined {
		compare := wgpu.CompareFunctionAlways
		if desc.DepthTest {
			compare = wgpu.CompareFunctionLessEqual
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint(),
			Buffers:    desc.VertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint(),
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  desc.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuPipeline{label: desc.Label, render: created, layouts: layouts}, nil
}

func (b *wgpuDevice) CreateCommandAllocator(label string) (CommandAllocator, error) {
	return &wgpuAllocator{label: label}, nil
}

func (b *wgpuDevice) CreateCommandList(alloc CommandAllocator, label string) (CommandList, error) {
	return &wgpuCommandList{label: label}, nil
}

func (b *wgpuDevice) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swap.release()
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

type wgpuQueue struct {
	d *wgpuDevice
}

func (q *wgpuQueue) Submit(lists ...CommandList) error {
	for _, l := range lists {
		wl, ok := l.(*wgpuCommandList)
		if !ok {
			return fmt.Errorf("device: command list %T does not belong to the wgpu device", l)
		}
		if wl.open {
			return fmt.Errorf("device: submit %s: %w", wl.label, ErrListNotOpen)
		}
		cb, release, err := wl.encode(q.d)
		if err != nil {
			return err
		}
		q.d.queue.Submit(cb)
		cb.Release()
		release()
	}
	return nil
}

func (q *wgpuQueue) Signal(value uint64) error {
	q.d.fence.signal(value)
	return nil
}

func (q *wgpuQueue) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("device: buffer %T does not belong to the wgpu device", buf)
	}
	q.d.queue.WriteBuffer(wb.buf, offset, data)
	return nil
}

// wgpuFence emulates a timeline fence. WebGPU has no CPU-visible fence values, so a wait on a
// signaled value polls the device until all submitted work is done.
type wgpuFence struct {
	d         *wgpuDevice
	mu        *sync.Mutex
	cond      *sync.Cond
	signaled  uint64
	completed uint64
}

func (f *wgpuFence) signal(v uint64) {
	f.mu.Lock()
	if v > f.signaled {
		f.signaled = v
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *wgpuFence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *wgpuFence) Wait(ctx context.Context, value uint64) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	for f.completed < value && f.signaled < value {
		if err := ctx.Err(); err != nil {
			f.mu.Unlock()
			return err
		}
		f.cond.Wait()
	}
	if f.completed >= value {
		f.mu.Unlock()
		return nil
	}
	target := f.signaled
	f.mu.Unlock()

	f.d.device.Poll(true, nil)

	f.mu.Lock()
	if target > f.completed {
		f.completed = target
	}
	f.mu.Unlock()
	return nil
}

type wgpuAllocator struct {
	label string
}

func (a *wgpuAllocator) Label() string { return a.label }
func (a *wgpuAllocator) Reset() error  { return nil }

type wgpuOp struct {
	kind      OpKind
	views     []View
	depth     View
	buffers   []Buffer
	pipeline  *wgpuPipeline
	viewport  common.Viewport
	scissor   common.ScissorRect
	color     common.Color
	depthVal  float32
	count     uint32
	instances uint32
}

// wgpuCommandList records operations and replays them into a command encoder on submit.
type wgpuCommandList struct {
	label    string
	open     bool
	pipeline *wgpuPipeline
	ops      []wgpuOp
}

func (l *wgpuCommandList) Label() string { return l.label }

func (l *wgpuCommandList) Reset(alloc CommandAllocator, p Pipeline) error {
	if l.open {
		return fmt.Errorf("device: reset %s: list is already open", l.label)
	}
	l.open = true
	l.ops = l.ops[:0]
	l.pipeline = nil
	if p != nil {
		wp, ok := p.(*wgpuPipeline)
		if !ok {
			return fmt.Errorf("device: pipeline %T does not belong to the wgpu device", p)
		}
		l.pipeline = wp
	}
	return nil
}

func (l *wgpuCommandList) Close() error {
	if !l.open {
		return fmt.Errorf("device: close %s: %w", l.label, ErrListNotOpen)
	}
	l.open = false
	return nil
}

func (l *wgpuCommandList) record(op wgpuOp) {
	if !l.open {
		panic(fmt.Sprintf("device: recording into closed command list %s", l.label))
	}
	l.ops = append(l.ops, op)
}

func (l *wgpuCommandList) SetViewport(v common.Viewport) {
	l.record(wgpuOp{kind: OpViewport, viewport: v})
}

func (l *wgpuCommandList) SetScissor(r common.ScissorRect) {
	l.record(wgpuOp{kind: OpScissor, scissor: r})
}

func (l *wgpuCommandList) SetRenderTargets(colors []View, depth View) {
	l.record(wgpuOp{kind: OpRenderTargets, views: slices.Clone(colors), depth: depth})
}

func (l *wgpuCommandList) ClearRenderTarget(v View, c common.Color) {
	l.record(wgpuOp{kind: OpClearColor, views: []View{v}, color: c})
}

func (l *wgpuCommandList) ClearDepth(v View, depth float32) {
	l.record(wgpuOp{kind: OpClearDepth, depth: v, depthVal: depth})
}

func (l *wgpuCommandList) SetViewTable(views []View) {
	l.record(wgpuOp{kind: OpViewTable, views: slices.Clone(views)})
}

func (l *wgpuCommandList) SetBindingLayout(p Pipeline) {
	wp, _ := p.(*wgpuPipeline)
	l.record(wgpuOp{kind: OpBindingLayout, pipeline: wp})
}

func (l *wgpuCommandList) SetConstants(buffers []Buffer) {
	l.record(wgpuOp{kind: OpConstants, buffers: slices.Clone(buffers)})
}

func (l *wgpuCommandList) SetVertexBuffer(buf Buffer) {
	l.record(wgpuOp{kind: OpVertexBuffer, buffers: []Buffer{buf}})
}

func (l *wgpuCommandList) SetIndexBuffer(buf Buffer) {
	l.record(wgpuOp{kind: OpIndexBuffer, buffers: []Buffer{buf}})
}

func (l *wgpuCommandList) Draw(vertexCount, instanceCount uint32) {
	l.record(wgpuOp{kind: OpDraw, count: vertexCount, instances: instanceCount})
}

func (l *wgpuCommandList) DrawIndexed(indexCount, instanceCount uint32) {
	l.record(wgpuOp{kind: OpDrawIndexed, count: indexCount, instances: instanceCount})
}

// ResourceBarrier is a no-op: WebGPU infers usage transitions from pass attachments and bind groups.
func (l *wgpuCommandList) ResourceBarrier(directives []resource_state.TransitionDirective) {
	if !l.open {
		panic(fmt.Sprintf("device: recording into closed command list %s", l.label))
	}
}

// encoderState is the replay state used while translating recorded ops into a wgpu encoder.
type encoderState struct {
	d        *wgpuDevice
	encoder  *wgpu.CommandEncoder
	pass     *wgpu.RenderPassEncoder
	colors   []View
	depth    View
	clears   map[View]common.Color
	depthClr *float32
	viewport *common.Viewport
	scissor  *common.ScissorRect
	views    []View
	consts   []Buffer
	layout   *wgpuPipeline
	vertex   Buffer
	index    Buffer
	groups   []*wgpu.BindGroup
}

func (l *wgpuCommandList) encode(d *wgpuDevice) (*wgpu.CommandBuffer, func(), error) {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, nil, err
	}
	st := &encoderState{d: d, encoder: encoder, clears: make(map[View]common.Color), layout: l.pipeline}
	release := func() {
		for _, g := range st.groups {
			g.Release()
		}
		encoder.Release()
	}

	for _, op := range l.ops {
		switch op.kind {
		case OpViewport:
			v := op.viewport
			st.viewport = &v
		case OpScissor:
			r := op.scissor
			st.scissor = &r
		case OpRenderTargets:
			st.endPass()
			if len(st.clears) > 0 || st.depthClr != nil {
				// flush clears recorded against the previous targets
				if err := st.beginPass(); err != nil {
					release()
					return nil, nil, err
				}
				st.endPass()
			}
			st.colors, st.depth = op.views, op.depth
		case OpClearColor:
			st.endPass()
			st.clears[op.views[0]] = op.color
		case OpClearDepth:
			st.endPass()
			v := op.depthVal
			st.depthClr = &v
			if st.depth == nil {
				st.depth = op.depth
			}
		case OpViewTable:
			st.views = op.views
		case OpBindingLayout:
			if op.pipeline != nil {
				st.layout = op.pipeline
			}
		case OpConstants:
			st.consts = op.buffers
		case OpVertexBuffer:
			st.vertex = op.buffers[0]
		case OpIndexBuffer:
			st.index = op.buffers[0]
		case OpDraw, OpDrawIndexed:
			if err := st.draw(l.pipeline, op); err != nil {
				st.endPass()
				release()
				return nil, nil, err
			}
		}
	}
	if len(st.clears) > 0 || st.depthClr != nil {
		// clear-only list: open and close a pass so the load ops run
		if err := st.beginPass(); err != nil {
			release()
			return nil, nil, err
		}
	}
	st.endPass()

	cb, err := encoder.Finish(nil)
	if err != nil {
		release()
		return nil, nil, err
	}
	return cb, release, nil
}

func (st *encoderState) beginPass() error {
	attachments := make([]wgpu.RenderPassColorAttachment, 0, len(st.colors))
	for _, v := range st.colors {
		tv, err := st.d.swap.nativeView(v)
		if err != nil {
			return err
		}
		a := wgpu.RenderPassColorAttachment{View: tv, LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore}
		if c, ok := st.clears[v]; ok {
			a.LoadOp = wgpu.LoadOpClear
			a.ClearValue = wgpu.Color{R: c.R, G: c.G, B: c.B, A: c.A}
		}
		attachments = append(attachments, a)
	}
	desc := &wgpu.RenderPassDescriptor{ColorAttachments: attachments}
	if st.depth != nil {
		dv, err := st.d.swap.nativeView(st.depth)
		if err != nil {
			return err
		}
		da := &wgpu.RenderPassDepthStencilAttachment{View: dv, DepthLoadOp: wgpu.LoadOpLoad, DepthStoreOp: wgpu.StoreOpStore}
		if st.depthClr != nil {
			da.DepthLoadOp = wgpu.LoadOpClear
			da.DepthClearValue = *st.depthClr
		}
		desc.DepthStencilAttachment = da
	}
	st.pass = st.encoder.BeginRenderPass(desc)
	st.clears = make(map[View]common.Color)
	st.depthClr = nil
	return nil
}

func (st *encoderState) endPass() {
	if st.pass == nil {
		return
	}
	st.pass.End()
	st.pass = nil
}

func (st *encoderState) draw(p *wgpuPipeline, op wgpuOp) error {
	if p == nil {
		return errors.New("device: draw recorded without a pipeline")
	}
	if st.pass == nil {
		if err := st.beginPass(); err != nil {
			return err
		}
	}
	st.pass.SetPipeline(p.render)
	if st.viewport != nil {
		v := st.viewport
		st.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if st.scissor != nil {
		s := st.scissor
		st.pass.SetScissorRect(s.X, s.Y, s.Width, s.Height)
	}

	layout := st.layout
	if layout == nil {
		layout = p
	}
	if len(layout.layouts) > 0 && len(st.consts) > 0 {
		entries := make([]wgpu.BindGroupEntry, len(st.consts))
		for i, b := range st.consts {
			entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: b.(*wgpuBuffer).buf, Offset: 0, Size: wgpu.WholeSize}
		}
		g, err := st.d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: p.label + " constants", Layout: layout.layouts[0], Entries: entries})
		if err != nil {
			return err
		}
		st.groups = append(st.groups, g)
		st.pass.SetBindGroup(0, g, nil)
	}
	if len(layout.layouts) > 1 && len(st.views) > 0 {
		entries := make([]wgpu.BindGroupEntry, len(st.views))
		for i, v := range st.views {
			tv, err := st.d.swap.nativeView(v)
			if err != nil {
				return err
			}
			entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), TextureView: tv}
		}
		g, err := st.d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: p.label + " views", Layout: layout.layouts[1], Entries: entries})
		if err != nil {
			return err
		}
		st.groups = append(st.groups, g)
		st.pass.SetBindGroup(1, g, nil)
	}

	if st.vertex != nil {
		st.pass.SetVertexBuffer(0, st.vertex.(*wgpuBuffer).buf, 0, wgpu.WholeSize)
	}
	switch op.kind {
	case OpDrawIndexed:
		if st.index == nil {
			return errors.New("device: indexed draw recorded without an index buffer")
		}
		st.pass.SetIndexBuffer(st.index.(*wgpuBuffer).buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		st.pass.DrawIndexed(op.count, op.instances, 0, 0, 0)
	default:
		st.pass.Draw(op.count, op.instances, 0, 0)
	}
	return nil
}

type wgpuTexture struct {
	res  *resource_state.Resource
	tex  *wgpu.Texture
	view *wgpuView
}

func (t *wgpuTexture) Resource() *resource_state.Resource { return t.res }
func (t *wgpuTexture) View() View                         { return t.view }

func (t *wgpuTexture) Release() {
	if t.view != nil && t.view.view != nil {
		t.view.view.Release()
	}
	if t.tex != nil {
		t.tex.Release()
	}
}

type wgpuView struct {
	tex  *wgpuTexture
	view *wgpu.TextureView
}

func (v *wgpuView) Resource() *resource_state.Resource { return v.tex.res }
func (v *wgpuView) Label() string                      { return v.tex.res.Label }

type wgpuBuffer struct {
	label string
	size  uint64
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }
func (b *wgpuBuffer) Release()      { b.buf.Release() }

type wgpuPipeline struct {
	label   string
	render  *wgpu.RenderPipeline
	layouts []*wgpu.BindGroupLayout
}

func (p *wgpuPipeline) Label() string { return p.label }

// wgpuSwapChain tracks one resource per back buffer index and acquires the surface texture on first use in a frame.
type wgpuSwapChain struct {
	d       *wgpuDevice
	mu      *sync.Mutex
	buffers []*wgpuTexture
	index   int
	view    *swapChainView

	frameTexture *wgpu.Texture
	frameView    *wgpu.TextureView
}

func newWGPUSwapChain(d *wgpuDevice, cfg *deviceConfig) *wgpuSwapChain {
	sc := &wgpuSwapChain{d: d, mu: &sync.Mutex{}}
	for i := 0; i < cfg.swapChainBuffers; i++ {
		res := resource_state.NewResource(fmt.Sprintf("BackBuffer[%d]", i), d.surfaceFormat, cfg.width, cfg.height)
		sc.buffers = append(sc.buffers, &wgpuTexture{res: res})
	}
	sc.view = &swapChainView{sc: sc}
	return sc
}

func (s *wgpuSwapChain) BufferCount() int { return len(s.buffers) }

func (s *wgpuSwapChain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *wgpuSwapChain) Buffer(i int) Texture { return s.buffers[i] }
func (s *wgpuSwapChain) View() View           { return s.view }

// nativeView resolves any View to its wgpu texture view, acquiring the surface texture for back buffer views.
func (s *wgpuSwapChain) nativeView(v View) (*wgpu.TextureView, error) {
	switch tv := v.(type) {
	case *wgpuView:
		return tv.view, nil
	case *swapChainView:
		return s.acquire()
	default:
		return nil, fmt.Errorf("device: view %T does not belong to the wgpu device", v)
	}
}

func (s *wgpuSwapChain) acquire() (*wgpu.TextureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameView != nil {
		return s.frameView, nil
	}
	surfaceTexture, err := s.d.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	s.frameTexture, s.frameView = surfaceTexture, view
	return view, nil
}

func (s *wgpuSwapChain) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameTexture != nil {
		s.d.surface.Present()
	}
	s.releaseFrameLocked()
	s.index = (s.index + 1) % len(s.buffers)
	return nil
}

func (s *wgpuSwapChain) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseFrameLocked()
}

func (s *wgpuSwapChain) releaseFrameLocked() {
	if s.frameView != nil {
		s.frameView.Release()
		s.frameView = nil
	}
	if s.frameTexture != nil {
		s.frameTexture.Release()
		s.frameTexture = nil
	}
}

// mergeBindGroupLayouts combines the bind group layout descriptors of a vertex and fragment shader
// into a single set for pipeline layout creation. Bindings present in both stages get their
// visibility OR-ed together.
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)
	byGroup := make(map[int]map[uint32]wgpu.BindGroupLayoutEntry)

	for _, src := range []map[int]wgpu.BindGroupLayoutDescriptor{vertexLayouts, fragmentLayouts} {
		for g, desc := range src {
			if byGroup[g] == nil {
				byGroup[g] = make(map[uint32]wgpu.BindGroupLayoutEntry)
			}
			for _, e := range desc.Entries {
				if existing, ok := byGroup[g][e.Binding]; ok {
					existing.Visibility |= e.Visibility
					byGroup[g][e.Binding] = existing
					continue
				}
				byGroup[g][e.Binding] = e
			}
		}
	}

	for g, entries := range byGroup {
		flat := make([]wgpu.BindGroupLayoutEntry, 0, len(entries))
		for _, e := range entries {
			flat = append(flat, e)
		}
		sort.Slice(flat, func(i, j int) bool { return flat[i].Binding < flat[j].Binding })
		merged[g] = wgpu.BindGroupLayoutDescriptor{Entries: flat}
	}
	return merged
}
