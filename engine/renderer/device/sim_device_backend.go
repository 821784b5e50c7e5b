package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
)

// ErrAllocatorInUse is returned by the simulated backend when an allocator is reset while a list
// recorded from it has not been retired by the fence.
var ErrAllocatorInUse = errors.New("device: command allocator reset while GPU work is pending")

// OpKind identifies a command recorded into a simulated command list.
type OpKind int

const (
	OpViewport OpKind = iota
	OpScissor
	OpRenderTargets
	OpClearColor
	OpClearDepth
	OpViewTable
	OpBindingLayout
	OpConstants
	OpVertexBuffer
	OpIndexBuffer
	OpDraw
	OpDrawIndexed
	OpBarrier
)

// Op is one recorded command. Targets holds the labels of the resources or buffers it references.
type Op struct {
	Kind      OpKind
	Targets   []string
	Count     uint32
	Instances uint32
	Barriers  []resource_state.TransitionDirective
}

// ExecutedList is a command list as it was executed by the simulated GPU.
type ExecutedList struct {
	Seq      int
	Label    string
	Pipeline string
	Ops      []Op
}

// Barriers returns every transition directive executed by the list, in order.
func (e ExecutedList) Barriers() []resource_state.TransitionDirective {
	var out []resource_state.TransitionDirective
	for _, op := range e.Ops {
		if op.Kind == OpBarrier {
			out = append(out, op.Barriers...)
		}
	}
	return out
}

// Draws returns the number of draw and indexed draw commands in the list.
func (e ExecutedList) Draws() int {
	n := 0
	for _, op := range e.Ops {
		if op.Kind == OpDraw || op.Kind == OpDrawIndexed {
			n++
		}
	}
	return n
}

type simWork struct {
	list   *ExecutedList
	signal uint64
	allocs []*simAllocator
}

// SimulatedDevice is an in-process GPU model. Submissions execute in order on a dedicated goroutine,
// fence signals complete either automatically or when driven by the caller, and device loss can be injected.
type SimulatedDevice struct {
	mu   *sync.Mutex
	cond *sync.Cond

	work   []simWork
	busy   bool
	closed bool
	lost   bool

	autoComplete bool
	pending      []uint64
	log          []ExecutedList
	signals      []uint64
	seq          int

	// submit bookkeeping for allocator reuse checks
	submitted uint64
	coverage  map[uint64]uint64
	retired   uint64

	fence  *simFence
	queue  *simQueue
	swap   *simSwapChain
	logger *slog.Logger
	done   chan struct{}
}

var _ Device = &SimulatedDevice{}

// NewSimulatedDevice opens a simulated device directly, exposing the controls tests need.
//
// Parameters:
//   - options: functional options such as WithAutoComplete and WithSwapChainBufferCount
//
// Returns:
//   - *SimulatedDevice: the running simulated device
func NewSimulatedDevice(options ...DeviceBuilderOption) *SimulatedDevice {
	return newSimulatedDevice(newDeviceConfig(options))
}

func newSimulatedDevice(cfg *deviceConfig) *SimulatedDevice {
	mu := &sync.Mutex{}
	d := &SimulatedDevice{
		mu:           mu,
		cond:         sync.NewCond(mu),
		autoComplete: cfg.autoComplete,
		coverage:     make(map[uint64]uint64),
		logger:       cfg.logger,
		done:         make(chan struct{}),
	}
	d.fence = newSimFence()
	d.queue = &simQueue{d: d}
	d.swap = newSimSwapChain(d, cfg)
	go d.run()
	d.logger.Info("simulated device opened", "swapChainBuffers", cfg.swapChainBuffers, "autoComplete", cfg.autoComplete)
	return d
}

func (d *SimulatedDevice) Backend() BackendType { return BackendTypeSimulated }
func (d *SimulatedDevice) Queue() Queue         { return d.queue }
func (d *SimulatedDevice) Fence() Fence         { return d.fence }
func (d *SimulatedDevice) SwapChain() SwapChain { return d.swap }

func (d *SimulatedDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("device: texture %q has zero size", desc.Label)
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return newSimTexture(resource_state.NewResource(desc.Label, desc.Format, desc.Width, desc.Height)), nil
}

func (d *SimulatedDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("device: buffer %q has zero size", desc.Label)
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &simBuffer{label: desc.Label, data: make([]byte, desc.Size)}, nil
}

func (d *SimulatedDevice) CreatePipeline(desc PipelineDescriptor) (Pipeline, error) {
	if desc.Vertex == nil {
		return nil, fmt.Errorf("device: pipeline %q has no vertex shader", desc.Label)
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &simPipeline{label: desc.Label}, nil
}

func (d *SimulatedDevice) CreateCommandAllocator(label string) (CommandAllocator, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &simAllocator{d: d, label: label}, nil
}

func (d *SimulatedDevice) CreateCommandList(alloc CommandAllocator, label string) (CommandList, error) {
	if _, ok := alloc.(*simAllocator); !ok {
		return nil, fmt.Errorf("device: allocator %T does not belong to the simulated device", alloc)
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &simCommandList{label: label}, nil
}

// Release stops the executor goroutine after draining queued work.
func (d *SimulatedDevice) Release() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

// ExecutionLog returns a copy of every command list executed so far, in execution order.
func (d *SimulatedDevice) ExecutionLog() []ExecutedList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.log)
}

// ResetExecutionLog clears the execution log.
func (d *SimulatedDevice) ResetExecutionLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// Signals returns every fence value the executor has processed, in order.
func (d *SimulatedDevice) Signals() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.signals)
}

// PendingSignals returns the executed signals that have not completed yet.
func (d *SimulatedDevice) PendingSignals() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.pending)
}

// WaitIdle blocks until the executor has drained every queued submission and signal.
func (d *SimulatedDevice) WaitIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for (len(d.work) > 0 || d.busy) && !d.lost {
		d.cond.Wait()
	}
}

// CompleteNext completes the oldest executed but uncompleted signal.
//
// Returns:
//   - uint64: the completed value
//   - bool: false if no signal was pending
func (d *SimulatedDevice) CompleteNext() (uint64, bool) {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return 0, false
	}
	v := d.pending[0]
	d.pending = d.pending[1:]
	d.retireLocked(v)
	d.mu.Unlock()

	d.fence.complete(v)
	return v, true
}

// CompleteAll completes every executed signal.
func (d *SimulatedDevice) CompleteAll() {
	for {
		if _, ok := d.CompleteNext(); !ok {
			return
		}
	}
}

// SetAutoComplete switches automatic fence completion on or off. Turning it on completes pending signals.
func (d *SimulatedDevice) SetAutoComplete(auto bool) {
	d.mu.Lock()
	d.autoComplete = auto
	d.mu.Unlock()
	if auto {
		d.CompleteAll()
	}
}

// LoseDevice simulates device removal. Every later operation fails with ErrDeviceLost
// and blocked fence waiters are released with it.
func (d *SimulatedDevice) LoseDevice() {
	d.mu.Lock()
	d.lost = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.fence.lose()
	d.logger.Error("simulated device lost")
}

func (d *SimulatedDevice) checkLost() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return ErrDeviceLost
	}
	return nil
}

func (d *SimulatedDevice) enqueue(w simWork) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return ErrDeviceLost
	}
	if d.closed {
		return fmt.Errorf("device: submit after release: %w", ErrDeviceLost)
	}
	d.work = append(d.work, w)
	d.cond.Broadcast()
	return nil
}

func (d *SimulatedDevice) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.work) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.work) == 0 {
			d.mu.Unlock()
			return
		}
		w := d.work[0]
		d.work = d.work[1:]
		d.busy = true
		d.mu.Unlock()

		d.execute(w)

		d.mu.Lock()
		d.busy = false
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *SimulatedDevice) execute(w simWork) {
	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return
	}
	if w.list != nil {
		d.seq++
		w.list.Seq = d.seq
		d.log = append(d.log, *w.list)
		d.mu.Unlock()
		return
	}

	d.signals = append(d.signals, w.signal)
	auto := d.autoComplete
	if auto {
		d.retireLocked(w.signal)
	} else {
		d.pending = append(d.pending, w.signal)
	}
	d.mu.Unlock()

	if auto {
		d.fence.complete(w.signal)
	}
}

func (d *SimulatedDevice) retireLocked(v uint64) {
	if c, ok := d.coverage[v]; ok {
		if c > d.retired {
			d.retired = c
		}
		delete(d.coverage, v)
	}
}

type simQueue struct {
	d *SimulatedDevice
}

func (q *simQueue) Submit(lists ...CommandList) error {
	for _, l := range lists {
		sl, ok := l.(*simCommandList)
		if !ok {
			return fmt.Errorf("device: command list %T does not belong to the simulated device", l)
		}
		if sl.open {
			return fmt.Errorf("device: submit %s: %w", sl.label, ErrListNotOpen)
		}

		q.d.mu.Lock()
		q.d.submitted++
		seq := q.d.submitted
		q.d.mu.Unlock()
		if sl.alloc != nil {
			sl.alloc.mu.Lock()
			sl.alloc.lastSubmit = seq
			sl.alloc.mu.Unlock()
		}

		executed := &ExecutedList{Label: sl.label, Pipeline: sl.pipeline, Ops: slices.Clone(sl.ops)}
		if err := q.d.enqueue(simWork{list: executed}); err != nil {
			return err
		}
	}
	return nil
}

func (q *simQueue) Signal(value uint64) error {
	q.d.mu.Lock()
	q.d.coverage[value] = q.d.submitted
	q.d.mu.Unlock()
	return q.d.enqueue(simWork{signal: value})
}

func (q *simQueue) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	if err := q.d.checkLost(); err != nil {
		return err
	}
	b, ok := buf.(*simBuffer)
	if !ok {
		return fmt.Errorf("device: buffer %T does not belong to the simulated device", buf)
	}
	return b.write(offset, data)
}

type simFence struct {
	mu        *sync.Mutex
	cond      *sync.Cond
	completed uint64
	lost      bool
}

func newSimFence() *simFence {
	mu := &sync.Mutex{}
	return &simFence{mu: mu, cond: sync.NewCond(mu)}
}

func (f *simFence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *simFence) Wait(ctx context.Context, value uint64) error {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value {
		if f.lost {
			return ErrDeviceLost
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		f.cond.Wait()
	}
	return nil
}

func (f *simFence) complete(v uint64) {
	f.mu.Lock()
	if v > f.completed {
		f.completed = v
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *simFence) lose() {
	f.mu.Lock()
	f.lost = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

type simAllocator struct {
	d          *SimulatedDevice
	label      string
	mu         sync.Mutex
	lastSubmit uint64
	resets     int
}

func (a *simAllocator) Label() string { return a.label }

func (a *simAllocator) Reset() error {
	if err := a.d.checkLost(); err != nil {
		return err
	}
	a.d.mu.Lock()
	retired := a.d.retired
	a.d.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSubmit > retired {
		return fmt.Errorf("device: reset %s: %w", a.label, ErrAllocatorInUse)
	}
	a.resets++
	return nil
}

type simCommandList struct {
	label    string
	open     bool
	alloc    *simAllocator
	pipeline string
	ops      []Op
}

func (l *simCommandList) Label() string { return l.label }

func (l *simCommandList) Reset(alloc CommandAllocator, p Pipeline) error {
	if l.open {
		return fmt.Errorf("device: reset %s: list is already open", l.label)
	}
	sa, ok := alloc.(*simAllocator)
	if !ok {
		return fmt.Errorf("device: allocator %T does not belong to the simulated device", alloc)
	}
	l.alloc = sa
	l.open = true
	l.ops = l.ops[:0]
	l.pipeline = ""
	if p != nil {
		l.pipeline = p.Label()
	}
	return nil
}

func (l *simCommandList) Close() error {
	if !l.open {
		return fmt.Errorf("device: close %s: %w", l.label, ErrListNotOpen)
	}
	l.open = false
	return nil
}

func (l *simCommandList) record(op Op) {
	if !l.open {
		panic(fmt.Sprintf("device: recording into closed command list %s", l.label))
	}
	l.ops = append(l.ops, op)
}

func (l *simCommandList) SetViewport(v common.Viewport) {
	l.record(Op{Kind: OpViewport})
}

func (l *simCommandList) SetScissor(r common.ScissorRect) {
	l.record(Op{Kind: OpScissor})
}

func (l *simCommandList) SetRenderTargets(colors []View, depth View) {
	targets := viewLabels(colors)
	if depth != nil {
		targets = append(targets, depth.Resource().Label)
	}
	l.record(Op{Kind: OpRenderTargets, Targets: targets})
}

func (l *simCommandList) ClearRenderTarget(v View, c common.Color) {
	l.record(Op{Kind: OpClearColor, Targets: []string{v.Resource().Label}})
}

func (l *simCommandList) ClearDepth(v View, depth float32) {
	l.record(Op{Kind: OpClearDepth, Targets: []string{v.Resource().Label}})
}

func (l *simCommandList) SetViewTable(views []View) {
	l.record(Op{Kind: OpViewTable, Targets: viewLabels(views)})
}

func (l *simCommandList) SetBindingLayout(p Pipeline) {
	l.record(Op{Kind: OpBindingLayout, Targets: []string{p.Label()}})
}

func (l *simCommandList) SetConstants(buffers []Buffer) {
	targets := make([]string, len(buffers))
	for i, b := range buffers {
		targets[i] = b.Label()
	}
	l.record(Op{Kind: OpConstants, Targets: targets})
}

func (l *simCommandList) SetVertexBuffer(buf Buffer) {
	l.record(Op{Kind: OpVertexBuffer, Targets: []string{buf.Label()}})
}

func (l *simCommandList) SetIndexBuffer(buf Buffer) {
	l.record(Op{Kind: OpIndexBuffer, Targets: []string{buf.Label()}})
}

func (l *simCommandList) Draw(vertexCount, instanceCount uint32) {
	l.record(Op{Kind: OpDraw, Count: vertexCount, Instances: instanceCount})
}

func (l *simCommandList) DrawIndexed(indexCount, instanceCount uint32) {
	l.record(Op{Kind: OpDrawIndexed, Count: indexCount, Instances: instanceCount})
}

func (l *simCommandList) ResourceBarrier(directives []resource_state.TransitionDirective) {
	if len(directives) == 0 {
		return
	}
	l.record(Op{Kind: OpBarrier, Barriers: slices.Clone(directives)})
}

func viewLabels(views []View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Resource().Label
	}
	return out
}

type simTexture struct {
	res  *resource_state.Resource
	view *simView
}

func newSimTexture(res *resource_state.Resource) *simTexture {
	t := &simTexture{res: res}
	t.view = &simView{tex: t}
	return t
}

func (t *simTexture) Resource() *resource_state.Resource { return t.res }
func (t *simTexture) View() View                         { return t.view }
func (t *simTexture) Release()                           {}

type simView struct {
	tex *simTexture
}

func (v *simView) Resource() *resource_state.Resource { return v.tex.res }
func (v *simView) Label() string                      { return v.tex.res.Label }

type simBuffer struct {
	label string
	mu    sync.Mutex
	data  []byte
}

func (b *simBuffer) Label() string { return b.label }
func (b *simBuffer) Size() uint64  { return uint64(len(b.data)) }
func (b *simBuffer) Release()      {}

func (b *simBuffer) write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("device: write of %d bytes at %d overflows buffer %s (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// Contents returns a copy of the current contents of a simulated buffer.
//
// Parameters:
//   - buf: a buffer created by a SimulatedDevice
//
// Returns:
//   - []byte: the buffer contents, or nil if buf is not simulated
func Contents(buf Buffer) []byte {
	b, ok := buf.(*simBuffer)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.data)
}

type simPipeline struct {
	label string
}

func (p *simPipeline) Label() string { return p.label }

type simSwapChain struct {
	d        *SimulatedDevice
	mu       sync.Mutex
	buffers  []*simTexture
	index    int
	presents int
	view     *swapChainView
}

func newSimSwapChain(d *SimulatedDevice, cfg *deviceConfig) *simSwapChain {
	sc := &simSwapChain{d: d}
	for i := 0; i < cfg.swapChainBuffers; i++ {
		res := resource_state.NewResource(fmt.Sprintf("BackBuffer[%d]", i), cfg.swapChainFormat, cfg.width, cfg.height)
		sc.buffers = append(sc.buffers, newSimTexture(res))
	}
	sc.view = &swapChainView{sc: sc}
	return sc
}

func (s *simSwapChain) BufferCount() int { return len(s.buffers) }

func (s *simSwapChain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *simSwapChain) Buffer(i int) Texture { return s.buffers[i] }
func (s *simSwapChain) View() View           { return s.view }

func (s *simSwapChain) Present() error {
	if err := s.d.checkLost(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	s.index = (s.index + 1) % len(s.buffers)
	return nil
}

// Presents returns how many times the simulated swap chain of d has presented.
func (d *SimulatedDevice) Presents() int {
	d.swap.mu.Lock()
	defer d.swap.mu.Unlock()
	return d.swap.presents
}

// swapChainView resolves to whichever back buffer is current.
type swapChainView struct {
	sc SwapChain
}

func (v *swapChainView) Resource() *resource_state.Resource {
	return v.sc.Buffer(v.sc.CurrentIndex()).Resource()
}

func (v *swapChainView) Label() string { return "BackBuffer" }

var (
	_ Texture  = &simTexture{}
	_ View     = &swapChainView{}
	_ Buffer   = &simBuffer{}
	_ Pipeline = &simPipeline{}
)
