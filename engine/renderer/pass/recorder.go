package pass

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// recorder is the encoding core each stage builds on: one command ring, the shared pipeline
// config and the bound views.
type recorder struct {
	stage  Stage
	label  string
	deps   Dependencies
	logger *slog.Logger

	cfg      pipeline.Config
	ring     command.Ring
	views    Views
	bound    bool
	viewport common.Viewport
	scissor  common.ScissorRect
}

func newRecorder(stage Stage, label string, deps Dependencies, logger *slog.Logger) *recorder {
	deps.validate()
	if label == "" {
		label = stage.Key()
	}
	return &recorder{stage: stage, label: label, deps: deps, logger: logger}
}

// bind validates views, fetches the stage config from the registry (building it on first use)
// and allocates the ring.
func (r *recorder) bind(views Views, req requirement, build func(Views) (pipeline.Config, error)) error {
	if r.bound {
		return fmt.Errorf("%w: %s already initialised", ErrInvalidConfiguration, r.label)
	}
	if err := req.validate(r.stage, views); err != nil {
		return err
	}

	cfg, err := r.deps.Pipelines.GetOrCreate(r.stage.Key(), func() (pipeline.Config, error) {
		return build(views)
	})
	if err != nil {
		return err
	}
	ring, err := command.NewRing(r.deps.Device, r.deps.Fences,
		command.WithLabel(r.label),
		command.WithRingLogger(r.logger),
	)
	if err != nil {
		return err
	}

	target := views.Depth
	if len(views.Outputs) > 0 {
		target = views.Outputs[0]
	}
	res := target.Resource()
	r.viewport, r.scissor = common.FullViewport(res.Width, res.Height)
	r.cfg, r.ring, r.views, r.bound = cfg, ring, views, true
	r.logger.Debug("pass initialised", "pass", r.label, "inputs", len(views.Inputs), "outputs", len(views.Outputs))
	return nil
}

// begin acquires the next buffer and binds viewport, scissor and outputs.
func (r *recorder) begin(ctx context.Context) (*command.CommandBuffer, error) {
	if !r.bound {
		panic(fmt.Sprintf("pass: %s recorded before Init bound its views", r.label))
	}
	buf, err := r.ring.AcquireNext(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	buf.SetViewport(r.viewport)
	buf.SetScissor(r.scissor)
	buf.SetRenderTargets(r.views.Outputs, r.views.Depth)
	return buf, nil
}

// bindInputs binds the view table, the binding layout and the constant buffers.
func (r *recorder) bindInputs(buf *command.CommandBuffer, constants ...device.Buffer) {
	if len(r.views.Inputs) > 0 {
		buf.SetViewTable(r.views.Inputs)
	}
	buf.SetBindingLayout()
	if len(constants) > 0 {
		buf.SetConstants(constants)
	}
}

// submit closes buf and hands it to the submission queue.
func (r *recorder) submit(buf *command.CommandBuffer) error {
	if err := buf.Close(); err != nil {
		return err
	}
	return r.deps.Queue.Push(buf)
}

// frameConstants returns the constants buffer of the frame slot being recorded.
func (r *recorder) frameConstants() device.Buffer {
	return r.deps.Constants.Buffer(r.deps.Fences.SlotIndex())
}

// upload creates a static buffer and fills it.
func (r *recorder) upload(label string, usage wgpu.BufferUsage, data []byte) (device.Buffer, error) {
	buf, err := r.deps.Device.CreateBuffer(device.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("pass %s: %s: %w", r.label, label, err)
	}
	if err := r.deps.Device.Queue().WriteBuffer(buf, 0, data); err != nil {
		return nil, fmt.Errorf("pass %s: %s: %w", r.label, label, err)
	}
	return buf, nil
}

// outputFormats returns the formats of the color outputs in attachment order.
func outputFormats(views Views) []wgpu.TextureFormat {
	formats := make([]wgpu.TextureFormat, len(views.Outputs))
	for i, v := range views.Outputs {
		formats[i] = v.Resource().Format
	}
	return formats
}

// screenConfig builds the config of a full-screen stage: the shared screen-covering vertex
// shader plus the stage's fragment shader.
func screenConfig(stage Stage, fragmentSource string, blend *wgpu.BlendState) func(Views) (pipeline.Config, error) {
	return func(views Views) (pipeline.Config, error) {
		vs, fs, err := shaderPair(stage, fullscreenVSSource, fragmentSource)
		if err != nil {
			return nil, err
		}
		return pipeline.NewConfig(stage.Key(),
			pipeline.WithVertexShader(vs),
			pipeline.WithFragmentShader(fs),
			pipeline.WithColorFormats(outputFormats(views)...),
			pipeline.WithBlendState(blend),
		), nil
	}
}

// screenVertexCount is the vertex count of the two triangles that cover the screen.
const screenVertexCount = 6
