// Package pass contains the recorders of the deferred frame. Each recorder owns a command ring,
// encodes one stage of the frame into it and pushes the closed buffer to the submission queue.
// Recorders never transition resources; the orchestrator inserts every barrier around them.
package pass

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/fence"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/upload"
)

// ErrInvalidConfiguration is returned by Init when a required view is missing.
var ErrInvalidConfiguration = errors.New("pass: invalid configuration")

// Stage identifies the kind of work a recorder encodes. Every recorder of one stage shares a
// single pipeline configuration.
type Stage int

const (
	StageGeometry Stage = iota
	StageAmbientOcclusion
	StageBlur
	StageAmbientLight
	StageEnvironmentLight
	StagePunctualLight
	StageSkyBox
	StageToneMapping
	StagePostProcess
)

var stageKeys = [...]string{
	StageGeometry:         "geometry",
	StageAmbientOcclusion: "ambient_occlusion",
	StageBlur:             "blur",
	StageAmbientLight:     "ambient_light",
	StageEnvironmentLight: "environment_light",
	StagePunctualLight:    "punctual_light",
	StageSkyBox:           "sky_box",
	StageToneMapping:      "tone_mapping",
	StagePostProcess:      "post_process",
}

// Key returns the pipeline registry key of the stage.
func (s Stage) Key() string {
	if s < 0 || int(s) >= len(stageKeys) {
		return fmt.Sprintf("stage_%d", int(s))
	}
	return stageKeys[s]
}

func (s Stage) String() string { return s.Key() }

// Views are the image views a recorder binds. Inputs are bound as the shader view table in
// order; Outputs are the color render targets; Depth is the optional depth attachment.
type Views struct {
	Inputs  []device.View
	Outputs []device.View
	Depth   device.View
}

// Pass is a recorder for one stage of the frame.
type Pass interface {
	// Stage returns the stage this recorder encodes.
	Stage() Stage

	// Init binds the views, obtains the shared pipeline configuration and allocates the command
	// ring and any static buffers. It must be called once before RecordAndSubmit.
	//
	// Parameters:
	//   - views: the views to bind
	//
	// Returns:
	//   - error: ErrInvalidConfiguration if a required view is missing, or a device error
	Init(views Views) error

	// RecordAndSubmit acquires a buffer from the recorder's ring, encodes the stage and pushes the
	// closed buffer to the submission queue. It panics if Init has not bound the views.
	//
	// Parameters:
	//   - ctx: bounds the ring's fence wait
	//   - fc: the constants of the frame being recorded
	//
	// Returns:
	//   - error: a ring, device or queue error
	RecordAndSubmit(ctx context.Context, fc *upload.FrameConstants) error

	// BufferCount returns how many command buffers each RecordAndSubmit pushes.
	BufferCount() int
}

// Dependencies are the collaborators every recorder is constructed with.
type Dependencies struct {
	Device    device.Device
	Fences    *fence.Controller
	Pipelines pipeline.Registry
	Queue     command.SubmissionQueue
	Constants upload.Ring
}

func (d Dependencies) validate() {
	if d.Device == nil || d.Fences == nil || d.Pipelines == nil || d.Queue == nil || d.Constants == nil {
		panic("pass: recorder requires a device, fence controller, pipeline registry, submission queue and constants ring")
	}
}

// requirement lists the views a stage needs.
type requirement struct {
	inputs  int
	outputs int
	depth   bool
}

func (req requirement) validate(stage Stage, views Views) error {
	if len(views.Inputs) < req.inputs {
		return fmt.Errorf("%w: %s needs %d inputs, have %d", ErrInvalidConfiguration, stage, req.inputs, len(views.Inputs))
	}
	if len(views.Outputs) < req.outputs {
		return fmt.Errorf("%w: %s needs %d outputs, have %d", ErrInvalidConfiguration, stage, req.outputs, len(views.Outputs))
	}
	for i, v := range views.Inputs {
		if v == nil {
			return fmt.Errorf("%w: %s input %d is nil", ErrInvalidConfiguration, stage, i)
		}
	}
	for i, v := range views.Outputs {
		if v == nil {
			return fmt.Errorf("%w: %s output %d is nil", ErrInvalidConfiguration, stage, i)
		}
	}
	if req.depth && views.Depth == nil {
		return fmt.Errorf("%w: %s needs a depth view", ErrInvalidConfiguration, stage)
	}
	return nil
}
