package orchestrator

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource_state"
)

// OrchestratorBuilderOption is a functional option used to configure the orchestrator during construction.
type OrchestratorBuilderOption func(*orchestrator)

// WithQueuedFrames sets the number of frames the CPU may record ahead of the GPU.
//
// Parameters:
//   - n: the queued frame count, validated by the fence controller
//
// Returns:
//   - OrchestratorBuilderOption: the option
func WithQueuedFrames(n int) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.queuedFrames = n
	}
}

// WithWorkers sets the number of pooled goroutines that record the passes of one step in parallel.
// Values below 1 are ignored.
func WithWorkers(n int) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTransitionObserver installs fn as the tracker's observer. fn sees every directive in the
// order the orchestrator creates them.
func WithTransitionObserver(fn func(resource_state.TransitionDirective)) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.observer = fn
	}
}

// WithLogger sets the logger of the orchestrator and of every collaborator it creates.
func WithLogger(l *slog.Logger) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
