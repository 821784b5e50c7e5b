package fence

import "log/slog"

// ControllerBuilderOption is a functional option used to configure a Controller during construction.
type ControllerBuilderOption func(*controllerConfig)

type controllerConfig struct {
	queuedFrames int
	logger       *slog.Logger
}

// WithQueuedFrames sets how many frames may be in flight at once.
//
// Parameters:
//   - n: the queued frame count, between MinQueuedFrames and MaxQueuedFrames
//
// Returns:
//   - ControllerBuilderOption: a function that sets the queued frame count
func WithQueuedFrames(n int) ControllerBuilderOption {
	return func(c *controllerConfig) {
		c.queuedFrames = n
	}
}

// WithLogger sets the logger used by the controller.
func WithLogger(l *slog.Logger) ControllerBuilderOption {
	return func(c *controllerConfig) {
		c.logger = l
	}
}
