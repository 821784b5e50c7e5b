package resource_state

import "log/slog"

// TrackerBuilderOption is a functional option used to configure a Tracker during construction.
type TrackerBuilderOption func(*tracker)

// WithTransitionObserver installs a callback invoked synchronously for every directive the tracker produces.
// The callback runs on the caller's goroutine and must be safe for concurrent use.
//
// Parameters:
//   - fn: the observer callback
//
// Returns:
//   - TrackerBuilderOption: a function that sets the observer
func WithTransitionObserver(fn func(TransitionDirective)) TrackerBuilderOption {
	return func(t *tracker) {
		t.observer = fn
	}
}

// WithLogger sets the logger used for per-transition debug output.
//
// Parameters:
//   - l: the logger to use
//
// Returns:
//   - TrackerBuilderOption: a function that sets the logger
func WithLogger(l *slog.Logger) TrackerBuilderOption {
	return func(t *tracker) {
		t.logger = l
	}
}
