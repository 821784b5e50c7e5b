package upload

import "log/slog"

// RingBuilderOption is a functional option used to configure a Ring during construction.
type RingBuilderOption func(*ring)

// WithLogger sets the logger used for upload diagnostics.
func WithLogger(l *slog.Logger) RingBuilderOption {
	return func(r *ring) {
		if l != nil {
			r.logger = l
		}
	}
}
