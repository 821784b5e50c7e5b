package command

import "log/slog"

// RingBuilderOption is a functional option used to configure a Ring during construction.
type RingBuilderOption func(*ring)

// WithLabel sets the debug label of the ring and of every allocator and list it creates.
//
// Parameters:
//   - label: the label, typically the owning pass name
//
// Returns:
//   - RingBuilderOption: a function that sets the label
func WithLabel(label string) RingBuilderOption {
	return func(r *ring) {
		r.label = label
	}
}

// WithRingLogger sets the logger used for slot diagnostics.
func WithRingLogger(l *slog.Logger) RingBuilderOption {
	return func(r *ring) {
		if l != nil {
			r.logger = l
		}
	}
}
