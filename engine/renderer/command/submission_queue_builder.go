package command

import "log/slog"

// QueueBuilderOption is a functional option used to configure a SubmissionQueue during construction.
type QueueBuilderOption func(*submissionQueue)

// WithQueueLogger sets the logger used to report submit failures.
func WithQueueLogger(l *slog.Logger) QueueBuilderOption {
	return func(q *submissionQueue) {
		if l != nil {
			q.logger = l
		}
	}
}
