package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/device"
)

var (
	// ErrQueueClosed is returned by Push after Close.
	ErrQueueClosed = errors.New("command: submission queue closed")

	// ErrBufferNotClosed is returned when a buffer that is still recording is pushed.
	ErrBufferNotClosed = errors.New("command: buffer pushed before Close")
)

// SubmissionQueue is the multi-producer, single-consumer FIFO between recorders and the device
// queue. Buffers are handed to the device in arrival order by one consumer goroutine.
type SubmissionQueue interface {
	// Push appends a closed buffer. Producers never block on the consumer.
	//
	// Parameters:
	//   - b: the closed buffer; ownership moves to the queue
	//
	// Returns:
	//   - error: ErrBufferNotClosed, ErrQueueClosed, or a latched submit error
	Push(b *CommandBuffer) error

	// ResetCount zeroes the pushed and executed counters at the start of a frame.
	ResetCount()

	// PushedCount returns how many buffers were accepted by Push since ResetCount.
	PushedCount() int

	// ExecutedCount returns how many buffers were handed to the device queue since ResetCount.
	ExecutedCount() int

	// WaitExecuted blocks until ExecutedCount() >= n.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - n: the count to wait for
	//
	// Returns:
	//   - error: ctx.Err() or a latched submit error
	WaitExecuted(ctx context.Context, n int) error

	// Err returns the latched submit error, if any.
	Err() error

	// Close stops accepting buffers, drains the FIFO and stops the consumer.
	Close()
}

type submissionQueue struct {
	mu       *sync.Mutex
	cond     *sync.Cond
	queue    device.Queue
	fifo     []*CommandBuffer
	pushed   int
	executed int
	err      error
	closed   bool
	done     chan struct{}
	logger   *slog.Logger
}

var _ SubmissionQueue = &submissionQueue{}

// NewSubmissionQueue creates a SubmissionQueue feeding dev's queue and starts its consumer.
//
// Parameters:
//   - dev: the device whose queue receives the buffers
//   - options: functional options such as WithQueueLogger
//
// Returns:
//   - SubmissionQueue: the running queue
func NewSubmissionQueue(dev device.Device, options ...QueueBuilderOption) SubmissionQueue {
	if dev == nil {
		panic("command: NewSubmissionQueue requires a device")
	}
	mu := &sync.Mutex{}
	q := &submissionQueue{
		mu:     mu,
		cond:   sync.NewCond(mu),
		queue:  dev.Queue(),
		done:   make(chan struct{}),
		logger: common.Logger(),
	}
	for _, opt := range options {
		opt(q)
	}
	go q.run()
	return q
}

func (q *submissionQueue) Push(b *CommandBuffer) error {
	if s := b.State(); s != BufferClosed {
		return fmt.Errorf("%w: %s is %s", ErrBufferNotClosed, b.Label(), s)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.closed {
		return ErrQueueClosed
	}
	q.fifo = append(q.fifo, b)
	q.pushed++
	q.cond.Broadcast()
	return nil
}

func (q *submissionQueue) ResetCount() {
	q.mu.Lock()
	q.pushed = 0
	q.executed = 0
	q.mu.Unlock()
}

func (q *submissionQueue) PushedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

func (q *submissionQueue) ExecutedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.executed
}

func (q *submissionQueue) WaitExecuted(ctx context.Context, n int) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.executed < n {
		if q.err != nil {
			return q.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.closed && len(q.fifo) == 0 {
			return ErrQueueClosed
		}
		q.cond.Wait()
	}
	return nil
}

func (q *submissionQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *submissionQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *submissionQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.fifo) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.fifo) == 0 {
			q.mu.Unlock()
			return
		}
		b := q.fifo[0]
		q.fifo[0] = nil
		q.fifo = q.fifo[1:]
		latched := q.err != nil
		q.mu.Unlock()

		if latched {
			continue
		}

		err := q.queue.Submit(b.List())

		q.mu.Lock()
		if err != nil {
			q.err = fmt.Errorf("command: submit %s: %w", b.Label(), err)
			q.logger.Error("submission failed", "buffer", b.Label(), "error", err)
		} else {
			q.executed++
		}
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
