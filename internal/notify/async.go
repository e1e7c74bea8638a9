package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Async.Dispatch when the buffer is saturated.
var ErrQueueFull = errors.New("notification queue is full")

// ErrClosed is returned by Async.Dispatch after Close.
var ErrClosed = errors.New("notification queue is closed")

// Async queues notices and delivers them from one background goroutine, so
// slow endpoints never hold up a transition.
type Async struct {
	next    Dispatcher
	queue   chan Notice
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts a worker that forwards to next. size bounds the queue;
// timeout bounds each delivery.
func NewAsync(next Dispatcher, size int, timeout time.Duration, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:    next,
		queue:   make(chan Notice, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Dispatch enqueues n. It never blocks.
func (a *Async) Dispatch(_ context.Context, n Notice) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// DispatchWait enqueues n, waiting for room until ctx ends.
func (a *Async) DispatchWait(ctx context.Context, n Notice) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		ctx := context.Background()
		cancel := func() {}
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		if err := a.next.Dispatch(ctx, n); err != nil {
			a.logger.Warn("notification failed",
				zap.String("event", string(n.Event)),
				zap.String("entity_id", n.EntityID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting notices and waits for the queue to drain or ctx to end.
// A DispatchWait in progress finishes before the queue is closed.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
