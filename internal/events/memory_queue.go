package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryQueue is an in-process queue for single-binary deployments and tests.
// Events still buffered when the process exits are lost; the resume sweeper
// only recovers runs that already started.
type MemoryQueue struct {
	ch         chan Event
	retryDelay time.Duration
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewMemoryQueue creates a queue holding up to size undelivered events.
func NewMemoryQueue(size int, logger *zap.Logger) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{
		ch:         make(chan Event, size),
		retryDelay: time.Second,
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues event, blocking while the buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, event Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- event:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands events to handler one at a time. An event whose handler
// fails is put back after a short delay, or dropped if the buffer is full.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case event := <-q.ch:
			err := handler(ctx, event)
			if err == nil {
				continue
			}
			q.logger.Warn("event handler failed, requeueing",
				zap.String("event_id", event.ID),
				zap.String("event", string(event.Name)),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-q.done:
				return nil
			case <-time.After(q.retryDelay):
			}
			select {
			case q.ch <- event:
			default:
				q.logger.Error("queue full, dropping failed event", zap.String("event_id", event.ID))
			}
		}
	}
}

// Len reports the number of buffered events.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops consumers and rejects further publishes.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
