package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Queue buffers events between the request path and the dispatcher so
// publishing never waits on delivery.
type Queue struct {
	ch           chan Event
	flushTimeout time.Duration
}

// DefaultFlushTimeout bounds the shutdown flush in Drain.
const DefaultFlushTimeout = 10 * time.Second

// NewQueue creates a queue holding up to size pending events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size), flushTimeout: DefaultFlushTimeout}
}

// Offer enqueues event and reports false when the queue is full.
func (q *Queue) Offer(event Event) bool {
	select {
	case q.ch <- event:
		return true
	default:
		return false
	}
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.ch) }

// Drain publishes queued events until ctx is cancelled, then flushes what
// is already buffered. The flush stops at the flush timeout and whatever
// is still queued is dropped with a warning.
func (q *Queue) Drain(ctx context.Context, dispatcher Dispatcher, logger *zap.Logger) {
	for {
		select {
		case event := <-q.ch:
			q.publish(ctx, dispatcher, logger, event)
		case <-ctx.Done():
			q.flush(ctx, dispatcher, logger)
			return
		}
	}
}

func (q *Queue) flush(ctx context.Context, dispatcher Dispatcher, logger *zap.Logger) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.flushTimeout)
	defer cancel()
	for {
		if flushCtx.Err() != nil {
			if pending := q.Len(); pending > 0 {
				logger.Warn("shutdown flush timed out", zap.Int("dropped", pending))
			}
			return
		}
		select {
		case event := <-q.ch:
			q.publish(flushCtx, dispatcher, logger, event)
		default:
			return
		}
	}
}

func (q *Queue) publish(ctx context.Context, dispatcher Dispatcher, logger *zap.Logger, event Event) {
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event delivery incomplete",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
