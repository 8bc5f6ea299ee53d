package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultBufferSize is the number of events AsyncPublisher holds before dropping
const DefaultBufferSize = 256

// defaultPublishTimeout bounds each delivery attempt made by the drain loop
const defaultPublishTimeout = 10 * time.Second

// AsyncPublisher hands events to a single background goroutine so callers
// never wait on the broker. Events keep their publish order. When the buffer
// is full new events are dropped with a warning.
type AsyncPublisher struct {
	next   Publisher
	logger *slog.Logger
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncPublisher starts the drain loop in front of next
func NewAsyncPublisher(next Publisher, bufferSize int, logger *slog.Logger) *AsyncPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	p := &AsyncPublisher{
		next:   next,
		logger: logger,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish enqueues event without blocking
func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("Event dropped, publisher closed",
			slog.String("type", event.Type),
			slog.String("job_id", event.JobID),
		)
		return nil
	}

	select {
	case p.events <- event:
	default:
		p.logger.Warn("Event dropped, buffer full",
			slog.String("type", event.Type),
			slog.String("job_id", event.JobID),
			slog.Int("buffer_size", cap(p.events)),
		)
	}
	return nil
}

// Close stops accepting events and waits for the buffer to drain or ctx to end
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncPublisher) drain() {
	defer close(p.done)

	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		if err := p.next.Publish(ctx, event); err != nil {
			p.logger.Error("Failed to publish event",
				slog.String("type", event.Type),
				slog.String("job_id", event.JobID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
