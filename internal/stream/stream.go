// Package stream provides the per-run event emitter: a buffered channel
// wrapper that serializes typed event envelopes toward one client
// connection. Writes after the stream is closed or abandoned are dropped,
// never fatal, so an agent mid-execution survives a vanished client.
package stream

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/finagent/invoiceflow/internal/domain/event"
)

// DefaultBuffer is the per-run event buffer size. Events beyond it while
// the reader is stalled are dropped rather than blocking the pipeline.
const DefaultBuffer = 256

// Stream is the output channel of one workflow run. Events are delivered
// to the reader in publish order; there is no reordering buffer.
type Stream struct {
	mu        sync.Mutex
	ch        chan *event.Event
	done      chan struct{}
	closed    bool
	abandoned bool
	dropped   int
	logger    *zap.Logger
}

// New creates a stream with the given buffer size.
func New(buffer int, logger *zap.Logger) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		ch:     make(chan *event.Event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues an event for the reader. Events published after Close
// or Abandon, or while the buffer is full, are dropped and counted.
func (s *Stream) Publish(evt *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.abandoned {
		s.dropped++
		return
	}

	select {
	case s.ch <- evt:
	default:
		s.dropped++
		if s.logger != nil {
			s.logger.Warn("Stream buffer full, dropping event",
				zap.String("type", evt.Type.String()))
		}
	}
}

// Events returns the reader side of the stream. The channel is closed
// when the run is finalized.
func (s *Stream) Events() <-chan *event.Event {
	return s.ch
}

// Close finalizes the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)

	if s.dropped > 0 && s.logger != nil {
		s.logger.Warn("Stream closed with dropped events", zap.Int("dropped", s.dropped))
	}
}

// Abandon marks the reader as gone. Subsequent publishes are discarded;
// the producer side keeps running and finalizes normally.
func (s *Stream) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

// Done is closed when the stream has been finalized.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Dropped reports how many events were discarded.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Frame renders an event as one SSE frame: "data: {json}\n\n".
func Frame(evt *event.Event) ([]byte, error) {
	body, err := evt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
