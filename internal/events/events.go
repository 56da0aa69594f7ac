// Package events fans settlement events out to subscribers: NATS, websocket
// clients and the analytics sink.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/observability"
)

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	PublishedAt int64        `json:"published_at"` // unix millis
	Payload     domain.Event `json:"payload"`
}

// NewEnvelope wraps ev with a fresh id.
func NewEnvelope(ev domain.Event, now time.Time) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Name:        ev.EventName(),
		PublishedAt: now.UnixMilli(),
		Payload:     ev,
	}
}

type namedSink struct {
	name string
	sink Sink
}

// Multi publishes every event to all registered sinks. A failing sink does
// not stop delivery to the others.
type Multi struct {
	mu    sync.RWMutex
	sinks []namedSink
}

// NewMulti creates an empty Multi.
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers sink under name. The name labels publish metrics.
func (m *Multi) Add(name string, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
}

// Len returns the number of registered sinks.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Publish implements Sink.
func (m *Multi) Publish(ctx context.Context, ev domain.Event) error {
	m.mu.RLock()
	sinks := append([]namedSink(nil), m.sinks...)
	m.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		err := s.sink.Publish(ctx, ev)
		observability.RecordPublish(s.name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []domain.Event
}

// NewRecorder creates a Recorder holding at most limit events; zero keeps all.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Publish implements Sink.
func (r *Recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]domain.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
