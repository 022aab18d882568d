package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("event bus closed")

// Publisher accepts events from the grading side
type Publisher interface {
	Publish(ev Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ev Event) error

// Publish implements Publisher
func (f PublisherFunc) Publish(ev Event) error {
	return f(ev)
}

// Bus fans events out to any number of subscribers.
// Each subscriber owns an unbounded queue, so a slow reader never blocks the
// producer, and receives its own decoded copy of every event.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewBus creates a new Bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber that sees every event published from now on
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{notify: make(chan struct{}, 1)}
	if b.closed {
		sub.close()
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish encodes the event and queues it for every subscriber.
// Results and reports carried by the event are marked as published.
func (b *Bus) Publish(ev Event) error {
	ev.markPublished()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs {
		sub.push(data)
	}
	return nil
}

// Close ends the stream; subscribers still receive what is already queued
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.close()
	}
}

// Subscription is one consumer's view of a Bus
type Subscription struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	notify chan struct{}
}

func (s *Subscription) push(data []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, data)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available. It returns io.EOF once the bus is
// closed and the queue is empty.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			data := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return Event{}, fmt.Errorf("decode event: %w", err)
			}
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Event{}, io.EOF
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Events delivers the subscription on a channel that is closed when the bus
// is closed or ctx is done.
func (s *Subscription) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Pending reports how many events wait in the queue
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
