package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxEventSize bounds a single NDJSON line; reports with large feedback stay well below it
const maxEventSize = 64 << 20

// Encoder writes events as newline delimited JSON
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder creates a new Encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Publish implements Publisher
func (e *Encoder) Publish(ev Event) error {
	ev.markPublished()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(ev); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind, err)
	}
	return nil
}

// Relay reads NDJSON events from r and republishes them until r is exhausted
func Relay(ctx context.Context, r io.Reader, pub Publisher) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode event on line %d: %w", line, err)
		}
		if err := pub.Publish(ev); err != nil {
			return fmt.Errorf("relay event on line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// Multi publishes every event to all publishers in order
func Multi(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ev Event) error {
		for _, p := range pubs {
			if err := p.Publish(ev); err != nil {
				return err
			}
		}
		return nil
	})
}
