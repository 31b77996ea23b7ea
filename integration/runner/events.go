package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/client"
)

// EventTimeout is max time to wait for expected events after a turn
const EventTimeout = 5 * time.Second

// EventCollector records a session's event stream in the background.
type EventCollector struct {
	mu     sync.Mutex
	seen   []string
	notify chan struct{}
	ready  chan struct{}
	cancel context.CancelFunc
	done   chan error
}

// StartEventCollector subscribes to username's events and returns once the
// stream is connected.
func StartEventCollector(ctx context.Context, c *client.Client, username string) (*EventCollector, error) {
	ctx, cancel := context.WithCancel(ctx)
	ec := &EventCollector{
		notify: make(chan struct{}, 1),
		ready:  make(chan struct{}),
		cancel: cancel,
		done:   make(chan error, 1),
	}

	events := make(chan client.Event)
	go func() {
		ec.done <- c.ListenEvents(ctx, username, events)
		close(events)
	}()
	go ec.collect(events)

	select {
	case <-ec.ready:
		return ec, nil
	case err := <-ec.done:
		cancel()
		return nil, fmt.Errorf("event stream closed before connecting: %v", err)
	case <-time.After(EventTimeout):
		cancel()
		return nil, fmt.Errorf("timeout connecting to event stream")
	}
}

func (ec *EventCollector) collect(events <-chan client.Event) {
	for e := range events {
		if e.Type == "connected" {
			close(ec.ready)
			continue
		}
		ec.mu.Lock()
		ec.seen = append(ec.seen, e.Type)
		ec.mu.Unlock()
		select {
		case ec.notify <- struct{}{}:
		default:
		}
	}
}

// Take returns and clears the events seen so far.
func (ec *EventCollector) Take() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := ec.seen
	ec.seen = nil
	return out
}

// WaitFor blocks until every type in want has been seen, in order, and
// consumes them.
func (ec *EventCollector) WaitFor(ctx context.Context, want []string) error {
	deadline := time.NewTimer(EventTimeout)
	defer deadline.Stop()

	for {
		ec.mu.Lock()
		if containsInOrder(ec.seen, want) {
			ec.seen = nil
			ec.mu.Unlock()
			return nil
		}
		seen := append([]string(nil), ec.seen...)
		ec.mu.Unlock()

		select {
		case <-ec.notify:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for events %v, saw %v", want, seen)
		}
	}
}

// Close stops the stream.
func (ec *EventCollector) Close() {
	ec.cancel()
	<-ec.done
}

func containsInOrder(seen, want []string) bool {
	i := 0
	for _, s := range seen {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}
