package events

import (
	"context"
	"sync"
)

// Sink consumes the events produced during one pipeline invocation.
// Send must not be called after the message_done event has been sent.
type Sink interface {
	Send(ctx context.Context, evt Event) error
}

// Discard is a Sink that drops every event. It backs non-streaming
// invocations and suppressed post-tool turns.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Send(context.Context, Event) error { return nil }

// Channel is a Sink backed by a buffered channel, providing the
// producer/consumer handoff between the pipeline goroutine and the
// caller that forwards events (e.g. onto an SSE response).
type Channel struct {
	ch        chan Event
	closeOnce sync.Once
}

// NewChannel creates a channel sink with the given buffer size.
func NewChannel(buf int) *Channel {
	if buf < 0 {
		buf = 0
	}
	return &Channel{ch: make(chan Event, buf)}
}

// Send delivers one event to the consumer, aborting if ctx is done first.
func (c *Channel) Send(ctx context.Context, evt Event) error {
	select {
	case c.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the consumer side of the channel. It is closed by Close.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close signals the consumer that no further events will arrive.
// Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.ch) })
}

// Collector is a Sink that records every event in order.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Send(_ context.Context, evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
