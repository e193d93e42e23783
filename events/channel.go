package events

import (
	"sync"
	"time"

	"github.com/naveenvasou/cerina-v0/core"
)

// Channel is a buffered in-process Emitter. Producers never block the
// workflow: once the channel is closed, or when the buffer stays full
// past a bounded wait, Emit drops the event and moves on.
type Channel struct {
	ch     chan Event
	logger core.Logger

	// mu serializes Close against in-flight Emits so the channel is
	// never closed under a sender.
	mu     sync.RWMutex
	closed bool

	emitWait time.Duration
}

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithLogger sets the logger used for dropped-event warnings
func WithLogger(logger core.Logger) ChannelOption {
	return func(c *Channel) { c.logger = logger }
}

// WithEmitWait bounds how long Emit waits on a full buffer
func WithEmitWait(d time.Duration) ChannelOption {
	return func(c *Channel) { c.emitWait = d }
}

// NewChannel creates a Channel with the given buffer capacity.
func NewChannel(buffer int, opts ...ChannelOption) *Channel {
	if buffer < 1 {
		buffer = 1
	}
	c := &Channel{
		ch:       make(chan Event, buffer),
		logger:   &core.NoOpLogger{},
		emitWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the read side of the channel. After Close, reads
// drain the remaining buffer and then see the channel closed.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Emit enqueues an event. No-op after Close. Drops the event if the
// buffer stays full past the emit wait.
func (c *Channel) Emit(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.ch <- ev:
		return
	default:
	}

	timer := time.NewTimer(c.emitWait)
	defer timer.Stop()
	select {
	case c.ch <- ev:
	case <-timer.C:
		c.logger.Warn("Event dropped, consumer not keeping up", map[string]interface{}{
			"event_type": string(ev.Type),
			"agent":      ev.Agent,
		})
	}
}

// Done enqueues the stream-end sentinel.
func (c *Channel) Done() {
	c.Emit(DoneEvent())
}

// Close closes the write side. Idempotent. Waits for in-flight Emits,
// buffered events remain readable until drained.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
