package supervisor

import "sync"

// logBufferLines is the replay buffer capacity; oldest lines are evicted
// first once exceeded.
const logBufferLines = 200

// subscriberBuffer is the per-subscriber channel capacity. It must hold a
// full replay plus headroom for live lines; a subscriber that stops draining
// overflows it and is pruned on the next push.
const subscriberBuffer = logBufferLines + 64

// LogHub tracks one LogChannel per live instance, keyed by model id.
type LogHub struct {
	mu       sync.Mutex
	channels map[int64]*LogChannel
}

func NewLogHub() *LogHub {
	return &LogHub{channels: make(map[int64]*LogChannel)}
}

// Open creates (or returns) the channel for a model. Called when an instance
// is spawned.
func (h *LogHub) Open(modelID int64) *LogChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[modelID]; ok {
		return ch
	}
	ch := &LogChannel{subs: make(map[chan string]struct{})}
	h.channels[modelID] = ch
	return ch
}

// Subscribe attaches to a model's channel; ok is false when no channel
// exists. The returned cancel is idempotent.
func (h *LogHub) Subscribe(modelID int64) (<-chan string, func(), bool) {
	h.mu.Lock()
	ch, ok := h.channels[modelID]
	h.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	sub := ch.subscribe()
	return sub, func() { ch.unsubscribe(sub) }, true
}

// Close tears down a model's channel, disconnecting all subscribers. Called
// when the owning instance is stopped or its error is cleared.
func (h *LogHub) Close(modelID int64) {
	h.mu.Lock()
	ch, ok := h.channels[modelID]
	delete(h.channels, modelID)
	h.mu.Unlock()
	if ok {
		ch.close()
	}
}

// LogChannel is a bounded append-only line buffer plus a set of live
// subscribers. Push is safe to call from the process output reader goroutine
// while subscribers attach and detach concurrently.
type LogChannel struct {
	mu     sync.Mutex
	buf    []string
	subs   map[chan string]struct{}
	closed bool
}

// Push appends a line, evicting the oldest beyond capacity, and broadcasts
// it best-effort: a subscriber whose buffer is full is dropped rather than
// blocking delivery to the others.
func (c *LogChannel) Push(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.buf = append(c.buf, line)
	if len(c.buf) > logBufferLines {
		c.buf = c.buf[len(c.buf)-logBufferLines:]
	}
	for sub := range c.subs {
		select {
		case sub <- line:
		default:
			delete(c.subs, sub)
			close(sub)
		}
	}
}

// subscribe replays the buffered history into a fresh channel, then attaches
// it for future pushes. Replay and attach happen under one lock so no line
// is missed or duplicated in between.
func (c *LogChannel) subscribe() chan string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := make(chan string, subscriberBuffer)
	for _, line := range c.buf {
		sub <- line
	}
	if c.closed {
		close(sub)
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

// unsubscribe detaches sub. Idempotent; also invoked implicitly when a push
// finds the subscriber's buffer full.
func (c *LogChannel) unsubscribe(sub chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		close(sub)
	}
}

func (c *LogChannel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		delete(c.subs, sub)
		close(sub)
	}
	c.buf = nil
}
