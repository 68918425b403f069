package hub

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

const subscriberBuffer = 1024

func logger() *log.Logger { return log.WithPrefix("hub") }

// Hub receives classified log events and broadcasts them to all subscribers
// (the Telegram notifier, the aggregator, dashboard websockets).
type Hub struct {
	input       <-chan model.LogEvent
	mu          sync.RWMutex
	subscribers []chan model.LogEvent
	dropped     int64
	closed      bool
}

// New creates a Hub that reads from the input channel.
func New(input <-chan model.LogEvent) *Hub {
	return &Hub{input: input}
}

// Subscribe returns a buffered channel that will receive log events.
// Multiple consumers can subscribe; each gets a copy of every event.
// Subscribing after the hub stopped returns a closed channel.
func (h *Hub) Subscribe() <-chan model.LogEvent {
	ch := make(chan model.LogEvent, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers = append(h.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(sub <-chan model.LogEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ch := range h.subscribers {
		if ch == sub {
			close(ch)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Dropped returns the total number of events dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Start broadcasts until the input channel is closed, then closes every
// subscriber. The tailer closes its output only after flushing, so nothing
// emitted during shutdown is lost here.
func (h *Hub) Start() {
	defer h.closeAll()

	for ev := range h.input {
		h.broadcast(ev)
	}
}

// broadcast sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped for that subscriber.
func (h *Hub) broadcast(ev model.LogEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.dropped++
			logger().Warn("dropped event for slow consumer", "total_dropped", h.dropped)
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
	h.closed = true
}
