package events

import (
	"sync"
	"time"
)

const (
	// buffered per subscriber; a slow consumer drops events instead of
	// stalling the hub
	subscriberBuffer = 64

	broadcastBuffer = 256
)

type subscriber struct {
	events chan Event
}

// Hub fans events out to live subscribers (the websocket feed). It
// implements Sink so the orchestrator emits into it directly.
type Hub struct {
	register    chan *subscriber
	unregister  chan *subscriber
	broadcast   chan Event
	subscribers map[*subscriber]struct{}

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// creates a new event hub; call Run in a goroutine before subscribing
func NewHub() *Hub {
	return &Hub{
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan Event, broadcastBuffer),
		subscribers: make(map[*subscriber]struct{}),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.events)
			}

		case event := <-h.broadcast:
			for sub := range h.subscribers {
				select {
				case sub.events <- event:
				default:
					// subscriber buffer full, drop rather than block
				}
			}

		case <-h.shutdown:
			for sub := range h.subscribers {
				close(sub.events)
			}

			h.subscribers = make(map[*subscriber]struct{})
			return
		}
	}
}

// Emit queues an event for broadcast without blocking the caller.
func (h *Hub) Emit(level, name string, fields map[string]any) {
	event := Event{
		Time:   time.Now(),
		Level:  level,
		Name:   name,
		Fields: fields,
	}

	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		// hub overwhelmed, drop
	}
}

// Subscribe registers a listener and returns its channel plus a cancel
// func. The channel closes on cancel or hub shutdown.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{events: make(chan Event, subscriberBuffer)}

	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.events)
		return sub.events, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			select {
			case h.unregister <- sub:
			case <-h.done:
			}
		})
	}

	return sub.events, cancel
}

// Shutdown stops the run loop and closes every subscriber channel.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
}
