package notify

import (
	"log"
	"sync"
)

// StatusEvent is a single job-status transition pushed to subscribers.
type StatusEvent struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// Hub broadcasts status events to every subscriber. Delivery is best-effort:
// publishing never blocks, and a subscriber whose buffer is full loses the
// event. Subscribers are expected to fetch current status with a point-in-time
// query before subscribing; the hub does not replay history, so an event that
// fires between that query and Subscribe is lost.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan StatusEvent
	nextID uint64
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[uint64]chan StatusEvent),
		buffer: buffer,
	}
}

// Subscribe registers a new observer and returns its id and event channel.
// The channel is closed on Unsubscribe.
func (h *Hub) Subscribe() (uint64, <-chan StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan StatusEvent, h.buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish fans the event out to all current subscribers without blocking.
func (h *Hub) Publish(documentID, status string) {
	event := StatusEvent{DocumentID: documentID, Status: status}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			log.Printf("[notify] subscriber %d buffer full, dropping %s event for document %s", id, status, documentID)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
