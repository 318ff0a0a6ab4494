package realtime

import (
	"errors"
	"log"
	"sync"

	"teamboard/internal/models"
)

// ErrQueueFull is returned by Deliver when a subscriber cannot take more events.
var ErrQueueFull = errors.New("subscriber queue full")

// Publisher fans a task event out. Publish must not block and never reports failure.
type Publisher interface {
	Publish(evt models.TaskEvent)
}

// Subscriber receives every published event. Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(evt models.TaskEvent) error
}

// Hub is the in-process broadcast channel. Every subscriber gets every event,
// there is no filtering by role or assignment.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
	}
}

func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.ID()] = sub
	log.Printf("[hub][subscribe] id=%s total=%d", sub.ID(), len(h.subs))
}

func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID()]; !ok {
		return
	}
	delete(h.subs, sub.ID())
	log.Printf("[hub][unsubscribe] id=%s total=%d", sub.ID(), len(h.subs))
}

// Publish hands evt to every subscriber. A subscriber that fails is skipped,
// the publisher never learns about it.
func (h *Hub) Publish(evt models.TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		if err := sub.Deliver(evt); err != nil {
			log.Printf("[hub][publish][drop] event=%s task=%s sub=%s: %v", evt.Kind, evt.TaskID, id, err)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber. Subscribers that own resources implement io.Closer.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		if c, ok := sub.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
