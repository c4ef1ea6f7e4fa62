package realtime

import (
	"log"
	"sync"
)

// subscriberBuffer - panjang channel per subscriber. Subscriber lambat
// kehilangan event, bukan memblokir publisher: delivery bukan bagian dari
// invariant mana pun.
const subscriberBuffer = 16

// Subscription - satu pendengar event untuk satu queue.
type Subscription struct {
	C       chan Event
	queueID int64
}

// Hub menyiarkan delta state ke subscriber yang dikelompokkan per queue id.
// Publish fire-and-forget terhadap mutasi yang memicunya.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int64]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(queueID int64) *Subscription {
	sub := &Subscription{
		C:       make(chan Event, subscriberBuffer),
		queueID: queueID,
	}

	h.mu.Lock()
	room, ok := h.rooms[queueID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[queueID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if room, ok := h.rooms[sub.queueID]; ok {
		if _, member := room[sub]; member {
			delete(room, sub)
			close(sub.C)
			if len(room) == 0 {
				delete(h.rooms, sub.queueID)
			}
		}
	}
	h.mu.Unlock()
}

// Publish mengirim event ke semua subscriber queue tersebut tanpa blocking.
// Channel penuh berarti event di-drop untuk subscriber itu.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[ev.QueueID] {
		select {
		case sub.C <- ev:
		default:
			log.Printf("[realtime] subscriber queue %d penuh, event %s di-drop", ev.QueueID, ev.Type)
		}
	}
}

// Subscribers - jumlah pendengar aktif sebuah queue (untuk monitoring).
func (h *Hub) Subscribers(queueID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[queueID])
}
