package rtms

import (
	"sync"
	"sync/atomic"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
)

const defaultSubscriberBuffer = 64

// Hub fans session events out to per-meeting subscribers. Publish never
// blocks: events for a subscriber whose buffer is full are dropped.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan rtmsmodel.Event
	nextID  uint64
	buffer  int
	dropped atomic.Int64
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]map[uint64]chan rtmsmodel.Event),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events for meetingID and a function that
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(meetingID string) (<-chan rtmsmodel.Event, func()) {
	ch := make(chan rtmsmodel.Event, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[meetingID] == nil {
		h.subs[meetingID] = make(map[uint64]chan rtmsmodel.Event)
	}
	h.subs[meetingID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[meetingID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, meetingID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers event to the subscribers of its meeting.
func (h *Hub) Publish(event rtmsmodel.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[event.MeetingID] {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
