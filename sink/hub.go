package sink

import (
	"context"
	"sync"
	"sync/atomic"

	iface "CamDetLoop/interface"
)

// Hub keeps the most recent report and hands every report to its
// subscribers. A subscriber that is not keeping up misses reports; Emit
// never blocks on it.
type Hub struct {
	mu      sync.RWMutex
	latest  iface.Report
	hasLast bool
	nextID  int
	subs    map[int]chan iface.Report
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan iface.Report)}
}

func (h *Hub) Emit(ctx context.Context, result iface.DetectionResult, fps float64) error {
	r := iface.Report{Result: result, FPS: fps}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = r
	h.hasLast = true
	for _, ch := range h.subs {
		select {
		case ch <- r:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Latest returns the last emitted report, if any.
func (h *Hub) Latest() (iface.Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasLast
}

// Subscribe registers a subscriber with room for buffer pending reports.
// cancel closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan iface.Report, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan iface.Report, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
