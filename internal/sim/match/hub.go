package match

import "sync"

// hub fans serialized TICK_EVENTS out to connected clients.
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan []byte
}

func (h *hub) init() { h.subs = map[uint64]chan []byte{} }

// Subscribe returns a channel of encoded TICK_EVENTS messages and a cancel
// func. Slow subscribers lose messages rather than stall the loop.
func (m *Match) Subscribe(buf int) (<-chan []byte, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan []byte, buf)
	m.hub.mu.Lock()
	id := m.hub.next
	m.hub.next++
	m.hub.subs[id] = ch
	m.hub.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.hub.mu.Lock()
			delete(m.hub.subs, id)
			m.hub.mu.Unlock()
		})
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// broadcast returns the number of subscribers that dropped b.
func (h *hub) broadcast(b []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- b:
		default:
			dropped++
		}
	}
	return dropped
}
