package web

import "sync"

// reloadHub fans catalog reload notifications out to open event streams.
type reloadHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newReloadHub() *reloadHub {
	return &reloadHub{subs: map[chan struct{}]struct{}{}}
}

func (h *reloadHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

func (h *reloadHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *reloadHub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
