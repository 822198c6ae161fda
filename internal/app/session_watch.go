package app

import (
	"sync"

	"samarpan/internal/domain"
)

// watchHub fans session snapshots out to in-process subscribers, keyed by session id.
type watchHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.GameSession]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{subscribers: make(map[string]map[chan domain.GameSession]struct{})}
}

func (h *watchHub) subscribe(initial domain.GameSession) (<-chan domain.GameSession, func()) {
	ch := make(chan domain.GameSession, 4)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[initial.ID]
	if !ok {
		subs = make(map[chan domain.GameSession]struct{})
		h.subscribers[initial.ID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[initial.ID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, initial.ID)
		}
	}
	return ch, cancel
}

func (h *watchHub) publish(session domain.GameSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[session.ID] {
		select {
		case ch <- session:
		default:
			// Slow watcher: drop its oldest snapshot so publishing never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- session
		}
	}
}
