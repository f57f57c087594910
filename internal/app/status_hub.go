package app

import (
	"sync"

	"training-gate-service/internal/domain"
)

// StatusHub fans session summaries out to live dashboard subscribers.
type StatusHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.AccessSummary]struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{subscribers: make(map[string]map[chan domain.AccessSummary]struct{})}
}

// Subscribe registers a channel for one session's summaries.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *StatusHub) Subscribe(sessionID string) (<-chan domain.AccessSummary, func()) {
	ch := make(chan domain.AccessSummary, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.AccessSummary]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[sessionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
	return ch, cancel
}

// HasSubscribers reports whether publishing for sessionID would reach anyone.
func (h *StatusHub) HasSubscribers(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID]) > 0
}

// Publish delivers a summary to every subscriber of its session without blocking.
func (h *StatusHub) Publish(summary domain.AccessSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[summary.SessionID] {
		select {
		case ch <- summary:
		default:
			// Slow subscriber: drop the stale frame so the newest one fits.
			select {
			case <-ch:
			default:
			}
			ch <- summary
		}
	}
}
