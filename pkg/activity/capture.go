package activity

import (
	"context"
	"sync"
)

// CaptureHook records events for assertions in tests. Hooks run on the
// delivery goroutine, so read recorded events through Recorded.
type CaptureHook struct {
	Err    error
	mu     sync.Mutex
	events []Event
}

// Notify records the event and returns any configured error.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, NormalizeEvent(event))
	return h.Err
}

// Recorded returns a copy of the events captured so far.
func (h *CaptureHook) Recorded() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}
