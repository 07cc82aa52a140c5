package engine

import (
	"context"
	"sync"
)

// sessionSlot is an exclusive processing slot for one session. The
// 1-buffered channel acts as a semaphore; the runtime wakes blocked
// senders in arrival order, which gives per-session FIFO processing.
type sessionSlot struct {
	ch   chan struct{}
	refs int
}

// slotRegistry hands out session slots on demand and reclaims them once
// no request holds or waits on them, so idle sessions cost nothing.
type slotRegistry struct {
	mu    sync.Mutex
	slots map[string]*sessionSlot
}

func newSlotRegistry() *slotRegistry {
	return &slotRegistry{slots: make(map[string]*sessionSlot)}
}

// acquire blocks until the session's slot is free or ctx is done. On
// success the returned release function must be called exactly once.
func (r *slotRegistry) acquire(ctx context.Context, sessionID string) (func(), error) {
	r.mu.Lock()
	s, ok := r.slots[sessionID]
	if !ok {
		s = &sessionSlot{ch: make(chan struct{}, 1)}
		r.slots[sessionID] = s
	}
	s.refs++
	r.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			r.put(sessionID, s)
		}, nil
	case <-ctx.Done():
		r.put(sessionID, s)
		return nil, ctx.Err()
	}
}

// put drops one reference and deletes the slot once nothing uses it.
func (r *slotRegistry) put(sessionID string, s *sessionSlot) {
	r.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(r.slots, sessionID)
	}
	r.mu.Unlock()
}

// active returns the number of tracked sessions. For tests.
func (r *slotRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
