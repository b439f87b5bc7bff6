package store

import (
	"sync"
	"time"

	"taste-agent/internal/domain"
)

// ActivityTracker counts calls per conversation and detects idle
// conversations. Every operation is O(1), so a single mutex is enough.
type ActivityTracker struct {
	ttl    time.Duration
	mu     sync.Mutex
	states map[string]*domain.RateState
}

func NewActivityTracker(ttl time.Duration) *ActivityTracker {
	return &ActivityTracker{
		ttl:    ttl,
		states: make(map[string]*domain.RateState),
	}
}

// CheckAndMaybeReset zeroes the call counter when the conversation has been
// idle for longer than the TTL and reports whether it did. A conversation
// that was never touched is never stale. The caller clears the matching
// history while still holding the conversation's turn lock.
func (t *ActivityTracker) CheckAndMaybeReset(conversationID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[conversationID]
	if !ok || st.LastActiveAt.IsZero() {
		return false
	}
	if now.Sub(st.LastActiveAt) <= t.ttl {
		return false
	}
	st.CallCount = 0
	return true
}

// Increment bumps the call counter and returns the new value.
func (t *ActivityTracker) Increment(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(conversationID)
	st.CallCount++
	return st.CallCount
}

func (t *ActivityTracker) Touch(conversationID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(conversationID).LastActiveAt = now
}

func (t *ActivityTracker) State(conversationID string) (domain.RateState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[conversationID]
	if !ok {
		return domain.RateState{}, false
	}
	return *st, true
}

func (t *ActivityTracker) state(conversationID string) *domain.RateState {
	st, ok := t.states[conversationID]
	if !ok {
		st = &domain.RateState{}
		t.states[conversationID] = st
	}
	return st
}
