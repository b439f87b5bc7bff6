// Package store holds the process-lifetime state the orchestrator works on:
// conversation histories, per-conversation activity and user taste profiles.
package store

import (
	"sync"
	"time"

	"taste-agent/internal/domain"
)

// ConversationStore keeps one ordered history per (user, conversation).
// The map lock is only held to find or create an entry; each history has its
// own lock so work on one conversation never waits on another.
type ConversationStore struct {
	mu      sync.Mutex
	entries map[domain.ConversationKey]*historyEntry
	now     func() time.Time
}

type historyEntry struct {
	mu      sync.Mutex
	history domain.ConversationHistory
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		entries: make(map[domain.ConversationKey]*historyEntry),
		now:     time.Now,
	}
}

// GetOrCreate returns a snapshot of the history for key, creating an empty
// one on first use.
func (s *ConversationStore) GetOrCreate(key domain.ConversationKey) domain.ConversationHistory {
	e := s.entry(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.history)
}

// Get returns a snapshot of the history for key without creating it.
func (s *ConversationStore) Get(key domain.ConversationKey) (domain.ConversationHistory, bool) {
	e := s.entry(key, false)
	if e == nil {
		return domain.ConversationHistory{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.history), true
}

// Append adds msgs in order to the end of the history.
func (s *ConversationStore) Append(key domain.ConversationKey, msgs ...domain.Message) {
	if len(msgs) == 0 {
		return
	}
	e := s.entry(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Messages = append(e.history.Messages, msgs...)
	e.history.LastUpdated = s.now()
}

// Trim drops the oldest messages until at most max remain.
func (s *ConversationStore) Trim(key domain.ConversationKey, max int) {
	e := s.entry(key, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if max < 0 {
		max = 0
	}
	if n := len(e.history.Messages); n > max {
		kept := make([]domain.Message, max)
		copy(kept, e.history.Messages[n-max:])
		e.history.Messages = kept
	}
}

// Clear empties the history but keeps its identity and creation time.
func (s *ConversationStore) Clear(key domain.ConversationKey) {
	e := s.entry(key, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Messages = nil
	e.history.LastUpdated = s.now()
}

func (s *ConversationStore) entry(key domain.ConversationKey, create bool) *historyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok || !create {
		return e
	}
	now := s.now()
	e = &historyEntry{history: domain.ConversationHistory{
		UserID:         key.UserID,
		ConversationID: key.ConversationID,
		CreatedAt:      now,
		LastUpdated:    now,
	}}
	s.entries[key] = e
	return e
}

func snapshot(h domain.ConversationHistory) domain.ConversationHistory {
	msgs := make([]domain.Message, len(h.Messages))
	copy(msgs, h.Messages)
	h.Messages = msgs
	return h
}
