package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taste-agent/internal/domain"
)

var ErrEmptyValue = errors.New("store: preference value is empty")

// ProfileStore keeps one taste profile per user, created on first access.
type ProfileStore struct {
	mu      sync.Mutex
	entries map[string]*profileEntry
	now     func() time.Time
}

type profileEntry struct {
	mu      sync.Mutex
	profile domain.TasteProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		entries: make(map[string]*profileEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the user's profile. It never returns a zero value:
// an unknown user gets a freshly created empty profile.
func (s *ProfileStore) Get(userID string) domain.TasteProfile {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Clone()
}

// Update applies one preference signal and returns a short description of
// what changed.
//
//	cuisine      love/like: add, dislike/hate: remove, neutral: nothing
//	dish         love/like: add to favorites, dislike/hate: add to dislikes, neutral: nothing
//	spice_level  overwrite spice level
//	price        overwrite price preference
//	dietary      add, whatever the sentiment
//	allergy      add, whatever the sentiment
func (s *ProfileStore) Update(userID string, category domain.Category, value string, sentiment domain.Sentiment) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrEmptyValue
	}
	if _, err := domain.ParseCategory(string(category)); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	if _, err := domain.ParseSentiment(string(sentiment)); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &e.profile
	var (
		summary string
		changed bool
	)
	switch category {
	case domain.CategoryCuisine:
		switch {
		case sentiment.Positive():
			p.Cuisines, changed = addUnique(p.Cuisines, value)
			summary = fmt.Sprintf("Added %s to preferred cuisines", value)
		case sentiment.Negative():
			p.Cuisines, changed = remove(p.Cuisines, value)
			summary = fmt.Sprintf("Removed %s from preferred cuisines", value)
		default:
			summary = "No change to cuisine preferences"
		}
	case domain.CategoryDish:
		switch {
		case sentiment.Positive():
			p.FavoriteDishes, changed = addUnique(p.FavoriteDishes, value)
			summary = fmt.Sprintf("Added %s to favorite dishes", value)
		case sentiment.Negative():
			p.Dislikes, changed = addUnique(p.Dislikes, value)
			summary = fmt.Sprintf("Added %s to dislikes", value)
		default:
			summary = "No change to dish preferences"
		}
	case domain.CategorySpice:
		changed = p.SpiceLevel != value
		p.SpiceLevel = value
		summary = fmt.Sprintf("Set spice level to %s", value)
	case domain.CategoryPrice:
		changed = p.PricePreference != value
		p.PricePreference = value
		summary = fmt.Sprintf("Set price preference to %s", value)
	case domain.CategoryDietary:
		p.DietaryRestrictions, changed = addUnique(p.DietaryRestrictions, value)
		summary = fmt.Sprintf("Added %s to dietary restrictions", value)
	case domain.CategoryAllergy:
		p.Allergies, changed = addUnique(p.Allergies, value)
		summary = fmt.Sprintf("Added %s to allergies", value)
	}
	// LastUpdated moves only when the profile content did.
	if changed {
		p.LastUpdated = s.now()
	}
	return summary, nil
}

func (s *ProfileStore) entry(userID string) *profileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &profileEntry{profile: domain.NewTasteProfile(userID, s.now())}
		s.entries[userID] = e
	}
	return e
}

// addUnique appends value unless present and reports whether it did.
func addUnique(list []string, value string) ([]string, bool) {
	for _, v := range list {
		if v == value {
			return list, false
		}
	}
	return append(list, value), true
}

func remove(list []string, value string) ([]string, bool) {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out, len(out) != len(list)
}
