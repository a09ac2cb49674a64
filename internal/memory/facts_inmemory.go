package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/mnemo/internal/canonical"
)

// InMemoryFactStore mirrors the Postgres semantics in process memory,
// including the version history, for local dev and tests.
type InMemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string][]*Fact // userID -> all versions, append order
}

func NewInMemoryFactStore() *InMemoryFactStore {
	return &InMemoryFactStore{facts: make(map[string][]*Fact)}
}

func (s *InMemoryFactStore) Upsert(_ context.Context, userID, category, key, value string, confidence, importance float64) (bool, error) {
	key = canonical.Normalize(key)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.activeLocked(userID, category, key)
	if current != nil {
		if confidence < current.Confidence {
			return false, nil
		}
		closedAt := now
		current.IsActive = false
		current.ValidTo = &closedAt
		current.UpdatedAt = now
	}

	s.facts[userID] = append(s.facts[userID], &Fact{
		UserID:     userID,
		Category:   category,
		Key:        key,
		Value:      value,
		Confidence: confidence,
		Importance: importance,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return true, nil
}

func (s *InMemoryFactStore) GetByKeys(_ context.Context, userID string, keys []string) ([]Fact, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[canonical.Normalize(k)] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, f := range s.facts[userID] {
		if f.IsActive && wanted[f.Key] {
			out = append(out, *f)
		}
	}
	sortFacts(out)
	return out, nil
}

func (s *InMemoryFactStore) GetAll(_ context.Context, userID string, minImportance float64) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, f := range s.facts[userID] {
		if f.IsActive && f.Importance >= minImportance {
			out = append(out, *f)
		}
	}
	sortFacts(out)
	return out, nil
}

func (s *InMemoryFactStore) Delete(_ context.Context, userID, category, key string) (bool, error) {
	key = canonical.Normalize(key)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.activeLocked(userID, category, key); current != nil {
		closedAt := now
		current.IsActive = false
		current.ValidTo = &closedAt
		current.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

// History returns every version stored for a user, oldest first. Test
// hook for the audit-trail invariant; the Postgres store keeps the same
// rows server-side.
func (s *InMemoryFactStore) History(userID string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0, len(s.facts[userID]))
	for _, f := range s.facts[userID] {
		out = append(out, *f)
	}
	return out
}

func (s *InMemoryFactStore) activeLocked(userID, category, key string) *Fact {
	for _, f := range s.facts[userID] {
		if f.IsActive && f.Category == category && f.Key == key {
			return f
		}
	}
	return nil
}

func sortFacts(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Importance != facts[j].Importance {
			return facts[i].Importance > facts[j].Importance
		}
		return facts[i].UpdatedAt.After(facts[j].UpdatedAt)
	})
}

func (s *InMemoryFactStore) Close() error { return nil }
