package memory

import (
	"context"
	"testing"
)

func TestUpsertHigherConfidenceSupersedes(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	if ok, err := s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alex", 0.9, 0.8); err != nil || !ok {
		t.Fatalf("first Upsert = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alexander", 0.95, 0.8); err != nil || !ok {
		t.Fatalf("second Upsert = (%v, %v), want (true, nil)", ok, err)
	}

	facts, err := s.GetAll(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("active facts = %d, want exactly 1", len(facts))
	}
	if facts[0].Key != "name" || facts[0].Value != "Alexander" {
		t.Fatalf("active fact = %s=%s, want name=Alexander", facts[0].Key, facts[0].Value)
	}
}

func TestUpsertMonotonicConfidenceGuard(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alexander", 0.95, 0.8)
	ok, err := s.Upsert(ctx, "u1", CategoryIdentity, "name", "Al", 0.5, 0.8)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if ok {
		t.Fatalf("low-confidence upsert accepted, want silent rejection")
	}

	facts, _ := s.GetAll(ctx, "u1", 0)
	if len(facts) != 1 || facts[0].Value != "Alexander" {
		t.Fatalf("active fact = %+v, want value Alexander", facts)
	}
}

func TestUpsertEqualConfidenceOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryPreference, "language", "Python", 0.8, 0.7)
	ok, err := s.Upsert(ctx, "u1", CategoryPreference, "language", "Go", 0.8, 0.7)
	if err != nil || !ok {
		t.Fatalf("equal-confidence Upsert = (%v, %v), want (true, nil)", ok, err)
	}
	facts, _ := s.GetAll(ctx, "u1", 0)
	if len(facts) != 1 || facts[0].Value != "Go" {
		t.Fatalf("active fact = %+v, want value Go", facts)
	}
}

func TestUpsertKeepsHistory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alex", 0.9, 0.8)
	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alexander", 0.95, 0.8)

	history := s.History("u1")
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	old := history[0]
	if old.IsActive || old.ValidTo == nil {
		t.Fatalf("superseded row not closed: %+v", old)
	}
}

func TestUpsertCanonicalizesKey(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "full_name", "Alex", 0.9, 0.8)
	facts, _ := s.GetAll(ctx, "u1", 0)
	if len(facts) != 1 || facts[0].Key != "name" {
		t.Fatalf("stored key = %+v, want canonical \"name\"", facts)
	}

	// An alias and its canonical form address the same row.
	ok, _ := s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alexander", 0.95, 0.8)
	if !ok {
		t.Fatalf("canonical-key upsert rejected")
	}
	facts, _ = s.GetAll(ctx, "u1", 0)
	if len(facts) != 1 || facts[0].Value != "Alexander" {
		t.Fatalf("facts after alias upsert = %+v", facts)
	}
}

func TestGetByKeysAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alex", 0.9, 0.9)
	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "job", "engineer", 0.9, 0.4)
	_, _ = s.Upsert(ctx, "u1", CategoryPreference, "language", "Go", 0.9, 0.7)

	facts, err := s.GetByKeys(ctx, "u1", []string{"full_name", "job"})
	if err != nil {
		t.Fatalf("GetByKeys() error = %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(facts))
	}
	if facts[0].Key != "name" || facts[1].Key != "job" {
		t.Fatalf("order = %s, %s; want name then job (importance desc)", facts[0].Key, facts[1].Key)
	}

	all, _ := s.GetAll(ctx, "u1", 0.5)
	if len(all) != 2 {
		t.Fatalf("GetAll(min 0.5) = %d facts, want 2", len(all))
	}
}

func TestDeleteSoftDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alex", 0.9, 0.8)
	existed, err := s.Delete(ctx, "u1", CategoryIdentity, "name")
	if err != nil || !existed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", existed, err)
	}
	facts, _ := s.GetAll(ctx, "u1", 0)
	if len(facts) != 0 {
		t.Fatalf("facts after delete = %+v, want none", facts)
	}
	if len(s.History("u1")) != 1 {
		t.Fatalf("delete destroyed history")
	}

	existed, _ = s.Delete(ctx, "u1", CategoryIdentity, "name")
	if existed {
		t.Fatalf("second delete reported an existing row")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryFactStore()

	_, _ = s.Upsert(ctx, "u1", CategoryIdentity, "name", "Alex", 0.9, 0.8)
	facts, _ := s.GetAll(ctx, "u2", 0)
	if len(facts) != 0 {
		t.Fatalf("u2 sees u1 facts: %+v", facts)
	}
}
