package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestWindowBoundedEviction(t *testing.T) {
	w := NewWindow(6)
	for i := 0; i < 14; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		w.Add(role, fmt.Sprintf("turn-%d", i))
		if w.Len() > 6 {
			t.Fatalf("window length %d exceeds capacity after add %d", w.Len(), i)
		}
	}

	turns := w.Turns()
	if len(turns) != 6 {
		t.Fatalf("len = %d, want 6", len(turns))
	}
	for i, turn := range turns {
		want := fmt.Sprintf("turn-%d", 8+i)
		if turn.Content != want {
			t.Errorf("turns[%d].Content = %q, want %q", i, turn.Content, want)
		}
	}
}

func TestWindowUnderCapacityKeepsAll(t *testing.T) {
	w := NewWindow(6)
	w.Add(RoleUser, "a")
	w.Add(RoleAssistant, "b")
	turns := w.Turns()
	if len(turns) != 2 || turns[0].Content != "a" || turns[1].Content != "b" {
		t.Fatalf("unexpected contents: %+v", turns)
	}
}

func TestWindowClear(t *testing.T) {
	w := NewWindow(3)
	w.Add(RoleUser, "a")
	w.Clear()
	if w.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", w.Len())
	}
}

func TestWindowTurnsIsCopy(t *testing.T) {
	w := NewWindow(3)
	w.Add(RoleUser, "a")
	turns := w.Turns()
	turns[0].Content = "mutated"
	if w.Turns()[0].Content != "a" {
		t.Fatalf("Turns() leaked internal state")
	}
}

func TestEntryOffsetTracksEviction(t *testing.T) {
	r := NewRegistry(4)
	e := r.Get("u1")
	for i := 0; i < 10; i++ {
		e.Add(RoleUser, fmt.Sprintf("t%d", i))
	}
	turns, offset := e.Snapshot()
	if len(turns) != 4 {
		t.Fatalf("len = %d, want 4", len(turns))
	}
	if offset != 6 {
		t.Fatalf("offset = %d, want 6", offset)
	}
	if turns[0].Content != "t6" {
		t.Fatalf("first turn = %q, want t6", turns[0].Content)
	}
}

func TestEntryReleaseThrough(t *testing.T) {
	r := NewRegistry(30)
	e := r.Get("u1")
	for i := 0; i < 20; i++ {
		e.Add(RoleUser, fmt.Sprintf("t%d", i))
	}

	// Compress turns 0..9, then release them.
	e.ReleaseThrough(9)
	turns, offset := e.Snapshot()
	if len(turns) != 10 {
		t.Fatalf("len = %d, want 10", len(turns))
	}
	if offset != 10 {
		t.Fatalf("offset = %d, want 10", offset)
	}
	if turns[0].Content != "t10" {
		t.Fatalf("first turn = %q, want t10", turns[0].Content)
	}

	// Releasing an already-released span is a no-op.
	e.ReleaseThrough(9)
	if e.Len() != 10 {
		t.Fatalf("len after repeat release = %d, want 10", e.Len())
	}
}

func TestRegistryCreatesOnFirstContact(t *testing.T) {
	r := NewRegistry(6)
	a := r.Get("u1")
	b := r.Get("u1")
	if a != b {
		t.Fatalf("Get returned distinct entries for the same user")
	}
	if r.Users() != 1 {
		t.Fatalf("Users() = %d, want 1", r.Users())
	}
}

func TestEntryConcurrentAdds(t *testing.T) {
	r := NewRegistry(8)
	e := r.Get("u1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e.Add(RoleUser, fmt.Sprintf("c%d", n))
		}(i)
	}
	wg.Wait()

	turns, offset := e.Snapshot()
	if len(turns) != 8 {
		t.Fatalf("len = %d, want 8", len(turns))
	}
	if offset != 8 {
		t.Fatalf("offset = %d, want 8", offset)
	}
}
