package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ent0n29/mnemo/internal/embedder"
	"github.com/ent0n29/mnemo/internal/llm"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/session"
)

func newEpisodeStore(t *testing.T) *memory.ChromemEpisodeStore {
	t.Helper()
	return memory.NewChromemEpisodeStore(embedder.NewMockEmbedder(384))
}

func fillSession(reg *session.Registry, userID string, n int) *session.Entry {
	entry := reg.Get(userID)
	for i := 0; i < n; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		entry.Add(role, fmt.Sprintf("turn %d about databases", i))
	}
	return entry
}

func TestShouldSummarize(t *testing.T) {
	s := NewScheduler(nil, nil, nil, 20, 10, nil)
	if s.ShouldSummarize(19) {
		t.Error("19 turns should not trigger compression")
	}
	if !s.ShouldSummarize(20) {
		t.Error("20 turns should trigger compression")
	}
}

func TestCompressStoresEpisodeAndTrimsWindow(t *testing.T) {
	reg := session.NewRegistry(32)
	entry := fillSession(reg, "u1", 20)
	episodes := newEpisodeStore(t)
	gen := &llm.MockGenerator{Responses: []string{"User explored database options and settled on Postgres."}}
	s := NewScheduler(gen, episodes, reg, 20, 10, nil)

	if err := s.Compress(context.Background(), "u1"); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	if entry.Len() != 10 {
		t.Fatalf("expected 10 turns left after compression, got %d", entry.Len())
	}
	turns, offset := entry.Snapshot()
	if offset != 10 {
		t.Fatalf("expected offset 10, got %d", offset)
	}
	if turns[0].Content != "turn 10 about databases" {
		t.Fatalf("wrong surviving turn: %q", turns[0].Content)
	}

	recent, err := episodes.Recent(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(recent))
	}
	if recent[0].TurnStart != 0 || recent[0].TurnEnd != 9 {
		t.Fatalf("expected episode covering turns 0-9, got %d-%d", recent[0].TurnStart, recent[0].TurnEnd)
	}
	if !strings.Contains(recent[0].Summary, "Postgres") {
		t.Fatalf("unexpected summary: %q", recent[0].Summary)
	}
}

func TestCompressSkipsSmallWindows(t *testing.T) {
	reg := session.NewRegistry(32)
	fillSession(reg, "u1", 8)
	episodes := newEpisodeStore(t)
	gen := &llm.MockGenerator{Responses: []string{"summary"}}
	s := NewScheduler(gen, episodes, reg, 20, 10, nil)

	if err := s.Compress(context.Background(), "u1"); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if gen.Calls() != 0 {
		t.Fatalf("window below keepRecent must not call the LLM, got %d calls", gen.Calls())
	}
}

func TestCompressFallbackDigestOnLLMFailure(t *testing.T) {
	reg := session.NewRegistry(32)
	entry := fillSession(reg, "u1", 20)
	episodes := newEpisodeStore(t)
	gen := &llm.MockGenerator{Err: errors.New("llm down")}
	s := NewScheduler(gen, episodes, reg, 20, 10, nil)

	if err := s.Compress(context.Background(), "u1"); err != nil {
		t.Fatalf("Compress with fallback digest: %v", err)
	}
	if entry.Len() != 10 {
		t.Fatalf("fallback digest should still trim the window, got %d turns", entry.Len())
	}
	recent, err := episodes.Recent(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || !strings.HasPrefix(recent[0].Summary, "Topics: ") {
		t.Fatalf("expected digest episode, got %+v", recent)
	}
}

func TestCompressFailureLeavesWindowIntact(t *testing.T) {
	reg := session.NewRegistry(32)
	entry := fillSession(reg, "u1", 20)
	store := memory.NewChromemEpisodeStore(&embedder.FailingEmbedder{Err: errors.New("embed down")})
	gen := &llm.MockGenerator{Responses: []string{"summary"}}
	s := NewScheduler(gen, store, reg, 20, 10, nil)

	if err := s.Compress(context.Background(), "u1"); err == nil {
		t.Fatal("expected an error when the episode store fails")
	}
	if entry.Len() != 20 {
		t.Fatalf("failed compression must not drop turns, got %d", entry.Len())
	}
	if entry.CompressFailures() != 1 {
		t.Fatalf("expected 1 recorded failure, got %d", entry.CompressFailures())
	}
}

func TestCompressBacksOffAfterRepeatedFailures(t *testing.T) {
	reg := session.NewRegistry(32)
	fillSession(reg, "u1", 20)
	store := memory.NewChromemEpisodeStore(&embedder.FailingEmbedder{Err: errors.New("embed down")})
	gen := &llm.MockGenerator{Responses: []string{"summary"}}
	s := NewScheduler(gen, store, reg, 20, 10, nil)

	ctx := context.Background()
	for i := 0; i < maxConsecutiveFailures; i++ {
		if err := s.Compress(ctx, "u1"); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}
	calls := gen.Calls()
	if err := s.Compress(ctx, "u1"); err != nil {
		t.Fatalf("backed-off run should be a silent no-op, got %v", err)
	}
	if gen.Calls() != calls {
		t.Fatal("backed-off run must not call the LLM")
	}
}

func TestFallbackDigestTruncates(t *testing.T) {
	long := strings.Repeat("x", 200)
	batch := []session.Turn{
		{Role: session.RoleUser, Content: long},
		{Role: session.RoleAssistant, Content: "short"},
	}
	digest := fallbackDigest(batch)
	if len(digest) > len("Topics: ")+50+len("; short") {
		t.Fatalf("digest too long: %d chars", len(digest))
	}
	if !strings.Contains(digest, "short") {
		t.Fatalf("digest should include the second turn: %q", digest)
	}
}
