// Package summarize compresses the oldest session turns into episodic
// summaries so the window can stay small without losing history.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/mnemo/internal/llm"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/session"
)

const (
	// DefaultThreshold is the window size that triggers compression.
	DefaultThreshold = 20
	// DefaultKeepRecent turns always stay verbatim in the window.
	DefaultKeepRecent = 10
	// minBatch turns are needed before a summary is worth an LLM call.
	minBatch = 5

	// maxConsecutiveFailures pauses compression for a user until a run
	// succeeds again, so a down LLM does not burn a call per turn.
	maxConsecutiveFailures = 3
)

const summaryTemperature = 0.3

const summaryMaxTokens = 150

const summaryPrompt = `Summarize this conversation segment in 2-3 sentences. Focus on facts, decisions, and topics discussed. Be specific.

%s

Summary:`

// Scheduler decides when a user's window needs compression and runs it.
type Scheduler struct {
	generator  llm.Generator
	episodes   memory.EpisodeStore
	sessions   *session.Registry
	threshold  int
	keepRecent int
	metrics    *observability.Metrics
}

func NewScheduler(generator llm.Generator, episodes memory.EpisodeStore, sessions *session.Registry, threshold, keepRecent int, metrics *observability.Metrics) *Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	return &Scheduler{
		generator:  generator,
		episodes:   episodes,
		sessions:   sessions,
		threshold:  threshold,
		keepRecent: keepRecent,
		metrics:    metrics,
	}
}

// ShouldSummarize reports whether a window of n turns is due for
// compression.
func (s *Scheduler) ShouldSummarize(n int) bool {
	return n >= s.threshold
}

// Compress summarizes everything but the newest keepRecent turns of the
// user's window into one episode. The window is only trimmed after the
// episode is durably stored, so a failed run loses nothing.
func (s *Scheduler) Compress(ctx context.Context, userID string) error {
	entry := s.sessions.Get(userID)

	if entry.CompressFailures() >= maxConsecutiveFailures {
		s.countRun("backoff")
		return nil
	}

	turns, offset := entry.Snapshot()
	if len(turns) <= s.keepRecent {
		return nil
	}
	batch := turns[:len(turns)-s.keepRecent]
	if len(batch) < minBatch {
		return nil
	}

	turnStart := offset
	turnEnd := offset + len(batch) - 1

	summary := s.summarize(ctx, batch)
	if summary == "" {
		entry.CompressFailed()
		s.countRun("error")
		return fmt.Errorf("summarize turns %d-%d for user %s: empty summary", turnStart, turnEnd, userID)
	}

	stored, err := s.episodes.Store(ctx, userID, summary, turnStart, turnEnd)
	if err != nil {
		entry.CompressFailed()
		s.countRun("error")
		return fmt.Errorf("store episode for user %s: %w", userID, err)
	}
	if !stored {
		entry.CompressFailed()
		s.countRun("error")
		return fmt.Errorf("episode for user %s turns %d-%d was not stored", userID, turnStart, turnEnd)
	}

	entry.ReleaseThrough(turnEnd)
	entry.CompressSucceeded()
	s.countRun("ok")
	if s.metrics != nil {
		s.metrics.EpisodesStored.Inc()
	}
	return nil
}

// summarize asks the LLM for a summary and falls back to a mechanical
// digest when the call fails or returns a sentinel.
func (s *Scheduler) summarize(ctx context.Context, batch []session.Turn) string {
	var b strings.Builder
	for _, turn := range batch {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}

	response, err := s.generator.Generate(ctx, fmt.Sprintf(summaryPrompt, b.String()), llm.Options{
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		log.Printf("summarize: generate failed, using fallback digest: %v", err)
		return fallbackDigest(batch)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return fallbackDigest(batch)
	}
	return response
}

// fallbackDigest concatenates truncated openings of the first few turns
// so a compression run still yields a retrievable episode when the LLM
// is unavailable.
func fallbackDigest(batch []session.Turn) string {
	limit := len(batch)
	if limit > 5 {
		limit = 5
	}
	parts := make([]string, 0, limit)
	for _, turn := range batch[:limit] {
		content := turn.Content
		if len(content) > 50 {
			content = content[:50]
		}
		parts = append(parts, content)
	}
	return "Topics: " + strings.Join(parts, "; ")
}

func (s *Scheduler) countRun(outcome string) {
	if s.metrics != nil {
		s.metrics.CompressionRuns.WithLabelValues(outcome).Inc()
	}
}
