// Package memory persists the two long-term tiers: deterministic
// structured facts and embedding-indexed episodic summaries.
package memory

import (
	"context"
	"fmt"
	"time"
)

// Categories a structured fact may carry. Anything else is rejected
// upstream by the extraction pipeline.
const (
	CategoryIdentity    = "identity"
	CategoryPreference  = "preference"
	CategoryConstraint  = "constraint"
	CategoryInstruction = "instruction"
)

// ValidCategory reports whether c is one of the allowed fact categories.
func ValidCategory(c string) bool {
	switch c {
	case CategoryIdentity, CategoryPreference, CategoryConstraint, CategoryInstruction:
		return true
	}
	return false
}

// Fact is one versioned key/value statement about a user. At most one
// row per (user_id, category, key) is active at any instant; superseded
// rows are closed with ValidTo and kept for audit.
type Fact struct {
	UserID     string     `json:"user_id"`
	Category   string     `json:"category"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Importance float64    `json:"importance"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
}

// Episode is a compressed digest of a contiguous span of turns.
// Immutable after creation.
type Episode struct {
	UserID    string    `json:"user_id"`
	TurnRange string    `json:"turn_range"`
	Summary   string    `json:"summary"`
	TurnStart int       `json:"turn_start"`
	TurnEnd   int       `json:"turn_end"`
	CreatedAt time.Time `json:"created_at"`
	// Distance is the cosine distance to the query when the episode was
	// returned by a similarity search, 0 otherwise.
	Distance float64 `json:"distance,omitempty"`
}

// FactStore is the long-term deterministic tier.
type FactStore interface {
	// Upsert inserts or supersedes the active fact for (user, category,
	// key). Returns false without error when the monotonic-confidence
	// guard rejects the write (new confidence below the current one).
	Upsert(ctx context.Context, userID, category, key, value string, confidence, importance float64) (bool, error)
	// GetByKeys returns active facts for specific keys, ordered by
	// importance desc then recency.
	GetByKeys(ctx context.Context, userID string, keys []string) ([]Fact, error)
	// GetAll returns active facts at or above minImportance, ordered by
	// importance desc then recency.
	GetAll(ctx context.Context, userID string, minImportance float64) ([]Fact, error)
	// Delete soft-deletes the active fact; reports whether one existed.
	Delete(ctx context.Context, userID, category, key string) (bool, error)
	Close() error
}

// EpisodeStore is the mid-term embedding-indexed tier.
type EpisodeStore interface {
	// Store embeds the summary and inserts one immutable episode.
	// Returns false on embedding or persistence failure, never leaving
	// partial state.
	Store(ctx context.Context, userID, summary string, turnStart, turnEnd int) (bool, error)
	// Retrieve returns episodes whose cosine distance to the query is
	// below maxDistance, ascending by distance, at most topK.
	Retrieve(ctx context.Context, userID, query string, topK int, maxDistance float64) ([]Episode, error)
	// Recent returns the newest episodes regardless of similarity.
	Recent(ctx context.Context, userID string, limit int) ([]Episode, error)
	Close() error
}

// TurnRangeLabel renders the span label stored alongside an episode,
// e.g. "turns 0-9".
func TurnRangeLabel(turnStart, turnEnd int) string {
	return fmt.Sprintf("turns %d-%d", turnStart, turnEnd)
}
