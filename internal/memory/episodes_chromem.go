package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/ent0n29/mnemo/internal/embedder"
)

// ChromemEpisodeStore is the embedded fallback when no DATABASE_URL is
// configured: chromem-go holds the vectors, and an ordered per-user
// list serves the recency queries chromem has no index for. Dev and
// test use only; nothing survives a restart.
type ChromemEpisodeStore struct {
	db       *chromem.DB
	embedder embedder.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	byUser      map[string][]Episode // insertion order
}

func NewChromemEpisodeStore(emb embedder.Embedder) *ChromemEpisodeStore {
	return &ChromemEpisodeStore{
		db:          chromem.NewDB(),
		embedder:    emb,
		collections: make(map[string]*chromem.Collection),
		byUser:      make(map[string][]Episode),
	}
}

func (s *ChromemEpisodeStore) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	col, err := s.db.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *ChromemEpisodeStore) Store(ctx context.Context, userID, summary string, turnStart, turnEnd int) (bool, error) {
	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return false, fmt.Errorf("embed summary: %w", err)
	}

	col, err := s.collection(userID)
	if err != nil {
		return false, err
	}

	episode := Episode{
		UserID:    userID,
		TurnRange: TurnRangeLabel(turnStart, turnEnd),
		Summary:   summary,
		TurnStart: turnStart,
		TurnEnd:   turnEnd,
		CreatedAt: time.Now().UTC(),
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        uuid.NewString(),
		Content:   summary,
		Embedding: vec,
		Metadata: map[string]string{
			"turn_range": episode.TurnRange,
		},
	})
	if err != nil {
		return false, fmt.Errorf("add episode document: %w", err)
	}

	s.mu.Lock()
	s.byUser[userID] = append(s.byUser[userID], episode)
	s.mu.Unlock()
	return true, nil
}

func (s *ChromemEpisodeStore) Retrieve(ctx context.Context, userID, query string, topK int, maxDistance float64) ([]Episode, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults beyond the collection size.
	n := topK
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Episode
	for _, res := range results {
		distance := 1 - float64(res.Similarity)
		if distance >= maxDistance {
			continue
		}
		for _, e := range s.byUser[userID] {
			if e.TurnRange == res.Metadata["turn_range"] && e.Summary == res.Content {
				e.Distance = distance
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *ChromemEpisodeStore) Recent(_ context.Context, userID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 3
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.byUser[userID]
	if len(all) == 0 {
		return nil, nil
	}
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]Episode, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *ChromemEpisodeStore) Close() error { return nil }
