package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mnemo/internal/embedder"
)

// Stores bundles the two long-term tiers plus the pool they may share.
type Stores struct {
	Facts    FactStore
	Episodes EpisodeStore
	Mode     string // "postgres" or "in-memory"

	pool *pgxpool.Pool
}

// NewStores creates postgres-backed stores when a database URL is
// configured, otherwise in-process fallbacks (map facts + chromem
// episodes). Both tiers always share one backend mode.
func NewStores(ctx context.Context, databaseURL string, emb embedder.Embedder) (*Stores, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return &Stores{
			Facts:    NewInMemoryFactStore(),
			Episodes: NewChromemEpisodeStore(emb),
			Mode:     "in-memory",
		}, nil
	}

	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	facts, err := NewPostgresFactStoreFromPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	episodes, err := NewPostgresEpisodeStoreFromPool(ctx, pool, emb)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Stores{Facts: facts, Episodes: episodes, Mode: "postgres", pool: pool}, nil
}

func (s *Stores) Close() error {
	if s.pool != nil {
		s.pool.Close()
		return nil
	}
	_ = s.Facts.Close()
	return s.Episodes.Close()
}
