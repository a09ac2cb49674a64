package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mnemo/internal/embedder"
)

// PostgresEpisodeStore persists episodic summaries with a pgvector
// column and delegates nearest-neighbor search to the ivfflat index.
type PostgresEpisodeStore struct {
	pool     *pgxpool.Pool
	embedder embedder.Embedder
	ownsPool bool
}

func NewPostgresEpisodeStore(ctx context.Context, databaseURL string, emb embedder.Embedder) (*PostgresEpisodeStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := newPostgresEpisodeStore(ctx, pool, emb)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.ownsPool = true
	return store, nil
}

// NewPostgresEpisodeStoreFromPool reuses an existing pool shared with
// the fact store.
func NewPostgresEpisodeStoreFromPool(ctx context.Context, pool *pgxpool.Pool, emb embedder.Embedder) (*PostgresEpisodeStore, error) {
	return newPostgresEpisodeStore(ctx, pool, emb)
}

func newPostgresEpisodeStore(ctx context.Context, pool *pgxpool.Pool, emb embedder.Embedder) (*PostgresEpisodeStore, error) {
	if err := initEpisodeSchema(ctx, pool, emb.Dimensions()); err != nil {
		return nil, err
	}
	return &PostgresEpisodeStore{pool: pool, embedder: emb}, nil
}

func initEpisodeSchema(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS episodic_memory (
			id          BIGSERIAL PRIMARY KEY,
			user_id     TEXT NOT NULL,
			turn_range  TEXT NOT NULL,
			summary     TEXT NOT NULL,
			embedding   vector(%d),
			turn_start  INT NOT NULL,
			turn_end    INT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_episodic_embedding
			ON episodic_memory
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100);`,
		`CREATE INDEX IF NOT EXISTS idx_episodic_user
			ON episodic_memory (user_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init episode schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresEpisodeStore) Store(ctx context.Context, userID, summary string, turnStart, turnEnd int) (bool, error) {
	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return false, fmt.Errorf("embed summary: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO episodic_memory (user_id, turn_range, summary, embedding, turn_start, turn_end)
		 VALUES ($1, $2, $3, $4::vector, $5, $6)`,
		userID, TurnRangeLabel(turnStart, turnEnd), summary, vectorLiteral(vec), turnStart, turnEnd,
	)
	if err != nil {
		return false, fmt.Errorf("insert episode: %w", err)
	}
	return true, nil
}

func (s *PostgresEpisodeStore) Retrieve(ctx context.Context, userID, query string, topK int, maxDistance float64) ([]Episode, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	literal := vectorLiteral(vec)

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, turn_range, summary, turn_start, turn_end, created_at,
		        embedding <=> $1::vector AS distance
		   FROM episodic_memory
		  WHERE user_id = $2
		    AND embedding <=> $1::vector < $3
		  ORDER BY distance ASC
		  LIMIT $4`,
		literal, userID, maxDistance, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.UserID, &e.TurnRange, &e.Summary, &e.TurnStart, &e.TurnEnd, &e.CreatedAt, &e.Distance); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episode rows: %w", err)
	}
	return out, nil
}

func (s *PostgresEpisodeStore) Recent(ctx context.Context, userID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, turn_range, summary, turn_start, turn_end, created_at
		   FROM episodic_memory
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.UserID, &e.TurnRange, &e.Summary, &e.TurnStart, &e.TurnEnd, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episode rows: %w", err)
	}
	return out, nil
}

func (s *PostgresEpisodeStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
