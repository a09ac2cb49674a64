package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mnemo/internal/canonical"
)

// PostgresFactStore keeps the versioned fact rows in PostgreSQL. The
// partial unique index enforces at-most-one-active per (user, category,
// key); the upsert runs read-compare-write in one transaction so two
// concurrent writers cannot both observe "no active row".
type PostgresFactStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFactStore(ctx context.Context, databaseURL string) (*PostgresFactStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initFactSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresFactStore{pool: pool}, nil
}

// NewPostgresFactStoreFromPool reuses an existing pool, so the fact and
// episode stores can share one set of connections.
func NewPostgresFactStoreFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresFactStore, error) {
	if err := initFactSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresFactStore{pool: pool}, nil
}

func initFactSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS structured_facts (
			id          BIGSERIAL PRIMARY KEY,
			user_id     TEXT NOT NULL,
			category    TEXT NOT NULL,
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			importance  DOUBLE PRECISION NOT NULL DEFAULT 0.8,
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			valid_to    TIMESTAMPTZ NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_one_active
			ON structured_facts (user_id, category, key)
			WHERE is_active;`,
		`CREATE INDEX IF NOT EXISTS idx_facts_user_active
			ON structured_facts (user_id, is_active)
			WHERE is_active;`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init fact schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresFactStore) Upsert(ctx context.Context, userID, category, key, value string, confidence, importance float64) (bool, error) {
	key = canonical.Normalize(key)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		currentID         int64
		currentConfidence float64
	)
	err = tx.QueryRow(ctx,
		`SELECT id, confidence FROM structured_facts
		  WHERE user_id=$1 AND category=$2 AND key=$3 AND is_active
		  FOR UPDATE`,
		userID, category, key,
	).Scan(&currentID, &currentConfidence)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First fact for this key.
	case err != nil:
		return false, fmt.Errorf("read active fact: %w", err)
	case confidence < currentConfidence:
		// Monotonic-confidence guard: a lower-quality extraction never
		// replaces a better one. Not an error.
		return false, nil
	default:
		if _, err := tx.Exec(ctx,
			`UPDATE structured_facts
			    SET is_active=FALSE, valid_to=now(), updated_at=now()
			  WHERE id=$1`,
			currentID,
		); err != nil {
			return false, fmt.Errorf("close superseded fact: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO structured_facts (user_id, category, key, value, confidence, importance, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
		userID, category, key, value, confidence, importance,
	); err != nil {
		return false, fmt.Errorf("insert fact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit fact upsert: %w", err)
	}
	return true, nil
}

func (s *PostgresFactStore) GetByKeys(ctx context.Context, userID string, keys []string) ([]Fact, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	normalized := make([]string, len(keys))
	for i, k := range keys {
		normalized[i] = canonical.Normalize(k)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, category, key, value, confidence, importance, is_active, created_at, updated_at, valid_to
		   FROM structured_facts
		  WHERE user_id=$1 AND key = ANY($2) AND is_active
		  ORDER BY importance DESC, updated_at DESC`,
		userID, normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts by keys: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *PostgresFactStore) GetAll(ctx context.Context, userID string, minImportance float64) ([]Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, category, key, value, confidence, importance, is_active, created_at, updated_at, valid_to
		   FROM structured_facts
		  WHERE user_id=$1 AND is_active AND importance >= $2
		  ORDER BY importance DESC, updated_at DESC`,
		userID, minImportance,
	)
	if err != nil {
		return nil, fmt.Errorf("query all facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *PostgresFactStore) Delete(ctx context.Context, userID, category, key string) (bool, error) {
	key = canonical.Normalize(key)
	tag, err := s.pool.Exec(ctx,
		`UPDATE structured_facts
		    SET is_active=FALSE, valid_to=now(), updated_at=now()
		  WHERE user_id=$1 AND category=$2 AND key=$3 AND is_active`,
		userID, category, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete fact: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanFacts(rows pgx.Rows) ([]Fact, error) {
	var out []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(
			&f.UserID,
			&f.Category,
			&f.Key,
			&f.Value,
			&f.Confidence,
			&f.Importance,
			&f.IsActive,
			&f.CreatedAt,
			&f.UpdatedAt,
			&f.ValidTo,
		); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresFactStore) Close() error {
	s.pool.Close()
	return nil
}
