// Package postgres provides the Postgres-backed recipe store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable         = "recipes"
	defaultAttemptsTable = "image_enrichment_attempts"
)

// StoreConfig controls the Postgres connection pool and the tables used.
//
// The recipe table is created by the bulk import and is expected to carry at
// least:
//
//	id SERIAL PRIMARY KEY, "RecipeName" VARCHAR, "URL" TEXT, "ImageURL" TEXT
//
// The attempts table is only read and written when MaxAttempts > 0:
//
//	CREATE TABLE image_enrichment_attempts (
//		recipe_id INTEGER PRIMARY KEY REFERENCES recipes(id),
//		attempts INTEGER NOT NULL,
//		last_attempt_at TIMESTAMPTZ NOT NULL,
//		last_reason TEXT NOT NULL
//	);
type StoreConfig struct {
	DSN             string
	Table           string
	AttemptsTable   string
	MaxAttempts     int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

type queries struct {
	selectMissing string
	countMissing  string
	updateImage   string
	recordMiss    string
	imageStats    string
}

// RecipeStore reads candidates from and writes images to the recipe table.
type RecipeStore struct {
	pool        pgxPool
	maxAttempts int
	q           queries
}

var _ enrichment.Store = (*RecipeStore)(nil)

// NewRecipeStore connects to Postgres and verifies the connection with a ping.
func NewRecipeStore(ctx context.Context, cfg StoreConfig) (*RecipeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecipeStoreWithPool(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecipeStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecipeStoreWithPool(pool pgxPool, cfg StoreConfig) (*RecipeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	attempts := cfg.AttemptsTable
	if attempts == "" {
		attempts = defaultAttemptsTable
	}
	for _, name := range []string{table, attempts} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be >= 0")
	}
	return &RecipeStore{
		pool:        pool,
		maxAttempts: cfg.MaxAttempts,
		q:           buildQueries(table, attempts, cfg.MaxAttempts > 0),
	}, nil
}

func buildQueries(table, attempts string, tracked bool) queries {
	q := queries{
		updateImage: fmt.Sprintf(`UPDATE %s SET "ImageURL" = $1 WHERE id = $2`, table),
		recordMiss: fmt.Sprintf(`
INSERT INTO %[1]s (recipe_id, attempts, last_attempt_at, last_reason)
VALUES ($1, 1, $2, $3)
ON CONFLICT (recipe_id) DO UPDATE
SET attempts = %[1]s.attempts + 1,
	last_attempt_at = EXCLUDED.last_attempt_at,
	last_reason = EXCLUDED.last_reason`, attempts),
		imageStats: fmt.Sprintf(`
SELECT COUNT(*),
	COUNT("ImageURL"),
	COUNT(*) - COUNT("ImageURL"),
	COUNT(*) FILTER (WHERE "ImageURL" = $1)
FROM %s`, table),
	}
	if !tracked {
		q.selectMissing = fmt.Sprintf(`
SELECT id, COALESCE("RecipeName", ''), COALESCE("URL", '')
FROM %s
WHERE "ImageURL" IS NULL
ORDER BY id
LIMIT $1 OFFSET $2`, table)
		q.countMissing = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE "ImageURL" IS NULL`, table)
		return q
	}
	q.selectMissing = fmt.Sprintf(`
SELECT r.id, COALESCE(r."RecipeName", ''), COALESCE(r."URL", '')
FROM %s r
LEFT JOIN %s a ON a.recipe_id = r.id
WHERE r."ImageURL" IS NULL AND COALESCE(a.attempts, 0) < $3
ORDER BY r.id
LIMIT $1 OFFSET $2`, table, attempts)
	q.countMissing = fmt.Sprintf(`
SELECT COUNT(*)
FROM %s r
LEFT JOIN %s a ON a.recipe_id = r.id
WHERE r."ImageURL" IS NULL AND COALESCE(a.attempts, 0) < $1`, table, attempts)
	return q
}

// Ping verifies the database is reachable.
func (s *RecipeStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecipeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SelectMissingImage returns up to limit recipes without an image, ordered by id.
func (s *RecipeStore) SelectMissingImage(ctx context.Context, limit, offset int) ([]enrichment.Candidate, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("select limit=%d offset=%d: %w", limit, offset, enrichment.ErrInvalidBatch)
	}
	args := []any{limit, offset}
	if s.maxAttempts > 0 {
		args = append(args, s.maxAttempts)
	}
	rows, err := s.pool.Query(ctx, s.q.selectMissing, args...)
	if err != nil {
		return nil, fmt.Errorf("select missing images: %w", err)
	}
	defer rows.Close()

	candidates := make([]enrichment.Candidate, 0, limit)
	for rows.Next() {
		var c enrichment.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.SourceURL); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// CountMissingImage returns the number of recipes still eligible for enrichment.
func (s *RecipeStore) CountMissingImage(ctx context.Context) (int64, error) {
	var args []any
	if s.maxAttempts > 0 {
		args = append(args, s.maxAttempts)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, s.q.countMissing, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count missing images: %w", err)
	}
	return n, nil
}

// UpdateImage sets the image column of one recipe. Repeating the call with the
// same value leaves the row unchanged.
func (s *RecipeStore) UpdateImage(ctx context.Context, id int64, imageURL string) error {
	tag, err := s.pool.Exec(ctx, s.q.updateImage, imageURL, id)
	if err != nil {
		return fmt.Errorf("update image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update image for recipe %d: %w", id, enrichment.ErrRecordNotFound)
	}
	return nil
}

// RecordMiss increments the attempt counter of one recipe. It is a no-op when
// attempt tracking is disabled.
func (s *RecipeStore) RecordMiss(ctx context.Context, id int64, reason enrichment.MissReason, at time.Time) error {
	if s.maxAttempts <= 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, s.q.recordMiss, id, at, string(reason)); err != nil {
		return fmt.Errorf("record miss: %w", err)
	}
	return nil
}

// ImageStats aggregates the image column over the whole table.
func (s *RecipeStore) ImageStats(ctx context.Context, placeholder string) (enrichment.ImageStats, error) {
	var st enrichment.ImageStats
	err := s.pool.QueryRow(ctx, s.q.imageStats, placeholder).
		Scan(&st.Total, &st.WithImage, &st.WithoutImage, &st.Placeholders)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return enrichment.ImageStats{}, nil
		}
		return enrichment.ImageStats{}, fmt.Errorf("aggregate image stats: %w", err)
	}
	return st, nil
}
