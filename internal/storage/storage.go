package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Keys for the three preference records. The names are part of the
// stored state format; renaming one orphans existing records.
const (
	KeyFeedback = "fashionAdvisorFeedback"
	KeyLiked    = "fashionAdvisorLikedSuggestion"
	KeySaved    = "fashionAdvisorSavedSuggestion"
)

// KeyValue hides the backing implementation for small string records.
// Load reports whether the key was present.
type KeyValue interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close()
}

// NewKeyValue selects a backing store: Postgres when a database URL is
// provided, a local SQLite file when a state path is set, otherwise an
// in-memory map that lives for the process only.
func NewKeyValue(ctx context.Context, databaseURL, statePath string) (KeyValue, error) {
	if databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		if err := ensureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		return &PostgresKV{pool: pool}, nil
	}

	if statePath != "" {
		return NewSQLiteKV(statePath)
	}

	return NewMemoryKV(), nil
}
