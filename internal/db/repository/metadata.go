package repository

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MetadataRepository stores process-wide key/value state that must survive
// restarts and be shared between instances.
type MetadataRepository interface {
	// Set upserts a metadata value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value for key or db.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// GetAll returns every stored key/value pair.
	GetAll(ctx context.Context) (map[string]string, error)
}

type metadataRepository struct {
	pool *pgxpool.Pool
}

// NewMetadataRepository creates a new MetadataRepository.
func NewMetadataRepository(pool *pgxpool.Pool) MetadataRepository {
	return &metadataRepository{pool: pool}
}

func (r *metadataRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO metadata (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return db.WrapError(err, "set metadata")
	}

	return nil
}

func (r *metadataRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	if err := r.pool.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value); err != nil {
		return "", db.WrapError(err, "get metadata")
	}

	return value, nil
}

func (r *metadataRepository) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, db.WrapError(err, "get all metadata")
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}

	return values, nil
}
