package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockRepository persists lease locks.
type LockRepository interface {
	// Acquire takes the lock for owner until now+ttl. It returns (nil, nil)
	// when another owner holds an unexpired lease on key or wins a
	// concurrent acquire.
	Acquire(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (*models.Lock, error)

	// Release deletes the lock only if it is still held by lock.Owner.
	Release(ctx context.Context, lock *models.Lock) error

	// Get returns the current lock row for key or db.ErrNotFound.
	Get(ctx context.Context, key string) (*models.Lock, error)
}

type lockRepository struct {
	pool *pgxpool.Pool
}

// NewLockRepository creates a new LockRepository.
func NewLockRepository(pool *pgxpool.Pool) LockRepository {
	return &lockRepository{pool: pool}
}

func (r *lockRepository) Acquire(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (*models.Lock, error) {
	nowUnix := now.Unix()
	expiresAt := now.Add(ttl).Unix()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, db.WrapError(err, "begin acquire lock")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Sweep every expired lease, not only this key.
	if _, err := tx.Exec(ctx, `DELETE FROM locks WHERE expires_at < $1`, nowUnix); err != nil {
		err = db.WrapError(err, "sweep expired locks")
		if db.IsConflict(err) {
			return nil, nil
		}
		return nil, err
	}

	// The conflict update only fires for an expired row, so a live lease
	// yields no returned row.
	query := `
		INSERT INTO locks (key, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET owner = EXCLUDED.owner,
		    expires_at = EXCLUDED.expires_at
		WHERE locks.expires_at < $4
		RETURNING key, owner, expires_at
	`

	lock := &models.Lock{}
	err = tx.QueryRow(ctx, query, key, owner, expiresAt, nowUnix).Scan(&lock.Key, &lock.Owner, &lock.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Commit(ctx); err != nil {
			return nil, db.WrapError(err, "commit acquire lock")
		}
		return nil, nil
	}
	if err != nil {
		err = db.WrapError(err, "acquire lock")
		// A concurrent acquirer won the race on the sweep or the upsert.
		if db.IsConflict(err) || db.IsDuplicateKey(err) {
			return nil, nil
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, db.WrapError(err, "commit acquire lock")
	}

	return lock, nil
}

func (r *lockRepository) Release(ctx context.Context, lock *models.Lock) error {
	if lock == nil {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM locks WHERE key = $1 AND owner = $2`, lock.Key, lock.Owner); err != nil {
		return db.WrapError(err, "release lock")
	}

	return nil
}

func (r *lockRepository) Get(ctx context.Context, key string) (*models.Lock, error) {
	lock := &models.Lock{}
	err := r.pool.QueryRow(ctx, `SELECT key, owner, expires_at FROM locks WHERE key = $1`, key).
		Scan(&lock.Key, &lock.Owner, &lock.ExpiresAt)
	if err != nil {
		return nil, db.WrapError(err, "get lock")
	}

	return lock, nil
}
