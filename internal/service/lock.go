package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/repository"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpdateLock is a lease lock held in the shared store that serialises update
// cycles across processes.
type UpdateLock struct {
	repo  repository.LockRepository
	owner string
	now   func() time.Time
}

// NewUpdateLock creates an UpdateLock acting as owner. A nil now uses time.Now.
func NewUpdateLock(repo repository.LockRepository, owner string, now func() time.Time) *UpdateLock {
	if now == nil {
		now = time.Now
	}
	return &UpdateLock{repo: repo, owner: owner, now: now}
}

// NewOwnerID returns a process identity of the form "<hostname>-<uuid>".
// Two processes on the same host never share it.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String())
}

// Owner returns the identity written into acquired locks.
func (l *UpdateLock) Owner() string {
	return l.owner
}

// Acquire tries to take key for ttl. A nil lock with a nil error means
// another owner holds a live lease.
func (l *UpdateLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*models.Lock, error) {
	lock, err := l.repo.Acquire(ctx, key, l.owner, l.now(), ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	if lock == nil {
		logger.Get().Info("Update lock held by another owner, skipping",
			zap.String("lockKey", key),
			zap.String("owner", l.owner),
		)
		return nil, nil
	}

	logger.Get().Debug("Update lock acquired",
		zap.String("lockKey", key),
		zap.String("owner", l.owner),
		zap.Int64("expiresAt", lock.ExpiresAt),
	)
	return lock, nil
}

// Release gives the lease back. It never removes a lock reclaimed by
// another owner.
func (l *UpdateLock) Release(ctx context.Context, lock *models.Lock) error {
	if lock == nil {
		return nil
	}
	if err := l.repo.Release(ctx, lock); err != nil {
		return fmt.Errorf("release lock %s: %w", lock.Key, err)
	}
	return nil
}
