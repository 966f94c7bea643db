package repository

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository defines read operations over view-count history. Writes
// go through VideoRepository.SaveSnapshot so retention is always enforced.
type HistoryRepository interface {
	// GetVideoHistory returns a video's entries ordered by timestamp ascending.
	GetVideoHistory(ctx context.Context, videoID string) ([]*models.HistoryEntry, error)

	// GetDistinctTimestamps returns every distinct snapshot timestamp ascending.
	GetDistinctTimestamps(ctx context.Context) ([]int64, error)

	// ListAll returns every retained history entry in insertion order.
	ListAll(ctx context.Context) ([]*models.HistoryEntry, error)

	// GetRecentHistory returns up to perVideo most recent entries of every
	// video, grouped by video ID with the newest entry first.
	GetRecentHistory(ctx context.Context, perVideo int) (map[string][]*models.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) GetVideoHistory(ctx context.Context, videoID string) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, video_id, timestamp, view_count
		FROM history
		WHERE video_id = $1
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, db.WrapError(err, "get video history")
	}
	defer rows.Close()

	return scanHistory(rows)
}

func (r *historyRepository) GetDistinctTimestamps(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT timestamp FROM history ORDER BY timestamp ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "get distinct timestamps")
	}
	defer rows.Close()

	timestamps := []int64{}
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		timestamps = append(timestamps, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timestamps: %w", err)
	}

	return timestamps, nil
}

func (r *historyRepository) ListAll(ctx context.Context) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, video_id, timestamp, view_count
		FROM history
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "list history")
	}
	defer rows.Close()

	return scanHistory(rows)
}

func (r *historyRepository) GetRecentHistory(ctx context.Context, perVideo int) (map[string][]*models.HistoryEntry, error) {
	query := `
		SELECT id, video_id, timestamp, view_count
		FROM (
			SELECT id, video_id, timestamp, view_count,
			       ROW_NUMBER() OVER (PARTITION BY video_id ORDER BY timestamp DESC, id DESC) AS rn
			FROM history
		) ranked
		WHERE rn <= $1
		ORDER BY video_id, rn
	`

	rows, err := r.pool.Query(ctx, query, perVideo)
	if err != nil {
		return nil, db.WrapError(err, "get recent history")
	}
	defer rows.Close()

	entries, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*models.HistoryEntry)
	for _, entry := range entries {
		grouped[entry.VideoID] = append(grouped[entry.VideoID], entry)
	}

	return grouped, nil
}

func scanHistory(rows pgx.Rows) ([]*models.HistoryEntry, error) {
	entries := []*models.HistoryEntry{}

	for rows.Next() {
		entry := &models.HistoryEntry{}
		if err := rows.Scan(&entry.ID, &entry.VideoID, &entry.Timestamp, &entry.ViewCount); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}
