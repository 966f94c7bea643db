package repository

import (
	"context"
	"fmt"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VideoRepository defines operations for managing tracked videos and their
// snapshots.
type VideoRepository interface {
	// SaveSnapshot upserts the video, appends a history entry and prunes the
	// video's history to the retention window, all in one transaction.
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error

	// GetVideoByID retrieves a single video by ID.
	GetVideoByID(ctx context.Context, videoID string) (*models.Video, error)

	// GetTopVideos returns up to limit videos ordered by current views
	// descending, optionally restricted to the given playlists.
	GetTopVideos(ctx context.Context, limit int, playlistIDs []string) ([]*models.Video, error)

	// ListVideos returns every tracked video ordered by current views descending.
	ListVideos(ctx context.Context) ([]*models.Video, error)

	// GetDistinctPlaylistIDs returns the playlist IDs of tracked videos, sorted.
	GetDistinctPlaylistIDs(ctx context.Context) ([]string, error)

	// GetStats counts videos and history entries.
	GetStats(ctx context.Context) (*models.Stats, error)
}

type videoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &videoRepository{pool: pool}
}

const videoColumns = `video_id, title, current_views, last_updated, COALESCE(published_at, ''), playlist_id`

func (r *videoRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return db.WrapError(err, "begin save snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// published_at keeps the first non-empty value ever written.
	upsert := `
		INSERT INTO videos (video_id, title, current_views, last_updated, published_at, playlist_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (video_id) DO UPDATE
		SET title = EXCLUDED.title,
		    current_views = EXCLUDED.current_views,
		    last_updated = EXCLUDED.last_updated,
		    published_at = COALESCE(NULLIF(videos.published_at, ''), EXCLUDED.published_at),
		    playlist_id = COALESCE(NULLIF(EXCLUDED.playlist_id, ''), videos.playlist_id)
	`
	if _, err := tx.Exec(ctx, upsert,
		snapshot.VideoID,
		snapshot.Title,
		snapshot.ViewCount,
		snapshot.Timestamp,
		snapshot.PublishedAt,
		snapshot.PlaylistID,
	); err != nil {
		return db.WrapError(err, "upsert video")
	}

	insertHistory := `
		INSERT INTO history (video_id, timestamp, view_count)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, insertHistory, snapshot.VideoID, snapshot.Timestamp, snapshot.ViewCount); err != nil {
		return db.WrapError(err, "insert history")
	}

	prune := `
		DELETE FROM history
		WHERE id IN (
			SELECT id FROM history
			WHERE video_id = $1
			ORDER BY timestamp DESC, id DESC
			OFFSET $2
		)
	`
	if _, err := tx.Exec(ctx, prune, snapshot.VideoID, models.MaxHistoryPerVideo); err != nil {
		return db.WrapError(err, "prune history")
	}

	if err := tx.Commit(ctx); err != nil {
		return db.WrapError(err, "commit save snapshot")
	}

	return nil
}

func (r *videoRepository) GetVideoByID(ctx context.Context, videoID string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE video_id = $1`

	video := &models.Video{}
	err := r.pool.QueryRow(ctx, query, videoID).Scan(
		&video.VideoID,
		&video.Title,
		&video.CurrentViews,
		&video.LastUpdated,
		&video.PublishedAt,
		&video.PlaylistID,
	)

	if err != nil {
		return nil, db.WrapError(err, "get video by id")
	}

	return video, nil
}

func (r *videoRepository) GetTopVideos(ctx context.Context, limit int, playlistIDs []string) ([]*models.Video, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if len(playlistIDs) == 0 {
		query := `
			SELECT ` + videoColumns + `
			FROM videos
			ORDER BY current_views DESC, video_id ASC
			LIMIT $1
		`
		rows, err = r.pool.Query(ctx, query, limit)
	} else {
		query := `
			SELECT ` + videoColumns + `
			FROM videos
			WHERE playlist_id = ANY($2)
			ORDER BY current_views DESC, video_id ASC
			LIMIT $1
		`
		rows, err = r.pool.Query(ctx, query, limit, playlistIDs)
	}
	if err != nil {
		return nil, db.WrapError(err, "get top videos")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) ListVideos(ctx context.Context) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		ORDER BY current_views DESC, video_id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "list videos")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) GetDistinctPlaylistIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT playlist_id
		FROM videos
		WHERE playlist_id <> ''
		ORDER BY playlist_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.WrapError(err, "get distinct playlist ids")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan playlist id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlist ids: %w", err)
	}

	return ids, nil
}

func (r *videoRepository) GetStats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM videos),
			(SELECT COUNT(*) FROM history)
	`

	stats := &models.Stats{}
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalVideos, &stats.TotalHistoryEntries); err != nil {
		return nil, db.WrapError(err, "get stats")
	}

	return stats, nil
}

// Helper function to scan multiple videos from query results
func scanVideos(rows pgx.Rows) ([]*models.Video, error) {
	videos := []*models.Video{}

	for rows.Next() {
		video := &models.Video{}
		err := rows.Scan(
			&video.VideoID,
			&video.Title,
			&video.CurrentViews,
			&video.LastUpdated,
			&video.PublishedAt,
			&video.PlaylistID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}
