package models

// MaxHistoryPerVideo is the number of history entries retained per video.
const MaxHistoryPerVideo = 100

// Video is the current state of a tracked playlist item.
type Video struct {
	VideoID      string `db:"video_id"`
	Title        string `db:"title"`
	CurrentViews int64  `db:"current_views"`
	// LastUpdated is the epoch second of the latest snapshot.
	LastUpdated int64 `db:"last_updated"`
	// PublishedAt is RFC3339 text as returned by the catalog; empty when unknown.
	PublishedAt string `db:"published_at"`
	PlaylistID  string `db:"playlist_id"`
}

// Snapshot is a single observation of a video taken during an update cycle
// or a manual addition.
type Snapshot struct {
	VideoID     string
	Title       string
	ViewCount   int64
	PublishedAt string
	PlaylistID  string
	Timestamp   int64
}

// NewSnapshot creates a Snapshot observed at the given epoch second.
func NewSnapshot(videoID, title string, viewCount int64, publishedAt, playlistID string, timestamp int64) *Snapshot {
	return &Snapshot{
		VideoID:     videoID,
		Title:       title,
		ViewCount:   viewCount,
		PublishedAt: publishedAt,
		PlaylistID:  playlistID,
		Timestamp:   timestamp,
	}
}

// Stats summarises table sizes for status reporting.
type Stats struct {
	TotalVideos         int64 `json:"total_videos"`
	TotalHistoryEntries int64 `json:"total_history_entries"`
}
