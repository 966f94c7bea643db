package models

// HistoryEntry is an immutable view-count observation.
type HistoryEntry struct {
	ID        int64  `db:"id"`
	VideoID   string `db:"video_id"`
	Timestamp int64  `db:"timestamp"`
	ViewCount int64  `db:"view_count"`
}
