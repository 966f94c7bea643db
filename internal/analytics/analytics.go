// Package analytics derives rankings and growth figures from stored videos
// and their view-count history. All functions are pure.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
)

// ListSize is the length of the trending, top performer, mover and faller lists.
const ListSize = 10

// WatchURL returns the public watch page for a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Round2 rounds x to two decimals, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// RankedVideo is a video with its position by current views.
type RankedVideo struct {
	Rank        int    `json:"rank"`
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Views       int64  `json:"views"`
	PublishedAt string `json:"publishedAt"`
	PlaylistID  string `json:"playlistId"`
	URL         string `json:"url"`
}

// RankTop orders videos by current views descending and assigns ranks from
// 1. Equal view counts keep their input order.
func RankTop(videos []*models.Video) []RankedVideo {
	sorted := sortByViews(videos)

	ranked := make([]RankedVideo, 0, len(sorted))
	for i, v := range sorted {
		ranked = append(ranked, RankedVideo{
			Rank:        i + 1,
			VideoID:     v.VideoID,
			Title:       v.Title,
			Views:       v.CurrentViews,
			PublishedAt: v.PublishedAt,
			PlaylistID:  v.PlaylistID,
			URL:         WatchURL(v.VideoID),
		})
	}
	return ranked
}

func sortByViews(videos []*models.Video) []*models.Video {
	sorted := make([]*models.Video, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CurrentViews > sorted[j].CurrentViews
	})
	return sorted
}

// Growth is the short-term view growth between a video's two latest entries.
type Growth struct {
	ViewsPerHour         float64
	ViewsChange          int64
	HoursSinceLastUpdate float64
}

// GrowthRate compares the two most recent entries by timestamp. It is zero
// with fewer than two entries or when they share a timestamp. The input is
// not modified.
func GrowthRate(history []*models.HistoryEntry) Growth {
	if len(history) < 2 {
		return Growth{}
	}

	sorted := make([]*models.HistoryEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	latest := sorted[len(sorted)-1]
	previous := sorted[len(sorted)-2]

	hours := float64(latest.Timestamp-previous.Timestamp) / 3600
	if hours <= 0 {
		return Growth{}
	}

	change := latest.ViewCount - previous.ViewCount
	return Growth{
		ViewsPerHour:         float64(change) / hours,
		ViewsChange:          change,
		HoursSinceLastUpdate: hours,
	}
}

// LifetimeGrowthRate is views per hour since publication. It is zero when
// publishedAt is empty or not RFC3339, or lies in the future.
func LifetimeGrowthRate(views int64, publishedAt string, now time.Time) float64 {
	if publishedAt == "" {
		return 0
	}

	published, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return 0
	}

	ageHours := now.Sub(published).Hours()
	if ageHours <= 0 {
		return 0
	}
	return float64(views) / ageHours
}

// VideoAnalytics holds the displayed metrics of one video. Rates are rounded.
type VideoAnalytics struct {
	VideoID              string  `json:"videoId"`
	Title                string  `json:"title"`
	CurrentViews         int64   `json:"currentViews"`
	CurrentRank          int     `json:"currentRank"`
	PublishedAt          string  `json:"publishedAt"`
	ViewsPerHour         float64 `json:"viewsPerHour"`
	ViewsChange          int64   `json:"viewsChange"`
	HoursSinceLastUpdate float64 `json:"hoursSinceLastUpdate"`
	LifetimeViewsPerHour float64 `json:"lifetimeViewsPerHour"`
}

// Statistics summarises the whole tracked set.
type Statistics struct {
	TotalVideos         int     `json:"totalVideos"`
	TotalViews          int64   `json:"totalViews"`
	AverageViews        float64 `json:"averageViews"`
	AverageViewsPerHour float64 `json:"averageViewsPerHour"`
	LastUpdate          int64   `json:"lastUpdate"`
}

// Report is the analytics view over every tracked video.
type Report struct {
	Trending      []VideoAnalytics `json:"trending"`
	TopPerformers []VideoAnalytics `json:"topPerformers"`
	Statistics    Statistics       `json:"statistics"`
}

// Analyze computes per-video metrics and the trending and top performer
// lists. history maps video IDs to their recent entries in any order.
func Analyze(videos []*models.Video, history map[string][]*models.HistoryEntry, lastUpdate int64, now time.Time) Report {
	sorted := sortByViews(videos)
	rows := make([]VideoAnalytics, 0, len(sorted))

	var totalViews int64
	var sumViewsPerHour float64

	for i, v := range sorted {
		growth := GrowthRate(history[v.VideoID])
		row := VideoAnalytics{
			VideoID:              v.VideoID,
			Title:                v.Title,
			CurrentViews:         v.CurrentViews,
			CurrentRank:          i + 1,
			PublishedAt:          v.PublishedAt,
			ViewsPerHour:         Round2(growth.ViewsPerHour),
			ViewsChange:          growth.ViewsChange,
			HoursSinceLastUpdate: Round2(growth.HoursSinceLastUpdate),
			LifetimeViewsPerHour: Round2(LifetimeGrowthRate(v.CurrentViews, v.PublishedAt, now)),
		}
		totalViews += v.CurrentViews
		sumViewsPerHour += row.ViewsPerHour
		rows = append(rows, row)
	}

	stats := Statistics{
		TotalVideos: len(rows),
		TotalViews:  totalViews,
		LastUpdate:  lastUpdate,
	}
	if len(rows) > 0 {
		stats.AverageViews = Round2(float64(totalViews) / float64(len(rows)))
		stats.AverageViewsPerHour = Round2(sumViewsPerHour / float64(len(rows)))
	}

	return Report{
		Trending:      topBy(rows, func(r VideoAnalytics) float64 { return r.ViewsPerHour }),
		TopPerformers: topBy(rows, func(r VideoAnalytics) float64 { return r.LifetimeViewsPerHour }),
		Statistics:    stats,
	}
}

// topBy returns the first ListSize rows by key descending, ties in view rank order.
func topBy(rows []VideoAnalytics, key func(VideoAnalytics) float64) []VideoAnalytics {
	sorted := make([]VideoAnalytics, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return key(sorted[i]) > key(sorted[j])
	})
	if len(sorted) > ListSize {
		sorted = sorted[:ListSize]
	}
	return sorted
}
