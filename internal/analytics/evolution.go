package analytics

import (
	"sort"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
)

// RankPoint is a video's position at one snapshot timestamp.
type RankPoint struct {
	Timestamp int64 `json:"timestamp"`
	Rank      int   `json:"rank"`
	Views     int64 `json:"views"`
}

// VideoEvolution is a video's rank series and its latest rank change.
// RankChange is positive when the video climbed.
type VideoEvolution struct {
	VideoID      string      `json:"videoId"`
	Title        string      `json:"title"`
	PublishedAt  string      `json:"publishedAt"`
	History      []RankPoint `json:"history"`
	RankChange   int         `json:"rankChange"`
	CurrentRank  int         `json:"currentRank"`
	PreviousRank int         `json:"previousRank"`
}

// Evolution is the rank history of every tracked video.
type Evolution struct {
	Timestamps     []int64                    `json:"timestamps"`
	Evolution      map[string]*VideoEvolution `json:"evolution"`
	TopMovers      []*VideoEvolution          `json:"topMovers"`
	BiggestFallers []*VideoEvolution          `json:"biggestFallers"`
}

// RankingEvolution ranks every observed video at each distinct timestamp by
// views descending, ties by video ID. When a video has several entries at
// one timestamp the one with the highest ID (the last inserted) counts.
// Only videos present in videos receive a series.
func RankingEvolution(entries []*models.HistoryEntry, videos []*models.Video) Evolution {
	known := make(map[string]*models.Video, len(videos))
	for _, v := range videos {
		known[v.VideoID] = v
	}

	byTimestamp := make(map[int64]map[string]*models.HistoryEntry)
	for _, entry := range entries {
		observed, ok := byTimestamp[entry.Timestamp]
		if !ok {
			observed = make(map[string]*models.HistoryEntry)
			byTimestamp[entry.Timestamp] = observed
		}
		if existing, ok := observed[entry.VideoID]; !ok || entry.ID >= existing.ID {
			observed[entry.VideoID] = entry
		}
	}

	timestamps := make([]int64, 0, len(byTimestamp))
	for ts := range byTimestamp {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	evolution := make(map[string]*VideoEvolution)
	for _, ts := range timestamps {
		observed := make([]*models.HistoryEntry, 0, len(byTimestamp[ts]))
		for _, entry := range byTimestamp[ts] {
			observed = append(observed, entry)
		}
		sort.Slice(observed, func(i, j int) bool {
			if observed[i].ViewCount != observed[j].ViewCount {
				return observed[i].ViewCount > observed[j].ViewCount
			}
			return observed[i].VideoID < observed[j].VideoID
		})

		for i, entry := range observed {
			video, ok := known[entry.VideoID]
			if !ok {
				continue
			}
			series, ok := evolution[entry.VideoID]
			if !ok {
				series = &VideoEvolution{
					VideoID:     video.VideoID,
					Title:       video.Title,
					PublishedAt: video.PublishedAt,
					History:     []RankPoint{},
				}
				evolution[entry.VideoID] = series
			}
			series.History = append(series.History, RankPoint{Timestamp: ts, Rank: i + 1, Views: entry.ViewCount})
		}
	}

	list := make([]*VideoEvolution, 0, len(evolution))
	for _, series := range evolution {
		n := len(series.History)
		switch {
		case n >= 2:
			series.CurrentRank = series.History[n-1].Rank
			series.PreviousRank = series.History[n-2].Rank
			series.RankChange = series.PreviousRank - series.CurrentRank
		case n == 1:
			series.CurrentRank = series.History[0].Rank
			series.PreviousRank = series.History[0].Rank
		}
		list = append(list, series)
	}

	return Evolution{
		Timestamps:     timestamps,
		Evolution:      evolution,
		TopMovers:      rankChangeList(list, true),
		BiggestFallers: rankChangeList(list, false),
	}
}

func rankChangeList(list []*VideoEvolution, climbers bool) []*VideoEvolution {
	sorted := make([]*VideoEvolution, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RankChange != b.RankChange {
			if climbers {
				return a.RankChange > b.RankChange
			}
			return a.RankChange < b.RankChange
		}
		if a.CurrentRank != b.CurrentRank {
			return a.CurrentRank < b.CurrentRank
		}
		return a.VideoID < b.VideoID
	})
	if len(sorted) > ListSize {
		sorted = sorted[:ListSize]
	}
	return sorted
}
