package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/analytics"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/validation"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// topLimit caps /api/top and /api/data.
	topLimit = 100
	// growthWindow is the number of recent entries per video the growth
	// rate needs.
	growthWindow = 2
)

// VideoStore is the read side of the video repository used by the API.
type VideoStore interface {
	GetTopVideos(ctx context.Context, limit int, playlistIDs []string) ([]*models.Video, error)
	ListVideos(ctx context.Context) ([]*models.Video, error)
	GetDistinctPlaylistIDs(ctx context.Context) ([]string, error)
	GetStats(ctx context.Context) (*models.Stats, error)
}

// HistoryStore is the history repository as used by the API.
type HistoryStore interface {
	GetVideoHistory(ctx context.Context, videoID string) ([]*models.HistoryEntry, error)
	ListAll(ctx context.Context) ([]*models.HistoryEntry, error)
	GetRecentHistory(ctx context.Context, perVideo int) (map[string][]*models.HistoryEntry, error)
}

// Updater runs cycles and manual additions.
type Updater interface {
	RunCycle(ctx context.Context) (*service.CycleResult, error)
	AddVideo(ctx context.Context, videoID, playlistID string) (*models.Snapshot, error)
	Metadata(ctx context.Context) (*service.Metadata, error)
	State() service.CycleState
}

// NextUpdater computes the next scheduled cycle time.
type NextUpdater interface {
	NextUpdate(lastUpdate int64) int64
}

// APIHandler serves the tracker's JSON API.
type APIHandler struct {
	videos   VideoStore
	history  HistoryStore
	updater  Updater
	schedule NextUpdater
	// baseCtx outlives requests; background cycles started over HTTP use it.
	baseCtx context.Context
	now     func() time.Time
}

// NewAPIHandler creates an APIHandler. Background cycles triggered through
// POST /api/update run under baseCtx. A nil now uses time.Now.
func NewAPIHandler(
	baseCtx context.Context,
	videos VideoStore,
	history HistoryStore,
	updater Updater,
	schedule NextUpdater,
	now func() time.Time,
) *APIHandler {
	if now == nil {
		now = time.Now
	}
	return &APIHandler{
		videos:   videos,
		history:  history,
		updater:  updater,
		schedule: schedule,
		baseCtx:  baseCtx,
		now:      now,
	}
}

// HistoryPoint is one entry of a video's view-count history.
type HistoryPoint struct {
	Timestamp int64 `json:"timestamp"`
	ViewCount int64 `json:"viewCount"`
}

func toHistoryPoints(entries []*models.HistoryEntry) []HistoryPoint {
	points := make([]HistoryPoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, HistoryPoint{Timestamp: e.Timestamp, ViewCount: e.ViewCount})
	}
	return points
}

func (h *APIHandler) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// Top handles GET /api/top[?playlist=ID|playlists=ID,ID].
func (h *APIHandler) Top(c *gin.Context) {
	playlistIDs := validation.SplitPlaylistIDs(append(c.QueryArray("playlist"), c.QueryArray("playlists")...))
	for _, id := range playlistIDs {
		if !validation.IsValidPlaylistID(id) {
			h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid playlist ID %q", id))
			return
		}
	}

	ctx := c.Request.Context()

	meta, err := h.updater.Metadata(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	videos, err := h.videos.GetTopVideos(ctx, topLimit, playlistIDs)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	ranked := analytics.RankTop(videos)
	c.JSON(http.StatusOK, gin.H{
		"videos":     ranked,
		"lastUpdate": meta.LastUpdate,
		"nextUpdate": h.schedule.NextUpdate(meta.LastUpdate),
		"total":      len(ranked),
	})
}

// Data handles GET /api/data: the top videos with their full history, keyed
// by video ID, plus a _metadata entry.
func (h *APIHandler) Data(c *gin.Context) {
	ctx := c.Request.Context()

	videos, err := h.videos.GetTopVideos(ctx, topLimit, nil)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	data := make(gin.H, len(videos)+1)
	for _, v := range videos {
		entries, err := h.history.GetVideoHistory(ctx, v.VideoID)
		if err != nil {
			h.fail(c, http.StatusInternalServerError, err)
			return
		}
		data[v.VideoID] = gin.H{
			"title":        v.Title,
			"currentViews": v.CurrentViews,
			"history":      toHistoryPoints(entries),
		}
	}

	meta, err := h.updater.Metadata(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	data["_metadata"] = meta

	c.JSON(http.StatusOK, data)
}

// Status handles GET /api/status.
func (h *APIHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	meta, err := h.updater.Metadata(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	stats, err := h.videos.GetStats(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "online",
		"lastUpdate":  meta.LastUpdate,
		"nextUpdate":  h.schedule.NextUpdate(meta.LastUpdate),
		"totalVideos": meta.TotalVideos,
		"dbStats":     stats,
		"cycleState":  h.updater.State(),
	})
}

// History handles GET /api/history/:videoId. An ID that cannot exist has an
// empty history.
func (h *APIHandler) History(c *gin.Context) {
	videoID, err := validation.ValidateVideoID(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"videoId": c.Param("videoId"),
			"history": []HistoryPoint{},
		})
		return
	}

	entries, err := h.history.GetVideoHistory(c.Request.Context(), videoID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videoId": videoID,
		"history": toHistoryPoints(entries),
	})
}

// RankingHistory handles GET /api/ranking-history.
func (h *APIHandler) RankingHistory(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := h.history.ListAll(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	videos, err := h.videos.ListVideos(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, analytics.RankingEvolution(entries, videos))
}

// Analytics handles GET /api/analytics.
func (h *APIHandler) Analytics(c *gin.Context) {
	ctx := c.Request.Context()

	videos, err := h.videos.ListVideos(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	recent, err := h.history.GetRecentHistory(ctx, growthWindow)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	meta, err := h.updater.Metadata(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, analytics.Analyze(videos, recent, meta.LastUpdate, h.now()))
}

// TriggerUpdate handles POST /api/update. The cycle runs in the background
// and the response never waits for it.
func (h *APIHandler) TriggerUpdate(c *gin.Context) {
	go func() {
		result, err := h.updater.RunCycle(h.baseCtx)
		if err != nil {
			logger.Get().Error("Manual update failed", zap.Error(err))
			return
		}
		logger.Get().Info("Manual update finished", zap.String("state", string(result.State)))
	}()

	c.JSON(http.StatusOK, gin.H{"status": "Update started in background"})
}

// AddVideo handles POST /api/add-video/:videoId[?playlistId=ID]. An ID that
// cannot exist in the catalog is reported as not found without a lookup.
func (h *APIHandler) AddVideo(c *gin.Context) {
	videoID, err := validation.ValidateVideoID(c.Param("videoId"))
	if err != nil {
		h.fail(c, http.StatusNotFound, fmt.Errorf("video %s not found", c.Param("videoId")))
		return
	}

	playlistID := c.Query("playlistId")
	if playlistID != "" && !validation.IsValidPlaylistID(playlistID) {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid playlist ID %q", playlistID))
		return
	}

	snapshot, err := h.updater.AddVideo(c.Request.Context(), videoID, playlistID)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			h.fail(c, http.StatusNotFound, fmt.Errorf("video %s not found", videoID))
			return
		}
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "Video added successfully",
		"videoId":    snapshot.VideoID,
		"title":      snapshot.Title,
		"views":      snapshot.ViewCount,
		"playlistId": snapshot.PlaylistID,
	})
}

// Playlists handles GET /api/playlists.
func (h *APIHandler) Playlists(c *gin.Context) {
	ids, err := h.videos.GetDistinctPlaylistIDs(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"playlists": ids})
}
