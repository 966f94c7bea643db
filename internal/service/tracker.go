// Package service drives update cycles and manual video ingestion.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/config"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/repository"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/metrics"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrVideoNotFound is returned by AddVideo when the catalog does not know the ID.
var ErrVideoNotFound = errors.New("video not found")

// UnknownPlaylist is stored for manual additions when no playlist is known.
const UnknownPlaylist = "unknown"

const releaseTimeout = 10 * time.Second

// CycleState is the phase of the current or most recent update cycle.
type CycleState string

const (
	StateIdle          CycleState = "idle"
	StateAcquiringLock CycleState = "acquiring_lock"
	StateLockDenied    CycleState = "lock_denied"
	StateFetching      CycleState = "fetching"
	StateSaving        CycleState = "saving"
	StateReleasingLock CycleState = "releasing_lock"
	StateCompleted     CycleState = "completed"
	StateFailed        CycleState = "failed"
)

// Catalog is the remote source of playlist membership and statistics.
type Catalog interface {
	FetchPlaylistPage(ctx context.Context, playlistID, pageToken string) (*youtube.PlaylistPage, error)
	FetchStatistics(ctx context.Context, videoIDs []string) (map[string]*youtube.VideoStats, error)
	PageSize() int
}

// CycleNotifier is told about every completed cycle.
type CycleNotifier interface {
	NotifyCycleCompleted(ctx context.Context, summary *CycleSummary) error
}

// PlaylistSummary counts the snapshots saved for one playlist in a cycle.
type PlaylistSummary struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Videos int    `json:"videos"`
}

// CycleSummary describes a completed cycle.
type CycleSummary struct {
	Timestamp   int64             `json:"timestamp"`
	TotalVideos int               `json:"totalVideos"`
	Playlists   []PlaylistSummary `json:"playlists"`
	DurationMs  int64             `json:"durationMs"`
	Owner       string            `json:"owner"`
}

// CycleResult is returned by RunCycle. Summary is nil unless the cycle
// acquired the lock.
type CycleResult struct {
	State   CycleState
	Summary *CycleSummary
}

// Metadata is the parsed process-wide state.
type Metadata struct {
	LastUpdate  int64 `json:"lastUpdate"`
	TotalVideos int64 `json:"totalVideos"`
}

// TrackerConfig holds the cycle settings.
type TrackerConfig struct {
	Playlists []config.Playlist
	LockKey   string
	LockTTL   time.Duration
	PageDelay time.Duration
}

// Tracker runs update cycles: it streams every configured playlist through
// the catalog and persists each snapshot as soon as it is resolved.
type Tracker struct {
	catalog  Catalog
	videos   repository.VideoRepository
	metadata repository.MetadataRepository
	lock     *UpdateLock
	notifier CycleNotifier
	cfg      TrackerConfig
	now      func() time.Time

	mu    sync.Mutex
	state CycleState
	// active counts cycles in this process that currently hold the lock.
	active int
}

// NewTracker creates a Tracker. A nil now uses time.Now.
func NewTracker(
	catalog Catalog,
	videos repository.VideoRepository,
	metadata repository.MetadataRepository,
	lock *UpdateLock,
	cfg TrackerConfig,
	now func() time.Time,
) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		catalog:  catalog,
		videos:   videos,
		metadata: metadata,
		lock:     lock,
		cfg:      cfg,
		now:      now,
		state:    StateIdle,
	}
	return t
}

// SetNotifier registers a CycleNotifier. It must be called before cycles run.
func (t *Tracker) SetNotifier(notifier CycleNotifier) {
	t.notifier = notifier
}

// State returns the phase of the running cycle, or the outcome of the last one.
func (t *Tracker) State() CycleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) setState(state CycleState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// setAttemptState records the state of an attempt that does not hold the
// lock. It is dropped while another cycle in this process is running.
func (t *Tracker) setAttemptState(state CycleState) {
	t.mu.Lock()
	if t.active == 0 {
		t.state = state
	}
	t.mu.Unlock()
}

func (t *Tracker) beginCycle() {
	t.mu.Lock()
	t.active++
	t.state = StateFetching
	t.mu.Unlock()
}

func (t *Tracker) endCycle(state CycleState) {
	t.mu.Lock()
	t.active--
	t.state = state
	t.mu.Unlock()
}

// Playlists returns the configured playlists in ingestion order.
func (t *Tracker) Playlists() []config.Playlist {
	return t.cfg.Playlists
}

// RunCycle runs one full update cycle. Lock contention is not an error: the
// result state is StateLockDenied and nothing is written.
func (t *Tracker) RunCycle(ctx context.Context) (*CycleResult, error) {
	log := logger.Get()
	started := t.now()

	t.setAttemptState(StateAcquiringLock)
	lock, err := t.lock.Acquire(ctx, t.cfg.LockKey, t.cfg.LockTTL)
	if err != nil {
		t.setAttemptState(StateFailed)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return &CycleResult{State: StateFailed}, fmt.Errorf("update cycle: %w", err)
	}
	if lock == nil {
		t.setAttemptState(StateLockDenied)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeLockDenied).Inc()
		return &CycleResult{State: StateLockDenied}, nil
	}

	t.beginCycle()

	summary := &CycleSummary{
		Timestamp: started.Unix(),
		Playlists: make([]PlaylistSummary, 0, len(t.cfg.Playlists)),
		Owner:     lock.Owner,
	}

	log.Info("Update cycle started",
		zap.Int64("cycleTs", summary.Timestamp),
		zap.Int("playlists", len(t.cfg.Playlists)),
		zap.String("owner", lock.Owner),
	)

	runErr := t.ingest(ctx, summary)

	t.setState(StateReleasingLock)
	t.releaseLock(ctx, lock)

	elapsed := t.now().Sub(started)
	summary.DurationMs = elapsed.Milliseconds()
	metrics.CycleDuration.Observe(elapsed.Seconds())

	if runErr != nil {
		t.endCycle(StateFailed)
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("Update cycle failed",
			zap.Error(runErr),
			zap.Int64("cycleTs", summary.Timestamp),
			zap.Int("savedVideos", summary.TotalVideos),
		)
		return &CycleResult{State: StateFailed, Summary: summary}, fmt.Errorf("update cycle: %w", runErr)
	}

	t.endCycle(StateCompleted)
	metrics.CyclesTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	metrics.LastSuccessfulCycle.Set(float64(summary.Timestamp))

	log.Info("Update cycle completed",
		zap.Int64("cycleTs", summary.Timestamp),
		zap.Int("totalVideos", summary.TotalVideos),
		zap.Duration("duration", elapsed),
	)

	if t.notifier != nil {
		if err := t.notifier.NotifyCycleCompleted(ctx, summary); err != nil {
			log.Warn("Failed to publish cycle completion", zap.Error(err))
		}
	}

	return &CycleResult{State: StateCompleted, Summary: summary}, nil
}

// ingest streams every playlist and then records the cycle metadata.
func (t *Tracker) ingest(ctx context.Context, summary *CycleSummary) error {
	pacer := &pagePacer{delay: t.cfg.PageDelay}

	for _, playlist := range t.cfg.Playlists {
		saved, err := t.ingestPlaylist(ctx, pacer, playlist, summary.Timestamp)
		summary.TotalVideos += saved
		summary.Playlists = append(summary.Playlists, PlaylistSummary{Name: playlist.Name, ID: playlist.ID, Videos: saved})
		if err != nil {
			return fmt.Errorf("playlist %s: %w", playlist.Name, err)
		}
	}

	t.setState(StateSaving)
	if err := t.metadata.Set(ctx, models.MetadataLastUpdate, strconv.FormatInt(summary.Timestamp, 10)); err != nil {
		return fmt.Errorf("write last update: %w", err)
	}
	if err := t.metadata.Set(ctx, models.MetadataTotalVideos, strconv.Itoa(summary.TotalVideos)); err != nil {
		return fmt.Errorf("write total videos: %w", err)
	}

	return nil
}

func (t *Tracker) ingestPlaylist(ctx context.Context, pacer *pagePacer, playlist config.Playlist, cycleTs int64) (int, error) {
	log := logger.Get()
	saved := 0
	pageToken := ""

	for {
		if err := pacer.wait(ctx); err != nil {
			return saved, fmt.Errorf("wait between pages: %w", err)
		}

		t.setState(StateFetching)
		page, err := t.catalog.FetchPlaylistPage(ctx, playlist.ID, pageToken)
		metrics.ObserveCatalogRequest("playlistItems", err)
		if err != nil {
			return saved, err
		}

		for _, batch := range youtube.BatchIDs(page.VideoIDs, t.catalog.PageSize()) {
			stats, err := t.catalog.FetchStatistics(ctx, batch)
			metrics.ObserveCatalogRequest("videos", err)
			if err != nil {
				return saved, err
			}

			t.setState(StateSaving)
			for _, id := range batch {
				video, ok := stats[id]
				if !ok {
					log.Debug("Playlist item has no statistics, skipping",
						zap.String("videoId", id),
						zap.String("playlistId", playlist.ID),
					)
					continue
				}

				snapshot := models.NewSnapshot(video.ID, video.Title, video.ViewCount, video.PublishedAt, playlist.ID, cycleTs)
				if err := t.videos.SaveSnapshot(ctx, snapshot); err != nil {
					return saved, fmt.Errorf("save snapshot %s: %w", id, err)
				}
				metrics.SnapshotsSaved.Inc()
				saved++
			}
			t.setState(StateFetching)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	log.Info("Playlist ingested",
		zap.String("playlist", playlist.Name),
		zap.String("playlistId", playlist.ID),
		zap.Int("videos", saved),
	)
	return saved, nil
}

// pagePacer holds every catalog page after the first of a cycle back until
// delay has passed since the previous page was fully processed.
type pagePacer struct {
	delay   time.Duration
	started bool
}

func (p *pagePacer) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.started {
		p.started = true
		return nil
	}
	if p.delay <= 0 {
		return nil
	}

	// A fresh limiter drained of its only token blocks Wait for exactly delay.
	gap := rate.NewLimiter(rate.Every(p.delay), 1)
	gap.Allow()
	return gap.Wait(ctx)
}

// releaseLock runs even when ctx is already cancelled so a shutdown does
// not leave the lease to expire by TTL.
func (t *Tracker) releaseLock(ctx context.Context, lock *models.Lock) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := t.lock.Release(releaseCtx, lock); err != nil {
		logger.Get().Error("Failed to release update lock",
			zap.Error(err),
			zap.String("lockKey", lock.Key),
			zap.String("owner", lock.Owner),
		)
	}
}

// AddVideo resolves a single video and stores one snapshot for it outside
// of any cycle. An empty playlistID defaults to a known playlist.
func (t *Tracker) AddVideo(ctx context.Context, videoID, playlistID string) (*models.Snapshot, error) {
	stats, err := t.catalog.FetchStatistics(ctx, []string{videoID})
	metrics.ObserveCatalogRequest("videos", err)
	if err != nil {
		return nil, fmt.Errorf("add video %s: %w", videoID, err)
	}

	video, ok := stats[videoID]
	if !ok {
		return nil, fmt.Errorf("add video %s: %w", videoID, ErrVideoNotFound)
	}

	if playlistID == "" {
		playlistID, err = t.defaultPlaylist(ctx)
		if err != nil {
			return nil, fmt.Errorf("add video %s: %w", videoID, err)
		}
	}

	snapshot := models.NewSnapshot(video.ID, video.Title, video.ViewCount, video.PublishedAt, playlistID, t.now().Unix())
	if err := t.videos.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("add video %s: %w", videoID, err)
	}
	metrics.SnapshotsSaved.Inc()

	logger.Get().Info("Video added manually",
		zap.String("videoId", videoID),
		zap.String("playlistId", playlistID),
		zap.Int64("views", video.ViewCount),
	)

	return snapshot, nil
}

// defaultPlaylist prefers a playlist already in the store, then the first
// configured one.
func (t *Tracker) defaultPlaylist(ctx context.Context) (string, error) {
	known, err := t.videos.GetDistinctPlaylistIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list known playlists: %w", err)
	}
	if len(known) > 0 {
		return known[0], nil
	}
	if len(t.cfg.Playlists) > 0 {
		return t.cfg.Playlists[0].ID, nil
	}
	return UnknownPlaylist, nil
}

// Metadata returns the stored cycle metadata. Missing or unparseable values
// read as zero.
func (t *Tracker) Metadata(ctx context.Context) (*Metadata, error) {
	values, err := t.metadata.GetAll(ctx)
	if err != nil && !db.IsNotFound(err) {
		return nil, fmt.Errorf("get metadata: %w", err)
	}

	return &Metadata{
		LastUpdate:  parseInt(values[models.MetadataLastUpdate]),
		TotalVideos: parseInt(values[models.MetadataTotalVideos]),
	}, nil
}

func parseInt(value string) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
