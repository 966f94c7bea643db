package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/config"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service/youtube"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1700000000, 0)

type trackerFixture struct {
	catalog  *mockCatalog
	videos   *mockVideoRepo
	metadata *mockMetadataRepo
	locks    *mockLockRepo
	tracker  *Tracker
	lease    *models.Lock
}

func newTrackerFixture(playlists ...config.Playlist) *trackerFixture {
	f := &trackerFixture{
		catalog:  new(mockCatalog),
		videos:   new(mockVideoRepo),
		metadata: new(mockMetadataRepo),
		locks:    new(mockLockRepo),
		lease:    &models.Lock{Key: "playlist_update_lock", Owner: "test-owner", ExpiresAt: fixedNow.Add(2 * time.Hour).Unix()},
	}
	clock := func() time.Time { return fixedNow }
	lock := NewUpdateLock(f.locks, "test-owner", clock)
	f.tracker = NewTracker(f.catalog, f.videos, f.metadata, lock, TrackerConfig{
		Playlists: playlists,
		LockKey:   "playlist_update_lock",
		LockTTL:   2 * time.Hour,
	}, clock)
	return f
}

func (f *trackerFixture) grantLock() {
	f.locks.On("Acquire", mock.Anything, "playlist_update_lock", "test-owner", fixedNow, 2*time.Hour).Return(f.lease, nil)
	f.locks.On("Release", mock.Anything, f.lease).Return(nil)
}

func stats(videos ...*youtube.VideoStats) map[string]*youtube.VideoStats {
	out := make(map[string]*youtube.VideoStats, len(videos))
	for _, v := range videos {
		out[v.ID] = v
	}
	return out
}

func TestTracker_RunCycle(t *testing.T) {
	playlists := []config.Playlist{{Name: "concerts", ID: "PL1"}, {Name: "extras", ID: "PL2"}}

	t.Run("streams every playlist with one shared timestamp", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.grantLock()

		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
			Return(&youtube.PlaylistPage{VideoIDs: []string{"a", "b"}, NextPageToken: "T2"}, nil)
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "T2").
			Return(&youtube.PlaylistPage{VideoIDs: []string{"c"}}, nil)
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL2", "").
			Return(&youtube.PlaylistPage{VideoIDs: []string{"d"}}, nil)

		f.catalog.On("FetchStatistics", mock.Anything, []string{"a", "b"}).Return(stats(
			&youtube.VideoStats{ID: "a", Title: "A", ViewCount: 10, PublishedAt: "2020-01-01T00:00:00Z"},
			&youtube.VideoStats{ID: "b", Title: "B", ViewCount: 20},
		), nil)
		f.catalog.On("FetchStatistics", mock.Anything, []string{"c"}).Return(stats(
			&youtube.VideoStats{ID: "c", Title: "C", ViewCount: 30},
		), nil)
		// d is private or deleted: no statistics returned.
		f.catalog.On("FetchStatistics", mock.Anything, []string{"d"}).Return(stats(), nil)

		var saved []*models.Snapshot
		f.videos.On("SaveSnapshot", mock.Anything, mock.AnythingOfType("*models.Snapshot")).
			Run(func(args mock.Arguments) { saved = append(saved, args.Get(1).(*models.Snapshot)) }).
			Return(nil)

		f.metadata.On("Set", mock.Anything, models.MetadataLastUpdate, "1700000000").Return(nil)
		f.metadata.On("Set", mock.Anything, models.MetadataTotalVideos, "3").Return(nil)

		result, err := f.tracker.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, result.State)
		assert.Equal(t, StateCompleted, f.tracker.State())
		require.NotNil(t, result.Summary)
		assert.Equal(t, 3, result.Summary.TotalVideos)
		assert.Equal(t, int64(1700000000), result.Summary.Timestamp)
		assert.Equal(t, "test-owner", result.Summary.Owner)
		assert.Equal(t, []PlaylistSummary{
			{Name: "concerts", ID: "PL1", Videos: 3},
			{Name: "extras", ID: "PL2", Videos: 0},
		}, result.Summary.Playlists)

		require.Len(t, saved, 3)
		for i, id := range []string{"a", "b", "c"} {
			assert.Equal(t, id, saved[i].VideoID)
			assert.Equal(t, int64(1700000000), saved[i].Timestamp)
			assert.Equal(t, "PL1", saved[i].PlaylistID)
		}
		assert.Equal(t, "2020-01-01T00:00:00Z", saved[0].PublishedAt)

		f.catalog.AssertExpectations(t)
		f.metadata.AssertExpectations(t)
		f.locks.AssertExpectations(t)
	})

	t.Run("lock denied skips silently", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.locks.On("Acquire", mock.Anything, "playlist_update_lock", "test-owner", fixedNow, 2*time.Hour).Return(nil, nil)

		result, err := f.tracker.RunCycle(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateLockDenied, result.State)
		assert.Nil(t, result.Summary)
		f.catalog.AssertNotCalled(t, "FetchPlaylistPage", mock.Anything, mock.Anything, mock.Anything)
		f.locks.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
		f.metadata.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lock store failure fails the cycle", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.locks.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("db down"))

		result, err := f.tracker.RunCycle(context.Background())

		require.Error(t, err)
		assert.Equal(t, StateFailed, result.State)
		f.catalog.AssertNotCalled(t, "FetchPlaylistPage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("catalog failure releases the lock", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.grantLock()
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
			Return(nil, &youtube.APIError{StatusCode: 500, Message: "backend error"})

		result, err := f.tracker.RunCycle(context.Background())

		require.Error(t, err)
		var apiErr *youtube.APIError
		assert.ErrorAs(t, err, &apiErr)
		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, StateFailed, f.tracker.State())
		f.locks.AssertCalled(t, "Release", mock.Anything, f.lease)
		f.metadata.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("persistence failure releases the lock", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.grantLock()
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
			Return(&youtube.PlaylistPage{VideoIDs: []string{"a"}}, nil)
		f.catalog.On("FetchStatistics", mock.Anything, []string{"a"}).
			Return(stats(&youtube.VideoStats{ID: "a", Title: "A", ViewCount: 1}), nil)
		f.videos.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := f.tracker.RunCycle(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		f.locks.AssertCalled(t, "Release", mock.Anything, f.lease)
	})

	t.Run("metadata failure fails the cycle", func(t *testing.T) {
		f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
		f.grantLock()
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
			Return(&youtube.PlaylistPage{}, nil)
		f.metadata.On("Set", mock.Anything, models.MetadataLastUpdate, "1700000000").Return(errors.New("db down"))

		result, err := f.tracker.RunCycle(context.Background())

		require.Error(t, err)
		assert.Equal(t, StateFailed, result.State)
		f.locks.AssertCalled(t, "Release", mock.Anything, f.lease)
	})

	t.Run("cancelled context aborts pacing and still releases", func(t *testing.T) {
		f := newTrackerFixture(playlists...)
		f.locks.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(f.lease, nil)

		var releaseCtxErr error
		f.locks.On("Release", mock.Anything, f.lease).
			Run(func(args mock.Arguments) { releaseCtxErr = args.Get(0).(context.Context).Err() }).
			Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := f.tracker.RunCycle(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateFailed, result.State)
		assert.NoError(t, releaseCtxErr)
		f.catalog.AssertNotCalled(t, "FetchPlaylistPage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("release failure is logged not returned", func(t *testing.T) {
		f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
		f.locks.On("Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(f.lease, nil)
		f.locks.On("Release", mock.Anything, f.lease).Return(errors.New("db down"))
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").Return(&youtube.PlaylistPage{}, nil)
		f.metadata.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		result, err := f.tracker.RunCycle(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, result.State)
	})

	t.Run("notifier receives summary and its errors are ignored", func(t *testing.T) {
		f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
		f.grantLock()
		f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").Return(&youtube.PlaylistPage{}, nil)
		f.metadata.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		notifier := new(mockNotifier)
		notifier.On("NotifyCycleCompleted", mock.Anything, mock.MatchedBy(func(s *CycleSummary) bool {
			return s.Timestamp == 1700000000 && s.TotalVideos == 0
		})).Return(errors.New("broker down"))
		f.tracker.SetNotifier(notifier)

		result, err := f.tracker.RunCycle(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, result.State)
		notifier.AssertExpectations(t)
	})
}

func TestTracker_RunCyclePacesPages(t *testing.T) {
	f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
	f.tracker.cfg.PageDelay = 40 * time.Millisecond
	f.grantLock()

	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
		Return(&youtube.PlaylistPage{NextPageToken: "T2"}, nil)
	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "T2").
		Return(&youtube.PlaylistPage{NextPageToken: "T3"}, nil)
	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "T3").
		Return(&youtube.PlaylistPage{}, nil)
	f.metadata.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	start := time.Now()
	_, err := f.tracker.RunCycle(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
	f.catalog.AssertNumberOfCalls(t, "FetchPlaylistPage", 3)
}

func TestTracker_RunCycleWaitsAfterSlowPages(t *testing.T) {
	f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
	f.tracker.cfg.PageDelay = 40 * time.Millisecond
	f.grantLock()

	var firstPageDone, secondPageStart time.Time
	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
		Return(&youtube.PlaylistPage{VideoIDs: []string{"a"}, NextPageToken: "T2"}, nil)
	f.catalog.On("FetchStatistics", mock.Anything, []string{"a"}).
		Run(func(mock.Arguments) { time.Sleep(60 * time.Millisecond) }).
		Return(stats(&youtube.VideoStats{ID: "a", ViewCount: 1}), nil)
	f.videos.On("SaveSnapshot", mock.Anything, mock.AnythingOfType("*models.Snapshot")).
		Run(func(mock.Arguments) { firstPageDone = time.Now() }).
		Return(nil)
	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "T2").
		Run(func(mock.Arguments) { secondPageStart = time.Now() }).
		Return(&youtube.PlaylistPage{}, nil)
	f.metadata.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.tracker.RunCycle(context.Background())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, secondPageStart.Sub(firstPageDone), 35*time.Millisecond)
}

func TestTracker_DeniedAttemptKeepsRunningState(t *testing.T) {
	f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PL1"})
	f.locks.On("Acquire", mock.Anything, "playlist_update_lock", "test-owner", fixedNow, 2*time.Hour).
		Return(f.lease, nil).Once()
	f.locks.On("Acquire", mock.Anything, "playlist_update_lock", "test-owner", fixedNow, 2*time.Hour).
		Return(nil, nil)
	f.locks.On("Release", mock.Anything, f.lease).Return(nil)
	f.metadata.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	fetching := make(chan struct{})
	proceed := make(chan struct{})
	f.catalog.On("FetchPlaylistPage", mock.Anything, "PL1", "").
		Run(func(mock.Arguments) {
			close(fetching)
			<-proceed
		}).
		Return(&youtube.PlaylistPage{}, nil)

	done := make(chan *CycleResult, 1)
	go func() {
		result, _ := f.tracker.RunCycle(context.Background())
		done <- result
	}()
	<-fetching

	denied, err := f.tracker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateLockDenied, denied.State)
	assert.Equal(t, StateFetching, f.tracker.State())

	close(proceed)
	result := <-done
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, StateCompleted, f.tracker.State())

	denied, err = f.tracker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateLockDenied, denied.State)
	assert.Equal(t, StateLockDenied, f.tracker.State())
}

func TestTracker_AddVideo(t *testing.T) {
	ctx := context.Background()
	found := stats(&youtube.VideoStats{ID: "dQw4w9WgXcQ", Title: "Tiny Desk", ViewCount: 500, PublishedAt: "2021-01-01T00:00:00Z"})

	t.Run("not found", func(t *testing.T) {
		f := newTrackerFixture()
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(stats(), nil)

		_, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "")

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrVideoNotFound)
		f.videos.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
	})

	t.Run("uses supplied playlist", func(t *testing.T) {
		f := newTrackerFixture()
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(found, nil)
		f.videos.On("SaveSnapshot", ctx, mock.AnythingOfType("*models.Snapshot")).Return(nil)

		snapshot, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "PLcustom")

		require.NoError(t, err)
		assert.Equal(t, "PLcustom", snapshot.PlaylistID)
		assert.Equal(t, int64(500), snapshot.ViewCount)
		assert.Equal(t, "Tiny Desk", snapshot.Title)
		assert.Equal(t, fixedNow.Unix(), snapshot.Timestamp)
		f.videos.AssertNotCalled(t, "GetDistinctPlaylistIDs", mock.Anything)
	})

	t.Run("defaults to first stored playlist", func(t *testing.T) {
		f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PLconfig"})
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(found, nil)
		f.videos.On("GetDistinctPlaylistIDs", ctx).Return([]string{"PLstored", "PLz"}, nil)
		f.videos.On("SaveSnapshot", ctx, mock.AnythingOfType("*models.Snapshot")).Return(nil)

		snapshot, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "")

		require.NoError(t, err)
		assert.Equal(t, "PLstored", snapshot.PlaylistID)
	})

	t.Run("defaults to first configured playlist", func(t *testing.T) {
		f := newTrackerFixture(config.Playlist{Name: "concerts", ID: "PLconfig"})
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(found, nil)
		f.videos.On("GetDistinctPlaylistIDs", ctx).Return([]string{}, nil)
		f.videos.On("SaveSnapshot", ctx, mock.AnythingOfType("*models.Snapshot")).Return(nil)

		snapshot, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "")

		require.NoError(t, err)
		assert.Equal(t, "PLconfig", snapshot.PlaylistID)
	})

	t.Run("falls back to unknown", func(t *testing.T) {
		f := newTrackerFixture()
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(found, nil)
		f.videos.On("GetDistinctPlaylistIDs", ctx).Return([]string{}, nil)
		f.videos.On("SaveSnapshot", ctx, mock.AnythingOfType("*models.Snapshot")).Return(nil)

		snapshot, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "")

		require.NoError(t, err)
		assert.Equal(t, UnknownPlaylist, snapshot.PlaylistID)
	})

	t.Run("catalog error is not a not-found", func(t *testing.T) {
		f := newTrackerFixture()
		f.catalog.On("FetchStatistics", ctx, []string{"dQw4w9WgXcQ"}).Return(nil, errors.New("timeout"))

		_, err := f.tracker.AddVideo(ctx, "dQw4w9WgXcQ", "")

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrVideoNotFound)
	})
}

func TestTracker_Metadata(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		stored map[string]string
		want   Metadata
	}{
		{name: "empty store", stored: map[string]string{}, want: Metadata{}},
		{
			name:   "parsed values",
			stored: map[string]string{"lastUpdate": "1700000000", "totalVideos": "42"},
			want:   Metadata{LastUpdate: 1700000000, TotalVideos: 42},
		},
		{
			name:   "unparseable values read as zero",
			stored: map[string]string{"lastUpdate": "yesterday", "totalVideos": "many"},
			want:   Metadata{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTrackerFixture()
			f.metadata.On("GetAll", ctx).Return(tt.stored, nil)

			got, err := f.tracker.Metadata(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	t.Run("store error", func(t *testing.T) {
		f := newTrackerFixture()
		f.metadata.On("GetAll", ctx).Return(nil, errors.New("db down"))

		_, err := f.tracker.Metadata(ctx)
		require.Error(t, err)
	})
}

func TestTracker_InitialState(t *testing.T) {
	f := newTrackerFixture()
	assert.Equal(t, StateIdle, f.tracker.State())
	assert.Empty(t, f.tracker.Playlists())
}
