package service

import (
	"context"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service/youtube"

	"github.com/stretchr/testify/mock"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FetchPlaylistPage(ctx context.Context, playlistID, pageToken string) (*youtube.PlaylistPage, error) {
	args := m.Called(ctx, playlistID, pageToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.PlaylistPage), args.Error(1)
}

func (m *mockCatalog) FetchStatistics(ctx context.Context, videoIDs []string) (map[string]*youtube.VideoStats, error) {
	args := m.Called(ctx, videoIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*youtube.VideoStats), args.Error(1)
}

func (m *mockCatalog) PageSize() int {
	return 50
}

type mockVideoRepo struct {
	mock.Mock
}

func (m *mockVideoRepo) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *mockVideoRepo) GetVideoByID(ctx context.Context, videoID string) (*models.Video, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Video), args.Error(1)
}

func (m *mockVideoRepo) GetTopVideos(ctx context.Context, limit int, playlistIDs []string) ([]*models.Video, error) {
	args := m.Called(ctx, limit, playlistIDs)
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockVideoRepo) ListVideos(ctx context.Context) ([]*models.Video, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockVideoRepo) GetDistinctPlaylistIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockVideoRepo) GetStats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stats), args.Error(1)
}

type mockMetadataRepo struct {
	mock.Mock
}

func (m *mockMetadataRepo) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockMetadataRepo) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockMetadataRepo) GetAll(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type mockLockRepo struct {
	mock.Mock
}

func (m *mockLockRepo) Acquire(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (*models.Lock, error) {
	args := m.Called(ctx, key, owner, now, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lock), args.Error(1)
}

func (m *mockLockRepo) Release(ctx context.Context, lock *models.Lock) error {
	args := m.Called(ctx, lock)
	return args.Error(0)
}

func (m *mockLockRepo) Get(ctx context.Context, key string) (*models.Lock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lock), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyCycleCompleted(ctx context.Context, summary *CycleSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}
