package handler

import (
	"context"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service"

	"github.com/stretchr/testify/mock"
)

type mockVideoStore struct {
	mock.Mock
}

func (m *mockVideoStore) GetTopVideos(ctx context.Context, limit int, playlistIDs []string) ([]*models.Video, error) {
	args := m.Called(ctx, limit, playlistIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockVideoStore) ListVideos(ctx context.Context) ([]*models.Video, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockVideoStore) GetDistinctPlaylistIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockVideoStore) GetStats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Stats), args.Error(1)
}

type mockHistoryStore struct {
	mock.Mock
}

func (m *mockHistoryStore) GetVideoHistory(ctx context.Context, videoID string) ([]*models.HistoryEntry, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.HistoryEntry), args.Error(1)
}

func (m *mockHistoryStore) ListAll(ctx context.Context) ([]*models.HistoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.HistoryEntry), args.Error(1)
}

func (m *mockHistoryStore) GetRecentHistory(ctx context.Context, perVideo int) (map[string][]*models.HistoryEntry, error) {
	args := m.Called(ctx, perVideo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*models.HistoryEntry), args.Error(1)
}

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) RunCycle(ctx context.Context) (*service.CycleResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CycleResult), args.Error(1)
}

func (m *mockUpdater) AddVideo(ctx context.Context, videoID, playlistID string) (*models.Snapshot, error) {
	args := m.Called(ctx, videoID, playlistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *mockUpdater) Metadata(ctx context.Context) (*service.Metadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Metadata), args.Error(1)
}

func (m *mockUpdater) State() service.CycleState {
	return m.Called().Get(0).(service.CycleState)
}

// fixedSchedule returns lastUpdate plus a constant offset.
type fixedSchedule struct {
	offset int64
}

func (f fixedSchedule) NextUpdate(lastUpdate int64) int64 {
	return lastUpdate + f.offset
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

type mockHealthChecker struct {
	healthy bool
}

func (m *mockHealthChecker) IsHealthy() bool {
	return m.healthy
}
