// Package testutil starts a disposable PostgreSQL container with the
// tracker schema for integration tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/models"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:17-alpine"
	testDatabase  = "view_tracker_test"
	testUser      = "test"
	testPassword  = "test"
)

// TestDatabase is a migrated database running in a container.
type TestDatabase struct {
	Pool      *pgxpool.Pool
	Container *postgres.PostgresContainer
	ConnStr   string
}

// SetupTestDatabase starts PostgreSQL, applies ./migrations and connects a
// pool. Tests calling it are skipped under -short.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsDir, err := MigrationsDir()
	require.NoError(t, err)
	require.NoError(t, applyMigrations(migrationsDir, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	return &TestDatabase{
		Pool:      pool,
		Container: pgContainer,
		ConnStr:   connStr,
	}
}

// MigrationsDir walks up from the working directory to the module root and
// returns its migrations directory, so any package depth can use it.
func MigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("module root not found above working directory")
		}
		dir = parent
	}
}

func applyMigrations(dir, connStr string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", dir), connStr)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Cleanup closes the pool and terminates the container.
func (td *TestDatabase) Cleanup(t *testing.T) {
	if td.Pool != nil {
		td.Pool.Close()
	}

	if td.Container != nil {
		require.NoError(t, td.Container.Terminate(context.Background()))
	}
}

// TruncateTables empties every tracker table and resets the history sequence.
func (td *TestDatabase) TruncateTables(t *testing.T) {
	_, err := td.Pool.Exec(context.Background(),
		`TRUNCATE TABLE history, videos, metadata, locks RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

// InsertHistory writes a video row and raw history entries without the
// retention pruning SaveSnapshot applies, for tests that need more rows
// than the window or out-of-order timestamps.
func (td *TestDatabase) InsertHistory(t *testing.T, video *models.Video, entries ...models.HistoryEntry) {
	t.Helper()
	ctx := context.Background()

	_, err := td.Pool.Exec(ctx, `
		INSERT INTO videos (video_id, title, current_views, last_updated, published_at, playlist_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (video_id) DO NOTHING`,
		video.VideoID, video.Title, video.CurrentViews, video.LastUpdated, video.PublishedAt, video.PlaylistID)
	require.NoError(t, err)

	for _, e := range entries {
		_, err := td.Pool.Exec(ctx,
			`INSERT INTO history (video_id, timestamp, view_count) VALUES ($1, $2, $3)`,
			video.VideoID, e.Timestamp, e.ViewCount)
		require.NoError(t, err)
	}
}
