package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/config"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db/repository"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/events"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/handler"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/scheduler"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/service/youtube"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Log.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Cancelled on SIGINT/SIGTERM; cycles and pacing waits run under it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, &db.Config{
		URL:             cfg.Database.URL,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConnections,
		MinConns:        cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxLifetime,
		MaxConnIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close(pool)

	logger.Log.Info("Database connection established", zap.Int32("maxConns", pool.Config().MaxConns))

	videoRepo := repository.NewVideoRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	metadataRepo := repository.NewMetadataRepository(pool)
	lockRepo := repository.NewLockRepository(pool)

	client, err := youtube.NewClient(youtube.Config{
		APIKey:   cfg.YouTube.APIKey,
		BaseURL:  cfg.YouTube.BaseURL,
		PageSize: cfg.YouTube.PageSize,
		Timeout:  cfg.YouTube.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	owner := service.NewOwnerID()
	tracker := service.NewTracker(
		client,
		videoRepo,
		metadataRepo,
		service.NewUpdateLock(lockRepo, owner, nil),
		service.TrackerConfig{
			Playlists: cfg.PlaylistList(),
			LockKey:   cfg.Scheduler.LockKey,
			LockTTL:   cfg.LockTTL(),
			PageDelay: cfg.YouTube.PageDelay,
		},
		nil,
	)

	health := handler.NewHealthHandler(pool, nil)
	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(&cfg.Events)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		defer func() { _ = publisher.Close() }()

		tracker.SetNotifier(publisher)
		health = handler.NewHealthHandler(pool, publisher)
	}

	location, err := loadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return err
	}

	sched := scheduler.New(tracker, scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		Cron:          cfg.Scheduler.UpdateCron,
		Schedule:      cfg.Scheduler.UpdateSchedule,
		IntervalHours: cfg.Scheduler.UpdateIntervalHours,
		Location:      location,
	}, nil)

	logger.Log.Info("Tracker configured",
		zap.String("owner", owner),
		zap.Int("playlists", len(cfg.PlaylistList())),
		zap.Bool("schedulerEnabled", cfg.Scheduler.Enabled),
		zap.Bool("eventsEnabled", cfg.Events.Enabled),
	)

	if err := sched.Bootstrap(ctx); err != nil {
		// The API still serves whatever is stored.
		logger.Log.Error("Initial update failed", zap.Error(err))
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	gin.SetMode(cfg.Server.Mode)
	api := handler.NewAPIHandler(ctx, videoRepo, historyRepo, tracker, sched, nil)
	router := handler.NewRouter(api, health, logger.Named("http"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
		if err := server.Close(); err != nil {
			logger.Log.Error("Failed to close server", zap.Error(err))
		}
		return err
	}

	logger.Log.Info("Server stopped gracefully")
	return nil
}

// loadLocation resolves the scheduler timezone; empty means local time.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", name, err)
	}
	return location, nil
}
