package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/config"
	"github.com/ad-tracker/youtube-view-tracker-go/internal/db"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	var (
		dbURL          string
		migrationsPath string
		direction      string
		steps          int
	)

	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to the configured database)")
	flag.StringVar(&migrationsPath, "path", "./migrations", "Path to migrations directory")
	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down, or version")
	flag.IntVar(&steps, "steps", 0, "Number of steps to migrate (0 means all)")
	flag.Parse()

	if err := logger.Init("info", ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Log.Fatal("Failed to load config", zap.Error(err))
		}
		dbURL = databaseURL(cfg.Database)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dbURL)
	if err != nil {
		logger.Log.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		err = nil
	default:
		logger.Log.Fatal("Invalid direction (must be 'up', 'down' or 'version')", zap.String("direction", direction))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Log.Fatal("Migration failed", zap.Error(err))
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Log.Info("Migration completed (no version)")
		return
	}
	if err != nil {
		logger.Log.Fatal("Failed to get migration version", zap.Error(err))
	}

	logger.Log.Info("Migration completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}

// databaseURL builds a postgres URL from the configured connection fields.
func databaseURL(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return (&db.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Name,
		SSLMode:  cfg.SSLMode,
	}).URLString()
}
