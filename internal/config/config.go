// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/validation"
	"github.com/spf13/viper"
)

// DefaultPlaylistID is the legacy single playlist tracked when no playlist
// map is configured.
const DefaultPlaylistID = "PL1B627337ED6F55F0"

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	YouTube   YouTubeConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	Logging   LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	Mode            string
}

// DatabaseConfig contains database connection configuration. URL takes
// precedence over the individual fields when set.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	URL            string
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int32
	MinConnections int32
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// YouTubeConfig contains catalog API settings and the tracked playlists.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	APIKey     string
	BaseURL    string
	PlaylistID string
	// Playlists maps a display name to a playlist ID. Loaded separately
	// because it may arrive either as a YAML map or as "name=ID,..." text.
	Playlists map[string]string `mapstructure:"-"`
	PageSize  int
	PageDelay time.Duration
	Timeout   time.Duration
}

// SchedulerConfig contains update cadence and lock settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type SchedulerConfig struct {
	Enabled             bool
	UpdateCron          string
	UpdateSchedule      string
	UpdateIntervalHours float64
	LockTTLSeconds      int
	LockKey             string
	Timezone            string
}

// EventsConfig contains the optional RabbitMQ cycle-event publisher settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type EventsConfig struct {
	Enabled    bool
	Host       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
	Port       int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Playlist is a named playlist to ingest.
type Playlist struct {
	Name string
	ID   string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	playlists, err := parsePlaylists(v.Get("youtube.playlists"))
	if err != nil {
		return nil, err
	}
	cfg.YouTube.Playlists = playlists

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "view_tracker")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxconnections", 10)
	v.SetDefault("database.minconnections", 2)
	v.SetDefault("database.maxidletime", 30*time.Minute)
	v.SetDefault("database.maxlifetime", time.Hour)

	// YouTube
	v.SetDefault("youtube.apikey", "")
	v.SetDefault("youtube.baseurl", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.playlistid", DefaultPlaylistID)
	v.SetDefault("youtube.playlists", "")
	v.SetDefault("youtube.pagesize", 50)
	v.SetDefault("youtube.pagedelay", 500*time.Millisecond)
	v.SetDefault("youtube.timeout", 30*time.Second)

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.updatecron", "*/30 * * * *")
	v.SetDefault("scheduler.updateschedule", "")
	v.SetDefault("scheduler.updateintervalhours", 6.0)
	v.SetDefault("scheduler.lockttlseconds", 7200)
	v.SetDefault("scheduler.lockkey", "playlist_update_lock")
	v.SetDefault("scheduler.timezone", "")

	// Events
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.host", "localhost")
	v.SetDefault("events.port", 5672)
	v.SetDefault("events.user", "guest")
	v.SetDefault("events.password", "guest")
	v.SetDefault("events.exchange", "view-tracker.events")
	v.SetDefault("events.routingkey", "cycle.completed")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// bindAliases accepts the conventional unprefixed variable names alongside
// the APP_ ones.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("server.port", "APP_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "APP_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("youtube.apikey", "APP_YOUTUBE_APIKEY", "YOUTUBE_API_KEY")
	_ = v.BindEnv("youtube.playlistid", "APP_YOUTUBE_PLAYLISTID", "PLAYLIST_ID")
	_ = v.BindEnv("youtube.playlists", "APP_YOUTUBE_PLAYLISTS", "PLAYLISTS")
	_ = v.BindEnv("scheduler.updatecron", "APP_SCHEDULER_UPDATECRON", "UPDATE_CRON")
	_ = v.BindEnv("scheduler.updateschedule", "APP_SCHEDULER_UPDATESCHEDULE", "UPDATE_SCHEDULE")
	_ = v.BindEnv("scheduler.updateintervalhours", "APP_SCHEDULER_UPDATEINTERVALHOURS", "UPDATE_INTERVAL_HOURS")
	_ = v.BindEnv("scheduler.lockttlseconds", "APP_SCHEDULER_LOCKTTLSECONDS", "UPDATE_LOCK_TTL_SECONDS")
}

// parsePlaylists accepts a YAML map or a "name=ID,name=ID" string.
func parsePlaylists(raw interface{}) (map[string]string, error) {
	playlists := make(map[string]string)

	switch value := raw.(type) {
	case nil:
		return playlists, nil
	case map[string]interface{}:
		for name, id := range value {
			playlists[name] = strings.TrimSpace(fmt.Sprint(id))
		}
	case map[string]string:
		for name, id := range value {
			playlists[name] = strings.TrimSpace(id)
		}
	case string:
		for _, pair := range strings.Split(value, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, id, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid playlist entry %q (expected name=ID)", pair)
			}
			playlists[strings.TrimSpace(name)] = strings.TrimSpace(id)
		}
	default:
		return nil, fmt.Errorf("unsupported playlists value of type %T", raw)
	}

	return playlists, nil
}

// PlaylistList returns the configured playlists sorted by name. When no map
// is configured the legacy single playlist is returned under "default".
func (c *Config) PlaylistList() []Playlist {
	if len(c.YouTube.Playlists) == 0 {
		if c.YouTube.PlaylistID == "" {
			return nil
		}
		return []Playlist{{Name: "default", ID: c.YouTube.PlaylistID}}
	}

	list := make([]Playlist, 0, len(c.YouTube.Playlists))
	for name, id := range c.YouTube.Playlists {
		list = append(list, Playlist{Name: name, ID: id})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list
}

// LockTTL returns the update lock lease duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Scheduler.LockTTLSeconds) * time.Second
}

// Validate checks the settings the update pipeline cannot run without.
func (c *Config) Validate() error {
	if c.YouTube.APIKey == "" {
		return errors.New("youtube.apikey (YOUTUBE_API_KEY) is required")
	}
	if c.YouTube.PageSize < 1 || c.YouTube.PageSize > 50 {
		return fmt.Errorf("youtube.pagesize must be between 1 and 50, got %d", c.YouTube.PageSize)
	}
	playlists := c.PlaylistList()
	if len(playlists) == 0 {
		return errors.New("at least one playlist must be configured")
	}
	for _, p := range playlists {
		if !validation.IsValidPlaylistID(p.ID) {
			return fmt.Errorf("invalid playlist ID %q for %q", p.ID, p.Name)
		}
	}
	if c.Scheduler.LockTTLSeconds <= 0 {
		return fmt.Errorf("scheduler.lockttlseconds must be positive, got %d", c.Scheduler.LockTTLSeconds)
	}
	if c.Scheduler.UpdateIntervalHours <= 0 {
		return fmt.Errorf("scheduler.updateintervalhours must be positive, got %v", c.Scheduler.UpdateIntervalHours)
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	return nil
}
