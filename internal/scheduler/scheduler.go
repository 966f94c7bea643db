// Package scheduler triggers update cycles on a cron, daily or interval
// cadence and reports when the next one is due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/internal/service"
	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner runs update cycles and exposes the stored cycle metadata.
type Runner interface {
	RunCycle(ctx context.Context) (*service.CycleResult, error)
	Metadata(ctx context.Context) (*service.Metadata, error)
}

// Config holds the cadence settings. Cron wins over Schedule, which wins
// over IntervalHours.
type Config struct {
	Enabled bool
	// Cron accepts 3 to 6 fields; 6 fields are read seconds-first.
	Cron string
	// Schedule is a comma separated list of daily HH:MM times.
	Schedule      string
	IntervalHours float64
	Location      *time.Location
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns the background trigger path for update cycles.
type Scheduler struct {
	runner Runner
	cfg    Config
	now    func() time.Time

	cronSchedule cron.Schedule
	daily        []cron.Schedule

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Scheduler. Invalid cron or schedule entries are logged and
// ignored so the fallbacks apply. A nil now uses time.Now.
func New(runner Runner, cfg Config, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{runner: runner, cfg: cfg, now: now}
	log := logger.Get()

	if strings.TrimSpace(cfg.Cron) != "" {
		schedule, err := ParseCron(cfg.Cron)
		if err != nil {
			log.Warn("Invalid update cron expression, falling back",
				zap.String("cron", cfg.Cron),
				zap.Error(err),
			)
		} else {
			s.cronSchedule = schedule
		}
	}

	for _, entry := range splitSchedule(cfg.Schedule) {
		schedule, err := parseDailyTime(entry)
		if err != nil {
			log.Warn("Skipping invalid daily update time", zap.String("entry", entry), zap.Error(err))
			continue
		}
		s.daily = append(s.daily, schedule)
	}

	return s
}

// NormalizeCron pads short expressions to five fields: 3 fields gain
// "* *" and 4 fields gain "*". Five and six field expressions and
// descriptors such as "@hourly" are returned unchanged.
func NormalizeCron(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 3:
		fields = append(fields, "*", "*")
	case 4:
		fields = append(fields, "*")
	case 5, 6:
	default:
		return "", fmt.Errorf("cron expression %q has %d fields, want 3 to 6", expr, len(fields))
	}

	return strings.Join(fields, " "), nil
}

// ParseCron normalises and parses expr.
func ParseCron(expr string) (cron.Schedule, error) {
	normalized, err := NormalizeCron(expr)
	if err != nil {
		return nil, err
	}
	schedule, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", normalized, err)
	}
	return schedule, nil
}

func splitSchedule(schedule string) []string {
	var entries []string
	for _, entry := range strings.Split(schedule, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// parseDailyTime turns "HH:MM" into a once-a-day schedule.
func parseDailyTime(entry string) (cron.Schedule, error) {
	hourText, minuteText, ok := strings.Cut(entry, ":")
	if !ok {
		return nil, errors.New("expected HH:MM")
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid hour %q", hourText)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid minute %q", minuteText)
	}
	return cronParser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(s.cfg.IntervalHours * float64(time.Hour))
}

// Bootstrap runs one cycle synchronously when no cycle has ever completed.
// It runs even when scheduling is disabled.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	metadata, err := s.runner.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	if metadata.LastUpdate != 0 {
		logger.Get().Info("Previous data found, skipping initial update",
			zap.Time("lastUpdate", time.Unix(metadata.LastUpdate, 0)),
		)
		return nil
	}

	logger.Get().Info("No previous data found, performing initial update")
	if _, err := s.runner.RunCycle(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Start registers the triggers. Cycles run with ctx, which should be the
// process root context. A disabled scheduler registers nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.Get()

	if !s.cfg.Enabled {
		log.Info("Scheduled updates are disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	cronLog := cronLogger{log: log.Named("cron").Sugar()}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	job := cron.FuncJob(func() { s.runScheduled(ctx) })

	switch {
	case s.cronSchedule != nil:
		c.Schedule(s.cronSchedule, job)
		log.Info("Cron-based updates enabled", zap.String("cron", s.cfg.Cron))
	case len(s.daily) > 0:
		for _, schedule := range s.daily {
			c.Schedule(schedule, job)
		}
		log.Info("Scheduled daily updates", zap.String("schedule", s.cfg.Schedule))
	default:
		if s.interval() <= 0 {
			return fmt.Errorf("update interval must be positive, got %v hours", s.cfg.IntervalHours)
		}
		c.Schedule(cron.Every(s.interval()), job)
		log.Info("Interval updates enabled", zap.Float64("intervalHours", s.cfg.IntervalHours))
	}

	c.Start()
	s.cron = c
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	result, err := s.runner.RunCycle(ctx)
	if err != nil {
		logger.Get().Error("Scheduled update failed", zap.Error(err))
		return
	}
	logger.Get().Debug("Scheduled update finished", zap.String("state", string(result.State)))
}

// Stop halts triggering. It does not wait for a running cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// NextUpdate returns the epoch second of the next trigger. It uses the cron
// expression when valid, then the earliest daily time, then lastUpdate plus
// the interval (or now plus the interval when there is no prior update).
func (s *Scheduler) NextUpdate(lastUpdate int64) int64 {
	now := s.now().In(s.cfg.Location)

	if s.cronSchedule != nil {
		if next := s.cronSchedule.Next(now); !next.IsZero() {
			return next.Unix()
		}
	}

	var earliest time.Time
	for _, schedule := range s.daily {
		next := schedule.Next(now)
		if next.IsZero() {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	if !earliest.IsZero() {
		return earliest.Unix()
	}

	intervalSeconds := int64(s.cfg.IntervalHours * 3600)
	if lastUpdate > 0 {
		return lastUpdate + intervalSeconds
	}
	return now.Unix() + intervalSeconds
}

// cronLogger routes cron's logr-style calls to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
