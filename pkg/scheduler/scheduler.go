// Package scheduler triggers the periodic refresh, the hourly republish of the
// current state and the daily cheap-period analysis.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/levenlabs/go-lflag"
	"github.com/robfig/cron/v3"
)

const (
	MinRefreshInterval = 5 * time.Minute
	MaxRefreshInterval = 24 * time.Hour
)

// publishSpec fires at the start of every hour. Price slots are UTC hours.
const publishSpec = "CRON_TZ=UTC 0 * * * *"

// Runner is the work the scheduler triggers.
type Runner interface {
	Refresh(ctx context.Context, now time.Time) (types.PriceWindow, error)
	Analyze(ctx context.Context, now time.Time) (types.CheapAnalysisResult, error)
	Publish(ctx context.Context, now time.Time) error
}

// Scheduler runs refreshes on a fixed interval, republishes the current hour
// on every hour and runs the cheap analysis once a day at the configured local
// time.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	cron      *cron.Cron
	triggerID cron.EntryID
	trigger   string
}

// Configured sets up the Scheduler based on flags.
func Configured(r Runner) *Scheduler {
	s := &Scheduler{runner: r, now: time.Now}
	interval := lflag.String("refresh-interval", "1h", "How often to refetch day-ahead prices (5m to 24h)")

	lflag.Do(func() {
		d, err := ParseInterval(*interval)
		if err != nil {
			panic(fmt.Sprintf("invalid refresh-interval: %v", err))
		}
		s.interval = d
	})

	return s
}

// New returns a Scheduler refreshing every interval.
func New(r Runner, interval time.Duration) (*Scheduler, error) {
	if err := validateInterval(interval); err != nil {
		return nil, err
	}
	return &Scheduler{runner: r, interval: interval, now: time.Now}, nil
}

// ParseInterval parses a refresh interval such as "30m" or a bare number of
// minutes.
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		minutes, atoiErr := strconv.Atoi(s)
		if atoiErr != nil {
			return 0, fmt.Errorf("%w: invalid interval %q", types.ErrInvalidConfig, s)
		}
		d = time.Duration(minutes) * time.Minute
	}
	if err := validateInterval(d); err != nil {
		return 0, err
	}
	return d, nil
}

func validateInterval(d time.Duration) error {
	if d < MinRefreshInterval || d > MaxRefreshInterval {
		return fmt.Errorf("%w: interval %s outside %s-%s", types.ErrInvalidConfig, d, MinRefreshInterval, MaxRefreshInterval)
	}
	return nil
}

// Interval returns the refresh interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// triggerSpec returns the daily cron spec for tod in loc.
func triggerSpec(tod types.TimeOfDay, loc *time.Location) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), tod.Minute, tod.Hour)
}

// Reschedule moves the daily analysis to tod in loc. It may be called before
// Run; the trigger is then installed when Run starts.
func (s *Scheduler) Reschedule(tod types.TimeOfDay, loc *time.Location) error {
	if err := tod.Validate(); err != nil {
		return err
	}
	spec := triggerSpec(tod, loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.trigger && s.triggerID != 0 {
		return nil
	}
	s.trigger = spec
	if s.cron == nil {
		return nil
	}
	return s.installTrigger()
}

// installTrigger replaces the analysis entry. Callers hold mu.
func (s *Scheduler) installTrigger() error {
	if s.triggerID != 0 {
		s.cron.Remove(s.triggerID)
		s.triggerID = 0
	}
	if s.trigger == "" {
		return nil
	}
	id, err := s.cron.AddFunc(s.trigger, s.runAnalyze)
	if err != nil {
		return fmt.Errorf("failed to schedule analysis (%s): %w", s.trigger, err)
	}
	s.triggerID = id
	log.Ctx(s.ctx).InfoContext(s.ctx, "scheduled cheap analysis", slog.String("spec", s.trigger))
	return nil
}

func (s *Scheduler) runRefresh() {
	ctx := s.context()
	if _, err := s.runner.Refresh(ctx, s.now()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "scheduled refresh failed", slog.Any("error", err))
	}
}

func (s *Scheduler) runAnalyze() {
	ctx := s.context()
	if _, err := s.runner.Analyze(ctx, s.now()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "scheduled analysis failed", slog.Any("error", err))
	}
}

func (s *Scheduler) runPublish() {
	ctx := s.context()
	if err := s.runner.Publish(ctx, s.now()); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "hourly publish failed", slog.Any("error", err))
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Run refreshes once immediately and then blocks running the schedule until
// ctx is done. Running jobs are waited for before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.runRefresh); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	if _, err := c.AddFunc(publishSpec, s.runPublish); err != nil {
		return fmt.Errorf("failed to schedule publish: %w", err)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.cron = c
	err := s.installTrigger()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "starting scheduler", slog.Duration("interval", s.interval))
	s.runRefresh()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Ctx(ctx).InfoContext(ctx, "scheduler stopped")
	return nil
}
