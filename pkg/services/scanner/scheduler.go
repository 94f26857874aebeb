package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type FullScanner interface {
	ScanAllAccounts(ctx context.Context) (Summary, error)
}

type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// Scheduler triggers full scans on a fixed interval and on demand. Passes never
// overlap: triggers arriving during a pass coalesce into one follow-up pass.
type Scheduler struct {
	scanner FullScanner
	config  SchedulerConfig
	trigger chan struct{}
	done    chan struct{}
}

func NewScheduler(scanner FullScanner, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		scanner: scanner,
		config:  cfg,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Trigger requests a full scan. It reports false when one is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("component", "scheduler").Logger()
	ctx = logger.WithContext(ctx)
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.run(ctx)
		case <-s.trigger:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.scanner.ScanAllAccounts(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("full scan failed")
	}
}
