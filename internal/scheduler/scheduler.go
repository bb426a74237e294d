// Package scheduler runs the daily family-plan expiry sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kaimoapp/kaimo/internal/clock"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const jobFamilyExpirySweep = "family_expiry_sweep"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	FamilySvc familydomain.Service
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	familySvc familydomain.Service
	loc       *time.Location
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.FamilySvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load timezone %q: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       cfg,
		genID:     p.GenID,
		clock:     p.Clock,
		familySvc: p.FamilySvc,
		loc:       loc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.beginRun(ctx, name)
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", run.ID.String()),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	s.finishRun(ctx, run, processed, err)

	if err == nil {
		log.Info("job finished", zap.Int("processed", processed))
		return nil
	}

	// Deadline is a soft timeout: the sweep resumes where it left off on
	// the next run.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Int("processed", processed),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one full sweep pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobFamilyExpirySweep, s.cfg.JobTimeout, func(ctx context.Context) (int, error) {
		return s.familySvc.SweepExpired(ctx, s.cfg.BatchSize)
	})
}

// RunForever sleeps until the next scheduled fire time, sweeps, and repeats
// until the context is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		next := s.nextRunAfter(s.clock.Now())
		wait := next.Sub(s.clock.Now())
		s.log.Info("next sweep scheduled",
			zap.Time("at", next),
			zap.Duration("in", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}

// nextRunAfter finds the next occurrence of the configured local fire time
// strictly after now.
func (s *Scheduler) nextRunAfter(now time.Time) time.Time {
	local := now.In(s.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.SweepHour, 0, 0, 0, s.loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
