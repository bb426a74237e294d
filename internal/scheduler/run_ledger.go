package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// JobRun is one audit row per sweep execution.
type JobRun struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Job        string       `gorm:"type:text;not null;index"`
	Status     string       `gorm:"type:text;not null"`
	Processed  int          `gorm:"not null;default:0"`
	Error      *string      `gorm:"type:text"`
	StartedAt  time.Time    `gorm:"not null"`
	FinishedAt *time.Time   `gorm:""`
}

// TableName sets the database table name.
func (JobRun) TableName() string { return "scheduler_job_runs" }

const (
	runStatusRunning   = "running"
	runStatusSucceeded = "succeeded"
	runStatusFailed    = "failed"
)

func (s *Scheduler) beginRun(ctx context.Context, job string) *JobRun {
	run := &JobRun{
		ID:        s.genID.Generate(),
		Job:       job,
		Status:    runStatusRunning,
		StartedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		// The ledger is observability, not correctness; the sweep still runs.
		s.log.Warn("failed to record job run", zap.Error(err))
	}
	return run
}

func (s *Scheduler) finishRun(ctx context.Context, run *JobRun, processed int, err error) {
	now := s.clock.Now()
	run.Processed = processed
	run.FinishedAt = &now
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		run.Status = runStatusFailed
	} else {
		run.Status = runStatusSucceeded
	}

	// The job context may already be past its deadline here.
	if dbErr := s.db.WithContext(context.WithoutCancel(ctx)).Save(run).Error; dbErr != nil {
		s.log.Warn("failed to finalize job run", zap.Error(dbErr))
	}
}
