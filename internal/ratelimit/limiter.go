// Package ratelimit enforces per-user sliding-window call budgets backed by a
// transactional counter row, so concurrent requests from the same user cannot
// double-spend the window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kaimoapp/kaimo/internal/clock"
	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRateLimited is the base error for both window scopes.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrPerMinute   = fmt.Errorf("%w: per-minute window", ErrRateLimited)
	ErrPerDay      = fmt.Errorf("%w: per-day window", ErrRateLimited)
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour
)

// Record is one user's call ledger. Timestamps are unix milliseconds, pruned
// to the trailing 24h on every check. The row rolls forward forever.
type Record struct {
	UserID    string                     `gorm:"primaryKey;column:user_id"`
	Calls     datatypes.JSONSlice[int64] `gorm:"column:calls"`
	UpdatedAt time.Time                  `gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "rate_limits" }

// Config controls the window caps.
type Config struct {
	PerMinute int
	PerDay    int
}

func (c Config) withDefaults() Config {
	if c.PerMinute <= 0 {
		c.PerMinute = 5
	}
	if c.PerDay <= 0 {
		c.PerDay = 50
	}
	return c
}

// Limiter accounts calls per user inside a single store transaction.
type Limiter struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   Config
}

func NewLimiter(db *gorm.DB, log *zap.Logger, clk clock.Clock, cfg Config) *Limiter {
	return &Limiter{
		db:    db,
		log:   log.Named("ratelimit"),
		clock: clk,
		cfg:   cfg.withDefaults(),
	}
}

// lockedLedger scopes a query to one user's ledger row and locks it for the
// surrounding transaction. Concurrent calls from the same user must serialize
// on the row; sqlite has a single writer and no FOR UPDATE.
func lockedLedger(tx *gorm.DB, userID string) *gorm.DB {
	q := tx.Where("user_id = ?", userID)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// CheckAndRecord admits or rejects one call for userID. On admission the call
// timestamp is appended and the pruned ledger written back; on rejection
// nothing is written. The whole read-filter-append runs in one transaction.
func (l *Limiter) CheckAndRecord(ctx context.Context, userID string) error {
	now := l.clock.Now()
	dayCutoff := now.Add(-dayWindow).UnixMilli()
	minuteCutoff := now.Add(-minuteWindow).UnixMilli()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		err := lockedLedger(tx, userID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = Record{UserID: userID}
		case err != nil:
			return err
		}

		// Window edges are exclusive: a call exactly 24h/60s old is out.
		recent := make([]int64, 0, len(rec.Calls)+1)
		lastMinute := 0
		for _, ts := range rec.Calls {
			if ts <= dayCutoff {
				continue
			}
			recent = append(recent, ts)
			if ts > minuteCutoff {
				lastMinute++
			}
		}

		if lastMinute >= l.cfg.PerMinute {
			return ErrPerMinute
		}
		if len(recent) >= l.cfg.PerDay {
			return ErrPerDay
		}

		rec.Calls = append(recent, now.UnixMilli())
		rec.UpdatedAt = now
		return tx.Save(&rec).Error
	})

	switch {
	case errors.Is(err, ErrPerMinute):
		obsmetrics.App().IncRateLimitDenied("minute")
		l.log.Info("call rejected", zap.String("user_id", userID), zap.String("scope", "minute"))
	case errors.Is(err, ErrPerDay):
		obsmetrics.App().IncRateLimitDenied("day")
		l.log.Info("call rejected", zap.String("user_id", userID), zap.String("scope", "day"))
	case err == nil:
		obsmetrics.App().IncRateLimitAllowed()
	}
	return err
}
