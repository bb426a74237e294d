package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kaimoapp/kaimo/internal/clock"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubFamilyService struct {
	familydomain.Service

	sweepCalls int
	sweepLimit int
	swept      int
	err        error
}

func (s *stubFamilyService) SweepExpired(ctx context.Context, limit int) (int, error) {
	s.sweepCalls++
	s.sweepLimit = limit
	return s.swept, s.err
}

func newTestScheduler(t *testing.T, svc familydomain.Service, clk clock.Clock) (*Scheduler, *gorm.DB) {
	t.Helper()
	obsmetrics.ResetSchedulerMetricsForTest()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&JobRun{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sched, err := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		FamilySvc: svc,
		GenID:     node,
		Clock:     clk,
	})
	require.NoError(t, err)
	return sched, db
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceSweepsAndRecordsRun(t *testing.T) {
	svc := &stubFamilyService{swept: 3}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC))
	sched, db := newTestScheduler(t, svc, clk)

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Equal(t, 1, svc.sweepCalls)
	assert.Equal(t, DefaultConfig().BatchSize, svc.sweepLimit)

	var runs []JobRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, "family_expiry_sweep", runs[0].Job)
	assert.Equal(t, runStatusSucceeded, runs[0].Status)
	assert.Equal(t, 3, runs[0].Processed)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[0].Error)
}

func TestRunOnceErrorIsSurfaced(t *testing.T) {
	svc := &stubFamilyService{err: errors.New("db down")}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC))
	sched, db := newTestScheduler(t, svc, clk)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "family_expiry_sweep")

	var run JobRun
	require.NoError(t, db.Take(&run).Error)
	assert.Equal(t, runStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "db down")
}

func TestRunOnceDeadlineIsSoft(t *testing.T) {
	svc := &stubFamilyService{err: context.DeadlineExceeded}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC))
	sched, _ := newTestScheduler(t, svc, clk)

	require.NoError(t, sched.RunOnce(context.Background()))
}

func TestNextRunAfter(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	svc := &stubFamilyService{}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	sched, _ := newTestScheduler(t, svc, clk)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the hour fires same day",
			now:  time.Date(2025, 6, 1, 1, 30, 0, 0, tokyo),
			want: time.Date(2025, 6, 1, 2, 0, 0, 0, tokyo),
		},
		{
			name: "exactly on the hour waits a day",
			now:  time.Date(2025, 6, 1, 2, 0, 0, 0, tokyo),
			want: time.Date(2025, 6, 2, 2, 0, 0, 0, tokyo),
		},
		{
			name: "after the hour waits a day",
			now:  time.Date(2025, 6, 1, 23, 0, 0, 0, tokyo),
			want: time.Date(2025, 6, 2, 2, 0, 0, 0, tokyo),
		},
		{
			name: "UTC input converts to local schedule",
			now:  time.Date(2025, 5, 31, 18, 0, 0, 0, time.UTC), // 03:00 JST June 1st
			want: time.Date(2025, 6, 2, 2, 0, 0, 0, tokyo),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sched.nextRunAfter(tc.now)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
		})
	}
}
