package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []string
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, trigger string, opts services.RunOptions) (*runs.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	return &runs.Run{Trigger: trigger}, f.err
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, "not a schedule", services.RunOptions{}, zap.NewNop())

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a schedule")
	assert.Equal(t, false, s.GetStatus()["running"])
}

func TestScheduledRun(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, "@every 1s", services.RunOptions{}, zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	status := s.GetStatus()
	assert.Equal(t, true, status["running"])
	assert.Contains(t, status, "next_run")

	require.Eventually(t, func() bool {
		return len(runner.calls()) > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "schedule", runner.calls()[0])
}

func TestForceRunRecordsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("required column missing: value")}
	s := NewScheduler(runner, "@daily", services.RunOptions{Download: true}, zap.NewNop())

	s.ForceRun()

	require.Eventually(t, func() bool {
		_, ok := s.GetStatus()["last_error"]
		return ok
	}, time.Second, 10*time.Millisecond)

	status := s.GetStatus()
	assert.Equal(t, "required column missing: value", status["last_error"])
	assert.Equal(t, true, status["download"])
	assert.Equal(t, []string{"manual"}, runner.calls())
}

func TestRunInProgressIsSkipped(t *testing.T) {
	runner := &fakeRunner{err: services.ErrRunInProgress}
	s := NewScheduler(runner, "@daily", services.RunOptions{}, zap.NewNop())

	s.runPipeline("schedule")

	status := s.GetStatus()
	assert.Equal(t, 1, status["skipped"])
	assert.True(t, status["last_run"].(time.Time).IsZero())
	assert.NotContains(t, status, "last_error")
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, "@daily", services.RunOptions{}, zap.NewNop())
	require.NoError(t, s.Start())

	s.Stop()
	assert.NotPanics(t, s.Stop)
	assert.Equal(t, false, s.GetStatus()["running"])
}
