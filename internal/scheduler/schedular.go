package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, trigger string, opts services.RunOptions) (*runs.Run, error)
}

type Scheduler struct {
	runner  Runner
	logger  *zap.Logger
	spec    string
	opts    services.RunOptions
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr string
	skipped int
}

func NewScheduler(runner Runner, spec string, opts services.RunOptions, logger *zap.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		runner: runner,
		logger: logger,
		spec:   spec,
		opts:   opts,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

// Start registers the schedule and starts the cron loop. It is a no-op when
// already started.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() { s.runPipeline("schedule") })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.entryID = id
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.spec),
		zap.Time("next_run", s.cron.Entry(id).Next))
	return nil
}

func (s *Scheduler) runPipeline(trigger string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	startTime := time.Now()
	s.logger.Info("Starting pipeline run", zap.String("trigger", trigger))

	_, err := s.runner.Run(ctx, trigger, s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(err, services.ErrRunInProgress) {
		s.skipped++
		s.logger.Info("Skipping run, another run is in progress", zap.String("trigger", trigger))
		return
	}

	s.lastRun = startTime
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
		s.logger.Error("Pipeline run failed",
			zap.String("trigger", trigger),
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)))
		return
	}
	s.logger.Info("Pipeline run completed",
		zap.String("trigger", trigger),
		zap.Duration("duration", time.Since(startTime)))
}

// Stop halts the cron loop, cancels an in-flight run and waits for it to
// return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cancel()
	<-s.cron.Stop().Done()
}

// ForceRun triggers a run outside the schedule.
func (s *Scheduler) ForceRun() {
	s.logger.Info("Manually triggering pipeline run")
	go s.runPipeline("manual")
}

func (s *Scheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":  s.running,
		"schedule": s.spec,
		"last_run": s.lastRun,
		"skipped":  s.skipped,
		"download": s.opts.Download,
	}
	if s.lastErr != "" {
		status["last_error"] = s.lastErr
	}
	if s.running {
		status["next_run"] = s.cron.Entry(s.entryID).Next
	}
	return status
}
