package runs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("run not found")

// Run is one pipeline execution.
type Run struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Trigger        string     `gorm:"size:32;index" json:"trigger"`
	Status         string     `gorm:"size:16;index" json:"status"`
	StartedAt      time.Time  `gorm:"index" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	AirQualityRows int        `json:"air_quality_rows"`
	PedestrianRows int        `json:"pedestrian_rows"`
	GeocodeQueries int        `json:"geocode_queries"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
}

// Summary carries the figures recorded when a run finishes.
type Summary struct {
	AirQualityRows int
	PedestrianRows int
	GeocodeQueries int
}

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the sqlite database at path. ":memory:" gives a
// private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating run history directory: %w", err)
		}
	}

	gormLogger := gormlogger.New(
		zap.NewStdLog(logger),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("opening run history %s: %w", path, err)
	}

	if path == ":memory:" {
		// Every pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrating run history: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Start records a new running run.
func (s *Store) Start(ctx context.Context, trigger string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	s.logger.Debug("Run started", zap.String("run_id", run.ID), zap.String("trigger", trigger))
	return run, nil
}

// Finish marks the run completed, or failed when runErr is not nil.
func (s *Store) Finish(ctx context.Context, id string, summary Summary, runErr error) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.AirQualityRows = summary.AirQualityRows
	run.PedestrianRows = summary.PedestrianRows
	run.GeocodeQueries = summary.GeocodeQueries
	run.Status = StatusCompleted
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}

	if err := s.db.WithContext(ctx).Save(&run).Error; err != nil {
		return nil, fmt.Errorf("recording run finish: %w", err)
	}
	return &run, nil
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
