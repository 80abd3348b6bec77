package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/airquality"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/downloader"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/geocode"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/pedestrian"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/storage"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/pkg/client"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("a pipeline run is already in progress")

type RunOptions struct {
	// Download fetches the raw files before processing.
	Download bool
}

// Pipeline runs the air quality and pedestrian stages end to end. Only one
// run executes at a time.
type Pipeline struct {
	cfg        *config.Config
	airQuality *airquality.Transformer
	pedestrian *pedestrian.Transformer
	mapper     *geocode.AreaMapper
	downloader *downloader.Downloader
	runs       *runs.Store
	results    *ResultCache
	metrics    *metrics.Metrics
	logger     *zap.Logger

	running      sync.Mutex
	mu           sync.RWMutex
	lastRun      *runs.Run
	successCount int
	failureCount int
}

func NewPipeline(cfg *config.Config, store *runs.Store, results *ResultCache, mt *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if cfg.Mappings == nil {
		return nil, fmt.Errorf("mapping tables not loaded")
	}

	breaker := client.ClientConfig{
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
		UserAgent:      cfg.Geocoder.UserAgent,
	}

	geocoderConfig := breaker
	geocoderConfig.Timeout = cfg.Geocoder.Timeout
	nominatim := client.NewNominatimClient(cfg.Geocoder.BaseURL, cfg.Geocoder.CountryCodes, geocoderConfig, logger)

	downloadConfig := breaker
	downloadConfig.Timeout = cfg.Download.Timeout
	fetcher := client.NewBaseClient("downloader", downloadConfig, logger)

	mapper := geocode.NewAreaMapper(
		geocode.NewStore(cfg.CoordinatesPath(), logger),
		nominatim,
		cfg.Geocoder.Delay,
		cfg.AreaMappingPath(),
		logger,
		geocode.WithMetrics(mt),
	)

	return &Pipeline{
		cfg:        cfg,
		airQuality: airquality.NewTransformer(cfg.Mappings.AirQuality, logger),
		pedestrian: pedestrian.NewTransformer(cfg.Mappings.Pedestrian, logger),
		mapper:     mapper,
		downloader: downloader.New(cfg, fetcher, mt, logger),
		runs:       store,
		results:    results,
		metrics:    mt,
		logger:     logger,
	}, nil
}

// Run executes the pipeline once and records it in the run history. It
// returns ErrRunInProgress without waiting when another run is active.
func (p *Pipeline) Run(ctx context.Context, trigger string, opts RunOptions) (*runs.Run, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	run, err := p.runs.Start(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return p.complete(ctx, run, opts)
}

// RunAsync records a new run and executes it in the background. The returned
// run is still in the running state.
func (p *Pipeline) RunAsync(ctx context.Context, trigger string, opts RunOptions) (*runs.Run, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}

	run, err := p.runs.Start(ctx, trigger)
	if err != nil {
		p.running.Unlock()
		return nil, err
	}

	go func() {
		defer p.running.Unlock()
		p.complete(context.WithoutCancel(ctx), run, opts)
	}()
	return run, nil
}

func (p *Pipeline) complete(ctx context.Context, run *runs.Run, opts RunOptions) (*runs.Run, error) {
	startTime := time.Now()
	p.logger.Info("Pipeline run started", zap.String("run_id", run.ID), zap.String("trigger", run.Trigger))

	summary, runErr := p.execute(ctx, opts)

	// Record the outcome even when ctx was cancelled
	finished, err := p.runs.Finish(context.WithoutCancel(ctx), run.ID, summary, runErr)
	if err != nil {
		p.logger.Error("Failed to record run outcome", zap.String("run_id", run.ID), zap.Error(err))
		finished = run
	}

	status := runs.StatusCompleted
	if runErr != nil {
		status = runs.StatusFailed
	}
	p.metrics.RecordRun(run.Trigger, status)
	p.metrics.ObserveStage("total", time.Since(startTime))

	p.mu.Lock()
	p.lastRun = finished
	if runErr != nil {
		p.failureCount++
	} else {
		p.successCount++
	}
	p.mu.Unlock()

	if runErr != nil {
		p.logger.Error("Pipeline run failed",
			zap.String("run_id", run.ID),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(runErr))
		return finished, runErr
	}

	p.logger.Info("Pipeline run completed",
		zap.String("run_id", run.ID),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("air_quality_rows", summary.AirQualityRows),
		zap.Int("pedestrian_rows", summary.PedestrianRows),
		zap.Int("geocode_queries", summary.GeocodeQueries))
	return finished, nil
}

func (p *Pipeline) execute(ctx context.Context, opts RunOptions) (runs.Summary, error) {
	var summary runs.Summary

	if opts.Download {
		err := p.stage("download", func() error {
			return p.downloader.Download(ctx)
		})
		if err != nil {
			p.logger.Warn("Some files could not be downloaded", zap.Error(err))
		}
	}

	var airQualityRows []models.AirQualitySummary
	err := p.stage("air_quality", func() error {
		var err error
		airQualityRows, err = p.processAirQuality()
		return err
	})
	if err != nil {
		return summary, fmt.Errorf("air quality: %w", err)
	}
	summary.AirQualityRows = len(airQualityRows)

	var observations []models.PedestrianObservation
	err = p.stage("pedestrian", func() error {
		var err error
		observations, err = p.processPedestrian()
		return err
	})
	if err != nil {
		return summary, fmt.Errorf("pedestrian: %w", err)
	}

	var areas []models.AreaCoordinate
	err = p.stage("geocode", func() error {
		var err error
		areas, err = p.mapper.Map(ctx, DistinctKeys(observations))
		return err
	})
	summary.GeocodeQueries = p.mapper.LastQueries()
	if err != nil {
		return summary, fmt.Errorf("area mapping: %w", err)
	}

	counts := Join(observations, areas)
	err = p.stage("join", func() error {
		return storage.SavePedestrian(p.cfg.PedestrianOutputPath(), counts)
	})
	if err != nil {
		return summary, err
	}
	p.metrics.AddRows("pedestrian", len(counts))
	p.logger.Info("Pedestrian count data saved", zap.String("path", p.cfg.PedestrianOutputPath()))
	summary.PedestrianRows = len(counts)

	if err := p.export(airQualityRows, counts); err != nil {
		return summary, err
	}

	if p.results != nil {
		p.results.Publish(airQualityRows, p.airQuality.Parameters(), counts, areas)
	}
	return summary, nil
}

func (p *Pipeline) processAirQuality() ([]models.AirQualitySummary, error) {
	path := p.cfg.AirQualityWorkbookPath()
	p.logger.Info("Loading air quality workbook", zap.String("path", path), zap.String("sheet", p.cfg.Paths.AirQualitySheet))

	raw, err := storage.ReadWorkbookSheet(path, p.cfg.Paths.AirQualitySheet)
	if err != nil {
		return nil, err
	}

	rows, err := p.airQuality.Transform(raw)
	if err != nil {
		return nil, err
	}

	output := p.cfg.AirQualityOutputPath()
	if err := storage.SaveAirQuality(output, rows, p.airQuality.Parameters()); err != nil {
		return nil, err
	}
	p.metrics.AddRows("air_quality", len(rows))
	p.logger.Info("Air quality data saved", zap.String("path", output), zap.Int("rows", len(rows)))

	return rows, nil
}

func (p *Pipeline) processPedestrian() ([]models.PedestrianObservation, error) {
	paths, err := p.pedestrianFiles()
	if err != nil {
		return nil, err
	}
	p.logger.Info("Loading pedestrian count files", zap.Int("files", len(paths)))

	raw, err := storage.ReadCSVs(paths)
	if err != nil {
		return nil, err
	}
	return p.pedestrian.Transform(raw)
}

// pedestrianFiles lists the monthly inputs in name order, leaving out the
// final output which lives in the same directory.
func (p *Pipeline) pedestrianFiles() ([]string, error) {
	pattern := filepath.Join(p.cfg.Paths.PedestrianDir, p.cfg.Paths.PedestrianPattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pattern, err)
	}

	output := filepath.Clean(p.cfg.PedestrianOutputPath())
	var paths []string
	for _, m := range matches {
		if filepath.Clean(m) != output {
			paths = append(paths, m)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files match %s", models.ErrEmptyInput, pattern)
	}
	return paths, nil
}

func (p *Pipeline) export(airQualityRows []models.AirQualitySummary, counts []models.PedestrianCount) error {
	if p.cfg.Export.Excel {
		path := filepath.Join(p.cfg.Paths.DataDir, "final_tables.xlsx")
		sheets := []storage.Sheet{
			storage.AirQualitySheet(airQualityRows, p.airQuality.Parameters()),
			storage.PedestrianSheet(counts),
		}
		if err := p.stage("export_xlsx", func() error { return storage.SaveExcel(path, sheets...) }); err != nil {
			return err
		}
		p.logger.Info("Excel export saved", zap.String("path", path))
	}

	if p.cfg.Export.Parquet {
		airQualityPath := replaceExt(p.cfg.AirQualityOutputPath(), ".parquet")
		pedestrianPath := replaceExt(p.cfg.PedestrianOutputPath(), ".parquet")
		err := p.stage("export_parquet", func() error {
			if err := storage.SaveAirQualityParquet(airQualityPath, airQualityRows); err != nil {
				return err
			}
			return storage.SavePedestrianParquet(pedestrianPath, counts)
		})
		if err != nil {
			return err
		}
		p.logger.Info("Parquet export saved",
			zap.String("air_quality", airQualityPath),
			zap.String("pedestrian", pedestrianPath))
	}
	return nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(name, time.Since(start))
	return err
}

func (p *Pipeline) LastRun() *runs.Run {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}

func (p *Pipeline) Runs() *runs.Store {
	return p.runs
}

func (p *Pipeline) Download(ctx context.Context) error {
	return p.downloader.Download(ctx)
}

func (p *Pipeline) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := map[string]interface{}{
		"success_count": p.successCount,
		"failure_count": p.failureCount,
	}
	if p.lastRun != nil {
		stats["last_run_id"] = p.lastRun.ID
		stats["last_run_status"] = p.lastRun.Status
		stats["last_run_started_at"] = p.lastRun.StartedAt
	}
	if p.results != nil {
		stats["results"] = p.results.GetStats()
	}
	return stats
}

// DistinctKeys returns the geocoder query keys in first-seen order.
func DistinctKeys(observations []models.PedestrianObservation) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, o := range observations {
		if !seen[o.QueryKey] {
			seen[o.QueryKey] = true
			keys = append(keys, o.QueryKey)
		}
	}
	return keys
}

// Join attaches coordinates to each observation by query key. Observations
// whose key has no coordinates keep nil latitude and longitude.
func Join(observations []models.PedestrianObservation, areas []models.AreaCoordinate) []models.PedestrianCount {
	index := make(map[string]*models.Coordinates, len(areas))
	for _, a := range areas {
		key := pedestrian.NormalizeKey(a.QueryKey)
		if _, ok := index[key]; !ok {
			index[key] = a.Coordinates
		}
	}

	out := make([]models.PedestrianCount, len(observations))
	for i, o := range observations {
		out[i] = models.PedestrianCount{
			Timestamp:       o.Timestamp,
			Location:        o.Location,
			PedestrianCount: o.PedestrianCount,
		}
		if c := index[pedestrian.NormalizeKey(o.QueryKey)]; c != nil {
			lat, lon := c.Latitude, c.Longitude
			out[i].Latitude = &lat
			out[i].Longitude = &lon
		}
	}
	return out
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
