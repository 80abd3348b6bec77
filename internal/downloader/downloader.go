package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

var months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Fetcher streams the body of a URL into w.
type Fetcher interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Target is one remote file and where it is stored.
type Target struct {
	URL  string
	Path string
}

type Downloader struct {
	fetcher       Fetcher
	airQualityDir string
	pedestrianDir string
	airQualityURL string
	workbookName  string
	pedestrianURL string
	year          int
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func New(cfg *config.Config, fetcher Fetcher, mt *metrics.Metrics, logger *zap.Logger) *Downloader {
	return &Downloader{
		fetcher:       fetcher,
		airQualityDir: cfg.Paths.AirQualityDir,
		pedestrianDir: cfg.Paths.PedestrianDir,
		airQualityURL: cfg.Download.AirQualityURL,
		workbookName:  cfg.Paths.AirQualityWorkbook,
		pedestrianURL: cfg.Download.PedestrianBaseURL,
		year:          cfg.Download.Year,
		metrics:       mt,
		logger:        logger,
	}
}

// Targets lists the EPA workbook followed by the twelve monthly pedestrian
// files.
func (d *Downloader) Targets() []Target {
	targets := []Target{{
		URL:  d.airQualityURL,
		Path: filepath.Join(d.airQualityDir, d.workbookName),
	}}

	base := d.pedestrianURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	for _, month := range months {
		targets = append(targets, Target{
			URL:  fmt.Sprintf("%s%s_%d.csv", base, month, d.year),
			Path: filepath.Join(d.pedestrianDir, fmt.Sprintf("%s_%d_pedestrian_level.csv", month, d.year)),
		})
	}
	return targets
}

// Download fetches every target. A failed file is logged and skipped; the
// returned error lists every failure and is informational.
func (d *Downloader) Download(ctx context.Context) error {
	d.logger.Info("Setting up data directory...")
	for _, dir := range []string{d.airQualityDir, d.pedestrianDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var result *multierror.Error
	for _, target := range d.Targets() {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}

		start := time.Now()
		d.logger.Info("Downloading file", zap.String("url", target.URL), zap.String("path", target.Path))

		n, err := d.fetch(ctx, target)
		if err != nil {
			d.logger.Error("Failed to download file", zap.String("url", target.URL), zap.Error(err))
			d.metrics.RecordDownload("failed")
			result = multierror.Append(result, fmt.Errorf("%s: %w", target.URL, err))
			continue
		}

		d.metrics.RecordDownload("ok")
		d.logger.Info("Downloaded file",
			zap.String("path", target.Path),
			zap.Int64("bytes", n),
			zap.Duration("duration", time.Since(start)))
	}

	d.logger.Info("Download completed.")
	return result.ErrorOrNil()
}

// fetch writes into a temporary file first so a failed transfer never
// replaces an existing copy.
func (d *Downloader) fetch(ctx context.Context, target Target) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target.Path), ".download-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := d.fetcher.Download(ctx, target.URL, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}

	if err := os.Rename(tmp.Name(), target.Path); err != nil {
		return n, err
	}
	return n, nil
}
