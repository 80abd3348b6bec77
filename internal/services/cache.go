package services

import (
	"errors"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/storage"
	"go.uber.org/zap"
)

// ResultCache holds the latest final tables for the API.
type ResultCache struct {
	mu         sync.RWMutex
	airQuality []models.AirQualitySummary
	parameters []string
	pedestrian []models.PedestrianCount
	areas      []models.AreaCoordinate
	updatedAt  time.Time
	logger     *zap.Logger
}

func NewResultCache(logger *zap.Logger) *ResultCache {
	return &ResultCache{logger: logger}
}

// Publish replaces every table at once.
func (c *ResultCache) Publish(airQuality []models.AirQualitySummary, parameters []string, pedestrian []models.PedestrianCount, areas []models.AreaCoordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.airQuality = airQuality
	c.parameters = append([]string(nil), parameters...)
	c.pedestrian = pedestrian
	c.areas = areas
	c.updatedAt = time.Now()

	c.logger.Debug("Results published",
		zap.Int("air_quality_rows", len(airQuality)),
		zap.Int("pedestrian_rows", len(pedestrian)),
		zap.Int("areas", len(areas)))
}

// WarmLoad fills the cache from output files of an earlier run. Missing files
// are skipped.
func (c *ResultCache) WarmLoad(airQualityPath, pedestrianPath, areaMappingPath string) error {
	airQuality, parameters, err := storage.LoadAirQuality(airQualityPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	pedestrian, err := storage.LoadPedestrian(pedestrianPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	areas, err := storage.LoadAreaMapping(areaMappingPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if airQuality == nil && pedestrian == nil && areas == nil {
		c.logger.Info("No previous results found")
		return nil
	}

	c.Publish(airQuality, parameters, pedestrian, areas)
	c.logger.Info("Loaded previous results",
		zap.Int("air_quality_rows", len(airQuality)),
		zap.Int("pedestrian_rows", len(pedestrian)))
	return nil
}

// AirQuality returns the hourly medians, optionally restricted to a date
// (YYYY-MM-DD) and a season. It also returns the parameter columns.
func (c *ResultCache) AirQuality(date, season string) ([]models.AirQualitySummary, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.AirQualitySummary, 0)
	for _, row := range c.airQuality {
		if date != "" && row.Date != date {
			continue
		}
		if season != "" && !strings.EqualFold(row.Season, season) {
			continue
		}
		out = append(out, row)
	}
	return out, append([]string(nil), c.parameters...)
}

// Pedestrian returns counts for a location (case-insensitive) and date. A
// limit of zero or less returns every match.
func (c *ResultCache) Pedestrian(location, date string, limit int) []models.PedestrianCount {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.PedestrianCount, 0)
	for _, row := range c.pedestrian {
		if location != "" && !strings.EqualFold(row.Location, location) {
			continue
		}
		if date != "" && row.Timestamp.Format(models.DateLayout) != date {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (c *ResultCache) Areas() []models.AreaCoordinate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]models.AreaCoordinate{}, c.areas...)
}

func (c *ResultCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

func (c *ResultCache) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	locations := make(map[string]struct{})
	for _, row := range c.pedestrian {
		locations[row.Location] = struct{}{}
	}

	return map[string]interface{}{
		"air_quality_rows": len(c.airQuality),
		"pedestrian_rows":  len(c.pedestrian),
		"locations":        len(locations),
		"areas":            len(c.areas),
		"updated_at":       c.updatedAt,
	}
}
