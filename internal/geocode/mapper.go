package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/storage"
	"go.uber.org/zap"
)

// Geocoder resolves a free-text place query into the raw attributes of the
// best match. A nil result with a nil error means nothing matched.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (map[string]interface{}, error)
}

type AreaMapper struct {
	store       *Store
	geocoder    Geocoder
	delay       time.Duration
	mappingPath string
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *metrics.Metrics
	logger      *zap.Logger

	lastQueries int
}

type Option func(*AreaMapper)

// WithSleeper replaces the pause taken before every geocoder request.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *AreaMapper) {
		m.sleep = sleep
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *AreaMapper) {
		m.metrics = mt
	}
}

func NewAreaMapper(store *Store, geocoder Geocoder, delay time.Duration, mappingPath string, logger *zap.Logger, opts ...Option) *AreaMapper {
	m := &AreaMapper{
		store:       store,
		geocoder:    geocoder,
		delay:       delay,
		mappingPath: mappingPath,
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map resolves every key to coordinates. When the cache file does not exist
// yet each distinct key is queried once, in order, and the cache is written.
// An existing cache is used as is, without any query. The key table is always
// written to the area mapping file.
func (m *AreaMapper) Map(ctx context.Context, keys []string) ([]models.AreaCoordinate, error) {
	m.logger.Info("Creating area to coordinates mapping...")

	m.lastQueries = 0
	found, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	if found {
		m.logger.Info("Found existing location mapping file", zap.String("path", m.store.Path()))
	} else {
		m.logger.Info("Location mapping file does not exist. Creating...", zap.String("path", m.store.Path()))
		if err := m.populate(ctx, distinct(keys)); err != nil {
			return nil, err
		}
	}

	out := make([]models.AreaCoordinate, len(keys))
	for i, key := range keys {
		out[i] = models.AreaCoordinate{QueryKey: key}
		if c, ok := m.store.Lookup(key); ok {
			coords := c
			out[i].Coordinates = &coords
		}
	}

	if err := storage.SaveAreaMapping(m.mappingPath, out); err != nil {
		return nil, err
	}
	m.logger.Info("Area coordinates mapping saved", zap.String("path", m.mappingPath), zap.Int("areas", len(out)))

	return out, nil
}

func (m *AreaMapper) populate(ctx context.Context, keys []string) error {
	for _, key := range keys {
		m.logger.Info("Querying area", zap.String("area", key))

		if err := m.sleep(ctx, m.delay); err != nil {
			return fmt.Errorf("geocoding interrupted: %w", err)
		}

		result, err := m.geocoder.Geocode(ctx, key)
		m.lastQueries++
		switch {
		case err != nil:
			m.logger.Warn("Area query failed, storing empty result", zap.String("area", key), zap.Error(err))
			m.metrics.RecordGeocode("error")
			result = nil
		case result == nil:
			m.logger.Warn("Area can't be queried, storing empty result", zap.String("area", key))
			m.metrics.RecordGeocode("miss")
		default:
			m.metrics.RecordGeocode("found")
		}

		m.store.Upsert(key, result)
	}

	return m.store.Persist()
}

// LastQueries is the number of geocoder requests made by the latest Map.
func (m *AreaMapper) LastQueries() int {
	return m.lastQueries
}

func distinct(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	var out []string
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
