package geocode

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"go.uber.org/zap"
)

const queryAreaField = "query_area"

// Store is the on-disk geocoding cache. Each entry is either the raw
// Nominatim result with a query_area field, or an empty array marking a
// query that found nothing.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries []interface{}
	index   map[string]models.Coordinates
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		index:  make(map[string]models.Coordinates),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the cache file. It reports false without error when the file
// does not exist yet.
func (s *Store) Load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading coordinate cache: %w", err)
	}

	var entries []interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return false, fmt.Errorf("decoding coordinate cache %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = entries
	s.index = make(map[string]models.Coordinates, len(entries))
	for _, e := range entries {
		s.indexEntry(e)
	}

	s.logger.Info("Loaded coordinate cache",
		zap.String("path", s.path),
		zap.Int("entries", len(entries)),
		zap.Int("resolved", len(s.index)))

	return true, nil
}

// Lookup returns the coordinates cached for key. Keys are compared trimmed
// and lower-cased.
func (s *Store) Lookup(key string) (models.Coordinates, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.index[normalize(key)]
	return c, ok
}

// Upsert records the geocoder result for key. A nil result stores an
// empty-result marker.
func (s *Store) Upsert(key string, result map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result == nil {
		s.entries = append(s.entries, []interface{}{})
		return
	}

	entry := make(map[string]interface{}, len(result)+1)
	for k, v := range result {
		entry[k] = v
	}
	entry[queryAreaField] = key

	norm := normalize(key)
	for i, e := range s.entries {
		if existing, ok := e.(map[string]interface{}); ok {
			if area, ok := existing[queryAreaField].(string); ok && normalize(area) == norm {
				s.entries[i] = entry
				s.indexEntry(entry)
				return
			}
		}
	}

	s.entries = append(s.entries, entry)
	s.indexEntry(entry)
}

// Persist writes the cache as an indented JSON array, replacing the file
// atomically.
func (s *Store) Persist() error {
	s.mu.RLock()
	entries := s.entries
	if entries == nil {
		entries = []interface{}{}
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding coordinate cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".area_coordinates-*")
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing coordinate cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing coordinate cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing coordinate cache: %w", err)
	}

	s.logger.Info("Location mapping saved", zap.String("path", s.path), zap.Int("entries", len(entries)))
	return nil
}

// Len returns the number of stored entries, markers included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// indexEntry must be called with mu held.
func (s *Store) indexEntry(e interface{}) {
	m, ok := e.(map[string]interface{})
	if !ok {
		return
	}
	area, ok := m[queryAreaField].(string)
	if !ok {
		return
	}
	lat, okLat := coordinate(m["lat"])
	lon, okLon := coordinate(m["lon"])
	if !okLat || !okLon {
		return
	}
	s.index[normalize(area)] = models.Coordinates{Latitude: lat, Longitude: lon}
}

// coordinate accepts both the string form Nominatim returns and plain
// numbers.
func coordinate(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
