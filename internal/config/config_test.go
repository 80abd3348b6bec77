package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMappings(t *testing.T) {
	m, err := DefaultMappings()
	require.NoError(t, err)

	aq := m.AirQuality
	assert.Equal(t, []string{"BSP", "SWS", "VWD", "VWS", "Sigma05", "BPM2.5", "SIG05"}, aq.ExcludedParameters)
	assert.Len(t, aq.DroppedColumns, 8)
	assert.Equal(t, []string{"latitude", "longitude", "CO", "DBT", "NO2", "O3", "PM10", "PM2.5", "SO2"}, aq.NumericColumns)
	assert.Equal(t, []string{"latitude", "longitude", "DBT"}, aq.UnclampedColumns)
	assert.Equal(t, 10, aq.Imputer.MaxIter)
	assert.Equal(t, int64(0), aq.Imputer.Seed)

	ped := m.Pedestrian
	require.Len(t, ped.LocationRenames, 4)
	assert.Equal(t, Rename{From: "Lincoln - Swanston (W)", To: "Lincoln - Swanston (West)"}, ped.LocationRenames[0])
	assert.Equal(t, Rename{From: "Rmit Bld 80 - 445 Swanston Street", To: "Rmit Building 80"}, ped.LocationRenames[3])
	assert.Equal(t, []string{
		"William St - Little Lonsdale St (West)",
		"Errol St (West)",
		"Flagstaff Station (East)",
		"380 Elizabeth St",
		"La Trobe St - William St (South)",
	}, ped.MissingLocations)
	require.Len(t, ped.NominatimNames, 7)
	assert.Equal(t, ", Victoria, Australia", ped.AreaSuffix)
}

func TestLoadMappingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `
air_quality:
  excluded_parameters: [BSP]
  numeric_columns: [latitude, longitude, CO]
  aggregate_columns: [CO]
  imputer:
    max_iter: 3
    order: random
pedestrian:
  location_renames:
    - from: "Old"
      to: "New"
  area_suffix: ", Somewhere"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := LoadMappings(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BSP"}, m.AirQuality.ExcludedParameters)
	assert.Equal(t, 3, m.AirQuality.Imputer.MaxIter)
	assert.Equal(t, []Rename{{From: "Old", To: "New"}}, m.Pedestrian.LocationRenames)
	assert.Equal(t, ", Somewhere", m.Pedestrian.AreaSuffix)
}

func TestLoadMappingsMissingFile(t *testing.T) {
	_, err := LoadMappings(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("NOMINATIM_DELAY", "1s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, filepath.Join(dataDir, "air_quality"), cfg.Paths.AirQualityDir)
	assert.Equal(t, filepath.Join(dataDir, "air_quality", "2022_air_quality_vic.xlsx"), cfg.AirQualityWorkbookPath())
	assert.Equal(t, filepath.Join(dataDir, "pedestrian", "pedestrian_count_final.csv"), cfg.PedestrianOutputPath())
	assert.Equal(t, filepath.Join(dataDir, "area_mapping", "area_coordinates.json"), cfg.CoordinatesPath())
	assert.Equal(t, filepath.Join(dataDir, "area_mapping", "area_mapping.csv"), cfg.AreaMappingPath())
	assert.Equal(t, filepath.Join(dataDir, "runs.db"), cfg.Database.Path)
	assert.Equal(t, "@daily", cfg.Scheduler.Spec)
	assert.Equal(t, "AllData", cfg.Paths.AirQualitySheet)
	assert.Equal(t, "au", cfg.Geocoder.CountryCodes)
	assert.Equal(t, "1s", cfg.Geocoder.Delay.String())
	assert.Equal(t, 2022, cfg.Download.Year)
	assert.False(t, cfg.Download.OnRun)
	require.NotNil(t, cfg.Mappings)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	m, err := DefaultMappings()
	require.NoError(t, err)
	m.AirQuality.Imputer.MaxIter = 0
	m.AirQuality.AggregateColumns = append(m.AirQuality.AggregateColumns, "NOPE")

	cfg := &Config{Mappings: m}
	cfg.Server.Port = "8080"
	cfg.CircuitBreaker.Threshold = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOMINATIM_USER_AGENT")
	assert.Contains(t, err.Error(), "CIRCUIT_BREAKER_THRESHOLD")
	assert.Contains(t, err.Error(), "max_iter")
	assert.Contains(t, err.Error(), "NOPE")
}
