package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	Paths struct {
		DataDir            string
		AirQualityDir      string
		PedestrianDir      string
		AreaMappingDir     string
		AirQualityWorkbook string
		AirQualitySheet    string
		AirQualityOutput   string
		PedestrianPattern  string
		PedestrianOutput   string
		CoordinatesFile    string
		AreaMappingFile    string
	}

	Download struct {
		OnRun             bool
		AirQualityURL     string
		PedestrianBaseURL string
		Year              int
		Timeout           time.Duration
	}

	Geocoder struct {
		BaseURL      string
		UserAgent    string
		CountryCodes string
		Delay        time.Duration
		Timeout      time.Duration
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Scheduler struct {
		Enabled bool
		Spec    string
	}

	Watcher struct {
		Enabled  bool
		Debounce time.Duration
	}

	Export struct {
		Excel   bool
		Parquet bool
	}

	Database struct {
		Path string
	}

	MappingsFile string
	Mappings     *Mappings
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "30s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Data layout
	dataDir := getEnv("DATA_DIR", "data")
	cfg.Paths.DataDir = dataDir
	cfg.Paths.AirQualityDir = getEnv("AIR_QUALITY_DIR", filepath.Join(dataDir, "air_quality"))
	cfg.Paths.PedestrianDir = getEnv("PEDESTRIAN_DIR", filepath.Join(dataDir, "pedestrian"))
	cfg.Paths.AreaMappingDir = getEnv("AREA_MAPPING_DIR", filepath.Join(dataDir, "area_mapping"))
	cfg.Paths.AirQualityWorkbook = getEnv("AIR_QUALITY_WORKBOOK", "2022_air_quality_vic.xlsx")
	cfg.Paths.AirQualitySheet = getEnv("AIR_QUALITY_SHEET", "AllData")
	cfg.Paths.AirQualityOutput = getEnv("AIR_QUALITY_OUTPUT", "air_quality_final.csv")
	cfg.Paths.PedestrianPattern = getEnv("PEDESTRIAN_PATTERN", "*_pedestrian_level.csv")
	cfg.Paths.PedestrianOutput = getEnv("PEDESTRIAN_OUTPUT", "pedestrian_count_final.csv")
	cfg.Paths.CoordinatesFile = getEnv("AREA_COORDINATES_FILE", "area_coordinates.json")
	cfg.Paths.AreaMappingFile = getEnv("AREA_MAPPING_FILE", "area_mapping.csv")

	// Downloader configuration
	cfg.Download.OnRun = parseBool(getEnv("DOWNLOAD_ON_RUN", "false"))
	cfg.Download.AirQualityURL = getEnv("AIR_QUALITY_URL",
		"https://apps.epa.vic.gov.au/datavic/Data_Vic/AirWatch/2022_All_sites_air_quality_hourly_avg_AIR-I-F-V-VH-O-S1-DB-M2-4-0.xlsx")
	cfg.Download.PedestrianBaseURL = getEnv("PEDESTRIAN_BASE_URL", "https://www.pedestrian.melbourne.vic.gov.au/datadownload/")
	cfg.Download.Year = parseInt(getEnv("PEDESTRIAN_YEAR", "2022"))
	cfg.Download.Timeout = parseDuration(getEnv("DOWNLOAD_TIMEOUT", "5m"))

	// Geocoder configuration
	cfg.Geocoder.BaseURL = getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocoder.UserAgent = getEnv("NOMINATIM_USER_AGENT", "AreaMapper")
	cfg.Geocoder.CountryCodes = getEnv("NOMINATIM_COUNTRY_CODES", "au")
	cfg.Geocoder.Delay = parseDuration(getEnv("NOMINATIM_DELAY", "5s"))
	cfg.Geocoder.Timeout = parseDuration(getEnv("NOMINATIM_TIMEOUT", "10s"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "3"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Scheduler configuration
	cfg.Scheduler.Enabled = parseBool(getEnv("SCHEDULER_ENABLED", "true"))
	cfg.Scheduler.Spec = getEnv("SCHEDULE", "@daily")

	// Watcher configuration
	cfg.Watcher.Enabled = parseBool(getEnv("WATCH_ENABLED", "false"))
	cfg.Watcher.Debounce = parseDuration(getEnv("WATCH_DEBOUNCE", "10s"))

	// Export configuration
	cfg.Export.Excel = parseBool(getEnv("EXPORT_XLSX", "false"))
	cfg.Export.Parquet = parseBool(getEnv("EXPORT_PARQUET", "false"))

	cfg.Database.Path = getEnv("RUNS_DB_PATH", filepath.Join(dataDir, "runs.db"))

	cfg.MappingsFile = getEnv("MAPPINGS_FILE", "")
	mappings, err := LoadMappings(cfg.MappingsFile)
	if err != nil {
		return nil, err
	}
	cfg.Mappings = mappings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port == "" {
		result = multierror.Append(result, errors.New("FIBER_PORT must not be empty"))
	}
	if c.Geocoder.UserAgent == "" {
		result = multierror.Append(result, errors.New("NOMINATIM_USER_AGENT must not be empty"))
	}
	if c.Geocoder.Delay < 0 {
		result = multierror.Append(result, fmt.Errorf("NOMINATIM_DELAY must not be negative, got %s", c.Geocoder.Delay))
	}
	if c.CircuitBreaker.Threshold < 1 {
		result = multierror.Append(result, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be positive, got %d", c.CircuitBreaker.Threshold))
	}

	if c.Mappings == nil {
		result = multierror.Append(result, errors.New("mapping tables not loaded"))
		return result.ErrorOrNil()
	}

	aq := c.Mappings.AirQuality
	numeric := make(map[string]bool, len(aq.NumericColumns))
	for _, col := range aq.NumericColumns {
		numeric[col] = true
	}
	for _, col := range []string{"latitude", "longitude"} {
		if !numeric[col] {
			result = multierror.Append(result, fmt.Errorf("numeric_columns must include %s", col))
		}
	}
	for _, col := range aq.AggregateColumns {
		if !numeric[col] {
			result = multierror.Append(result, fmt.Errorf("aggregate column %s is not a numeric column", col))
		}
	}
	if aq.Imputer.MaxIter < 1 {
		result = multierror.Append(result, fmt.Errorf("imputer max_iter must be positive, got %d", aq.Imputer.MaxIter))
	}
	if aq.Imputer.Order != "ascending" && aq.Imputer.Order != "random" {
		result = multierror.Append(result, fmt.Errorf("imputer order must be ascending or random, got %q", aq.Imputer.Order))
	}

	for i, r := range c.Mappings.Pedestrian.LocationRenames {
		if r.From == "" || r.To == "" {
			result = multierror.Append(result, fmt.Errorf("location rename %d has an empty side", i))
		}
	}
	for i, r := range c.Mappings.Pedestrian.NominatimNames {
		if r.From == "" || r.To == "" {
			result = multierror.Append(result, fmt.Errorf("nominatim name %d has an empty side", i))
		}
	}

	return result.ErrorOrNil()
}

// AirQualityWorkbookPath and the helpers below resolve file names against
// their directories.
func (c *Config) AirQualityWorkbookPath() string {
	return filepath.Join(c.Paths.AirQualityDir, c.Paths.AirQualityWorkbook)
}

func (c *Config) AirQualityOutputPath() string {
	return filepath.Join(c.Paths.AirQualityDir, c.Paths.AirQualityOutput)
}

func (c *Config) PedestrianOutputPath() string {
	return filepath.Join(c.Paths.PedestrianDir, c.Paths.PedestrianOutput)
}

func (c *Config) CoordinatesPath() string {
	return filepath.Join(c.Paths.AreaMappingDir, c.Paths.CoordinatesFile)
}

func (c *Config) AreaMappingPath() string {
	return filepath.Join(c.Paths.AreaMappingDir, c.Paths.AreaMappingFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}
