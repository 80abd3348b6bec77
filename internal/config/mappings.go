package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var defaultMappings []byte

type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ImputerSettings struct {
	MaxIter   int     `yaml:"max_iter"`
	Seed      int64   `yaml:"seed"`
	Tolerance float64 `yaml:"tolerance"`
	Alpha     float64 `yaml:"alpha"`
	Order     string  `yaml:"order"`
}

type AirQualityRules struct {
	ExcludedParameters []string        `yaml:"excluded_parameters"`
	DroppedColumns     []string        `yaml:"dropped_columns"`
	NumericColumns     []string        `yaml:"numeric_columns"`
	UnclampedColumns   []string        `yaml:"unclamped_columns"`
	AggregateColumns   []string        `yaml:"aggregate_columns"`
	Imputer            ImputerSettings `yaml:"imputer"`
}

type PedestrianRules struct {
	LocationRenames  []Rename `yaml:"location_renames"`
	MissingLocations []string `yaml:"missing_locations"`
	NominatimNames   []Rename `yaml:"nominatim_names"`
	AreaSuffix       string   `yaml:"area_suffix"`
}

// Mappings are the fixed lookup tables the transformers are built from.
type Mappings struct {
	AirQuality AirQualityRules `yaml:"air_quality"`
	Pedestrian PedestrianRules `yaml:"pedestrian"`
}

func DefaultMappings() (*Mappings, error) {
	return parseMappings(defaultMappings)
}

// LoadMappings reads the tables from path, falling back to the embedded
// defaults when path is empty.
func LoadMappings(path string) (*Mappings, error) {
	if path == "" {
		return DefaultMappings()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mappings file %s: %w", path, err)
	}
	return parseMappings(data)
}

func parseMappings(data []byte) (*Mappings, error) {
	m := &Mappings{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing mappings: %w", err)
	}
	return m, nil
}
