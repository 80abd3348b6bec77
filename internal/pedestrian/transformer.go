package pedestrian

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
)

const (
	colDate = "Date"
	colHour = "Hour"

	dateLayout = "2/1/2006"
)

var numericCell = regexp.MustCompile(`^\d+\.?\d*$`)

type Transformer struct {
	rules     config.PedestrianRules
	nominatim map[string]string
	logger    *zap.Logger
}

func NewTransformer(rules config.PedestrianRules, logger *zap.Logger) *Transformer {
	t := &Transformer{
		rules: config.PedestrianRules{
			LocationRenames:  append([]config.Rename(nil), rules.LocationRenames...),
			MissingLocations: append([]string(nil), rules.MissingLocations...),
			NominatimNames:   append([]config.Rename(nil), rules.NominatimNames...),
			AreaSuffix:       rules.AreaSuffix,
		},
		nominatim: make(map[string]string, len(rules.NominatimNames)),
		logger:    logger,
	}
	for _, r := range rules.NominatimNames {
		t.nominatim[r.From] = r.To
	}
	return t
}

// CleanTable is the wide pedestrian table after cleaning: one row per
// (Date, Hour) and one integer column per canonical location.
type CleanTable struct {
	Dates     []time.Time
	Hours     []int
	Locations []string
	Counts    [][]int
}

func (c *CleanTable) Len() int {
	return len(c.Dates)
}

// Column returns the counts of a location column.
func (c *CleanTable) Column(location string) ([]int, bool) {
	for i, name := range c.Locations {
		if name == location {
			return c.Counts[i], true
		}
	}
	return nil, false
}

// rawTable keeps the columns positionally since names may repeat while
// cleaning.
type rawTable struct {
	names   []string
	columns [][]string
}

func (r *rawTable) index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *rawTable) rows() int {
	if len(r.columns) == 0 {
		return 0
	}
	return len(r.columns[0])
}

// Clean normalizes headers, replaces invalid counts with 0, renames known
// sensors, casts the table and sums columns that end up with the same name.
func (t *Transformer) Clean(raw dataframe.DataFrame) (*CleanTable, error) {
	if raw.Ncol() == 0 || raw.Nrow() == 0 {
		return nil, fmt.Errorf("%w: no pedestrian counts", models.ErrEmptyInput)
	}
	if raw.Err != nil {
		return nil, fmt.Errorf("raw pedestrian table: %w", raw.Err)
	}

	names, err := CleanColumns(raw.Names())
	if err != nil {
		return nil, err
	}

	table := &rawTable{names: names, columns: make([][]string, len(names))}
	for i, original := range raw.Names() {
		table.columns[i] = cells(raw.Col(original))
	}

	dateIdx, hourIdx := table.index(colDate), table.index(colHour)
	if dateIdx < 0 || hourIdx < 0 {
		return nil, fmt.Errorf("%w: %s and %s are required", models.ErrMissingColumn, colDate, colHour)
	}

	dates := t.handleNullValues(table, dateIdx)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no rows with a valid %s", models.ErrEmptyInput, colDate)
	}

	for i, name := range table.names {
		if i != dateIdx {
			table.names[i] = t.StandardizeColumnName(name)
		}
	}

	counts, err := castColumnTypes(table, dateIdx)
	if err != nil {
		return nil, err
	}

	clean := &CleanTable{Dates: dates}
	merged := make(map[string][]int)
	for i, name := range table.names {
		switch i {
		case dateIdx:
			continue
		case hourIdx:
			clean.Hours = counts[i]
			continue
		}

		if existing, ok := merged[name]; ok {
			t.logger.Debug("Merging duplicate location column", zap.String("location", name))
			for r, v := range counts[i] {
				existing[r] += v
			}
			continue
		}
		merged[name] = counts[i]
	}

	t.addMissingAreas(merged, len(dates))

	clean.Locations = make([]string, 0, len(merged))
	for name := range merged {
		clean.Locations = append(clean.Locations, name)
	}
	sort.Strings(clean.Locations)
	clean.Counts = make([][]int, len(clean.Locations))
	for i, name := range clean.Locations {
		clean.Counts[i] = merged[name]
	}

	return clean, nil
}

// handleNullValues drops rows without a parseable Date and replaces every
// other non-numeric cell with "0". It returns the parsed dates of the kept
// rows.
func (t *Transformer) handleNullValues(table *rawTable, dateIdx int) []time.Time {
	var keep []int
	var dates []time.Time
	for r, value := range table.columns[dateIdx] {
		if value == "" {
			continue
		}
		d, err := time.Parse(dateLayout, value)
		if err != nil {
			t.logger.Warn("Dropping row with invalid date", zap.Int("row", r), zap.String("date", value))
			continue
		}
		keep = append(keep, r)
		dates = append(dates, d)
	}

	dropped := table.rows() - len(keep)
	if dropped > 0 {
		t.logger.Info("Dropped pedestrian rows without a date", zap.Int("rows", dropped))
	}

	for c := range table.columns {
		filtered := make([]string, len(keep))
		for i, r := range keep {
			v := table.columns[c][r]
			if c != dateIdx && !numericCell.MatchString(v) {
				v = "0"
			}
			filtered[i] = v
		}
		table.columns[c] = filtered
	}
	return dates
}

// castColumnTypes converts every column except Date to integers. Decimal
// counts are truncated.
func castColumnTypes(table *rawTable, dateIdx int) ([][]int, error) {
	out := make([][]int, len(table.columns))
	for c, column := range table.columns {
		if c == dateIdx {
			continue
		}
		ints := make([]int, len(column))
		for r, v := range column {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, fmt.Errorf("%w: column %s row %d value %q", models.ErrTypeConversion, table.names[c], r, v)
			}
			ints[r] = int(f)
		}
		out[c] = ints
	}
	return out, nil
}

// addMissingAreas adds a zero column for every canonical location the month
// did not report.
func (t *Transformer) addMissingAreas(columns map[string][]int, rows int) {
	for _, name := range t.rules.MissingLocations {
		if _, ok := columns[name]; !ok {
			columns[name] = make([]int, rows)
		}
	}
}

// Wrangle melts the clean table into one observation per location and hour,
// location by location in table order.
func (t *Transformer) Wrangle(table *CleanTable) ([]models.PedestrianObservation, error) {
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: no pedestrian rows to wrangle", models.ErrEmptyInput)
	}
	if len(table.Hours) != table.Len() {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingColumn, colHour)
	}

	timestamps := make([]time.Time, table.Len())
	for i, d := range table.Dates {
		value := d.Format(models.DateLayout) + " " + fmt.Sprintf("%02d", table.Hours[i]) + ":00:00"
		ts, err := time.Parse(models.TimestampLayout, value)
		if err != nil {
			return nil, fmt.Errorf("%w: hour %d on %s", models.ErrTypeConversion, table.Hours[i], d.Format(models.DateLayout))
		}
		timestamps[i] = ts
	}

	out := make([]models.PedestrianObservation, 0, len(table.Locations)*table.Len())
	for i, location := range table.Locations {
		key := t.QueryKey(location)
		for r, ts := range timestamps {
			out = append(out, models.PedestrianObservation{
				Timestamp:       ts,
				Location:        location,
				PedestrianCount: table.Counts[i][r],
				QueryKey:        key,
			})
		}
	}
	return out, nil
}

// Transform runs Clean and Wrangle in sequence.
func (t *Transformer) Transform(raw dataframe.DataFrame) ([]models.PedestrianObservation, error) {
	t.logger.Info("Cleaning pedestrian count data...")
	table, err := t.Clean(raw)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Wrangling pedestrian count data...")
	observations, err := t.Wrangle(table)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Processing pedestrian count data completed.",
		zap.Int("hours", table.Len()),
		zap.Int("locations", len(table.Locations)),
		zap.Int("observations", len(observations)))

	return observations, nil
}

func cells(s series.Series) []string {
	out := make([]string, s.Len())
	for i := range out {
		e := s.Elem(i)
		if e.IsNA() {
			continue
		}
		out[i] = strings.TrimSpace(e.String())
	}
	return out
}
