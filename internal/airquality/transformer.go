package airquality

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	colTimestamp = "datetime_AEST"
	colLocation  = "location_name"
	colLatitude  = "latitude"
	colLongitude = "longitude"
	colParameter = "parameter_name"
	colValue     = "value"
)

var keyColumns = []string{colTimestamp, colLocation, colLatitude, colLongitude, colParameter, colValue}

type Transformer struct {
	rules     config.AirQualityRules
	excluded  map[string]bool
	unclamped map[string]bool
	imputer   *Imputer
	logger    *zap.Logger
}

func NewTransformer(rules config.AirQualityRules, logger *zap.Logger) *Transformer {
	t := &Transformer{
		rules:     copyRules(rules),
		excluded:  make(map[string]bool, len(rules.ExcludedParameters)),
		unclamped: make(map[string]bool, len(rules.UnclampedColumns)),
		imputer:   NewImputer(rules.Imputer),
		logger:    logger,
	}
	for _, p := range rules.ExcludedParameters {
		t.excluded[p] = true
	}
	for _, c := range rules.UnclampedColumns {
		t.unclamped[c] = true
	}
	return t
}

func copyRules(r config.AirQualityRules) config.AirQualityRules {
	return config.AirQualityRules{
		ExcludedParameters: append([]string(nil), r.ExcludedParameters...),
		DroppedColumns:     append([]string(nil), r.DroppedColumns...),
		NumericColumns:     append([]string(nil), r.NumericColumns...),
		UnclampedColumns:   append([]string(nil), r.UnclampedColumns...),
		AggregateColumns:   append([]string(nil), r.AggregateColumns...),
		Imputer:            r.Imputer,
	}
}

// Parameters returns the aggregated parameter columns in output order.
func (t *Transformer) Parameters() []string {
	return append([]string(nil), t.rules.AggregateColumns...)
}

type pivotKey struct {
	timestamp string
	location  string
	latitude  string
	longitude string
}

type pivotRow struct {
	key       pivotKey
	timestamp time.Time
	latitude  float64
	longitude float64
	values    map[string]float64
}

// Clean filters, pivots, casts and imputes the raw long-format readings into
// one row per (timestamp, station).
func (t *Transformer) Clean(raw dataframe.DataFrame) ([]models.AirQualityReading, error) {
	if raw.Err != nil {
		return nil, fmt.Errorf("raw air quality table: %w", raw.Err)
	}

	required := append(append([]string(nil), keyColumns...), t.rules.DroppedColumns...)
	if err := requireColumns(raw.Names(), required); err != nil {
		return nil, err
	}
	if raw.Nrow() == 0 {
		return nil, fmt.Errorf("%w: no air quality readings", models.ErrEmptyInput)
	}

	df := raw.Drop(t.rules.DroppedColumns)
	if df.Err != nil {
		return nil, fmt.Errorf("dropping metadata columns: %w", df.Err)
	}

	timestamps := cells(df.Col(colTimestamp))
	locations := cells(df.Col(colLocation))
	latitudes := cells(df.Col(colLatitude))
	longitudes := cells(df.Col(colLongitude))
	parameters := cells(df.Col(colParameter))
	values := cells(df.Col(colValue))

	index := make(map[pivotKey]int)
	var rows []*pivotRow
	seenParameters := make(map[string]bool)
	excludedCount := 0

	for i := range parameters {
		parameter := parameters[i]
		if t.excluded[parameter] {
			excludedCount++
			continue
		}
		seenParameters[parameter] = true

		key := pivotKey{
			timestamp: timestamps[i],
			location:  locations[i],
			latitude:  latitudes[i],
			longitude: longitudes[i],
		}

		pos, ok := index[key]
		if !ok {
			row, err := newPivotRow(key)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			pos = len(rows)
			index[key] = pos
			rows = append(rows, row)
		}

		row := rows[pos]
		if _, dup := row.values[parameter]; dup {
			return nil, fmt.Errorf("%w: %s at %s for %s", models.ErrDuplicateKey, parameter, key.location, key.timestamp)
		}

		v, err := parseFloat(values[i])
		if err != nil {
			return nil, fmt.Errorf("row %d, parameter %s: %w", i, parameter, err)
		}
		row.values[parameter] = v
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: every reading was excluded", models.ErrEmptyInput)
	}

	params := t.measuredColumns()
	for _, p := range params {
		if !seenParameters[p] {
			return nil, fmt.Errorf("%w: parameter %s", models.ErrMissingColumn, p)
		}
	}

	t.logger.Debug("Pivoted air quality readings",
		zap.Int("raw_rows", len(parameters)),
		zap.Int("excluded_rows", excludedCount),
		zap.Int("station_rows", len(rows)))

	sort.SliceStable(rows, func(a, b int) bool {
		ra, rb := rows[a], rows[b]
		if !ra.timestamp.Equal(rb.timestamp) {
			return ra.timestamp.Before(rb.timestamp)
		}
		if ra.key.location != rb.key.location {
			return ra.key.location < rb.key.location
		}
		if ra.latitude != rb.latitude {
			return ra.latitude < rb.latitude
		}
		return ra.longitude < rb.longitude
	})

	matrix := t.numericMatrix(rows)
	filled := t.imputer.FitTransform(matrix)

	readings := make([]models.AirQualityReading, len(rows))
	for i, row := range rows {
		reading := models.AirQualityReading{
			Timestamp: row.timestamp,
			Location:  row.key.location,
			Values:    make(map[string]float64, len(params)),
		}
		for j, col := range t.rules.NumericColumns {
			v := filled.At(i, j)
			if v < 0 && !t.unclamped[col] {
				v = 0
			}
			switch col {
			case colLatitude:
				reading.Latitude = v
			case colLongitude:
				reading.Longitude = v
			default:
				reading.Values[col] = v
			}
		}
		readings[i] = reading
	}

	return readings, nil
}

func newPivotRow(key pivotKey) (*pivotRow, error) {
	ts, err := parseTimestamp(key.timestamp)
	if err != nil {
		return nil, err
	}
	lat, err := parseFloat(key.latitude)
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := parseFloat(key.longitude)
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	return &pivotRow{
		key:       key,
		timestamp: ts,
		latitude:  lat,
		longitude: lon,
		values:    make(map[string]float64),
	}, nil
}

// measuredColumns are the numeric columns that come from the pivot rather
// than from the station coordinates.
func (t *Transformer) measuredColumns() []string {
	var out []string
	for _, col := range t.rules.NumericColumns {
		if col != colLatitude && col != colLongitude {
			out = append(out, col)
		}
	}
	return out
}

func (t *Transformer) numericMatrix(rows []*pivotRow) *mat.Dense {
	m := mat.NewDense(len(rows), len(t.rules.NumericColumns), nil)
	for i, row := range rows {
		for j, col := range t.rules.NumericColumns {
			switch col {
			case colLatitude:
				m.Set(i, j, row.latitude)
			case colLongitude:
				m.Set(i, j, row.longitude)
			default:
				v, ok := row.values[col]
				if !ok {
					v = math.NaN()
				}
				m.Set(i, j, v)
			}
		}
	}
	return m
}

// Wrangle derives the calendar attributes of every reading.
func (t *Transformer) Wrangle(readings []models.AirQualityReading) []models.AirQualityObservation {
	out := make([]models.AirQualityObservation, len(readings))
	for i, r := range readings {
		month := int(r.Timestamp.Month())
		out[i] = models.AirQualityObservation{
			AirQualityReading: r,
			Month:             month,
			Date:              r.Timestamp.Format(models.DateLayout),
			Day:               r.Timestamp.Day(),
			Hour:              r.Timestamp.Hour(),
			Season:            Season(month),
		}
	}
	return out
}

// Aggregate collapses all stations reporting at the same timestamp into a
// single row holding the median of each aggregated parameter.
func (t *Transformer) Aggregate(observations []models.AirQualityObservation) []models.AirQualitySummary {
	type group struct {
		first  models.AirQualityObservation
		values map[string][]float64
	}

	groups := make(map[int64]*group)
	var order []int64
	for _, o := range observations {
		key := o.Timestamp.UnixNano()
		g, ok := groups[key]
		if !ok {
			g = &group{first: o, values: make(map[string][]float64)}
			groups[key] = g
			order = append(order, key)
		}
		for _, col := range t.rules.AggregateColumns {
			if v, ok := o.Values[col]; ok && !math.IsNaN(v) {
				g.values[col] = append(g.values[col], v)
			}
		}
	}

	sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })

	out := make([]models.AirQualitySummary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		summary := models.AirQualitySummary{
			Timestamp: g.first.Timestamp,
			Month:     g.first.Month,
			Date:      g.first.Date,
			Day:       g.first.Day,
			Hour:      g.first.Hour,
			Season:    g.first.Season,
			Values:    make(map[string]float64, len(t.rules.AggregateColumns)),
		}
		for _, col := range t.rules.AggregateColumns {
			summary.Values[col] = Median(g.values[col])
		}
		out = append(out, summary)
	}
	return out
}

// Transform runs Clean, Wrangle and Aggregate in sequence.
func (t *Transformer) Transform(raw dataframe.DataFrame) ([]models.AirQualitySummary, error) {
	t.logger.Info("Cleaning air quality data...")
	readings, err := t.Clean(raw)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Wrangling air quality data...")
	observations := t.Wrangle(readings)

	t.logger.Info("Aggregating air quality data...")
	summaries := t.Aggregate(observations)

	t.logger.Info("Processing air quality data completed.",
		zap.Int("stations_rows", len(readings)),
		zap.Int("timestamps", len(summaries)))

	return summaries, nil
}

// Median returns the middle value of values, or the mean of the two middle
// values for an even count. It returns NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func requireColumns(names []string, required []string) error {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", models.ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// cells returns the column as strings with NA cells as "".
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

func parseFloat(value string) (float64, error) {
	if value == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", models.ErrTypeConversion, value)
	}
	return v, nil
}
