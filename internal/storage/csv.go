package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	AirQualityLeadingColumns = []string{"timestamp", "month", "date", "day", "hour", "season"}
	PedestrianColumns        = []string{"timestamp", "location", "pedestrian_count", "latitude", "longitude"}
	AreaMappingColumns       = []string{"nominatim_area", "latitude", "longitude"}
)

// ReadCSV loads a CSV file with every column kept as text. A UTF-8 byte
// order mark is stripped.
func ReadCSV(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return decodeCSV(f, path)
}

func decodeCSV(r io.Reader, name string) (dataframe.DataFrame, error) {
	reader := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	df := dataframe.ReadCSV(reader,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.HasHeader(true),
	)
	if df.Err != nil {
		return df, fmt.Errorf("parsing %s: %w", name, df.Err)
	}
	return df, nil
}

// ReadCSVs reads every file and concatenates them with Concat.
func ReadCSVs(paths []string) (dataframe.DataFrame, error) {
	frames := make([]dataframe.DataFrame, 0, len(paths))
	for _, p := range paths {
		df, err := ReadCSV(p)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		frames = append(frames, df)
	}
	return Concat(frames...)
}

// Concat stacks frames vertically. The result has the union of all columns in
// first-seen order; cells of columns a frame lacks are left empty.
func Concat(frames ...dataframe.DataFrame) (dataframe.DataFrame, error) {
	if len(frames) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: nothing to concatenate", models.ErrEmptyInput)
	}

	var names []string
	seen := make(map[string]bool)
	total := 0
	for _, df := range frames {
		for _, n := range df.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
		total += df.Nrow()
	}

	columns := make(map[string][]string, len(names))
	for _, n := range names {
		columns[n] = make([]string, 0, total)
	}

	for _, df := range frames {
		present := make(map[string]bool, df.Ncol())
		for _, n := range df.Names() {
			present[n] = true
			col := df.Col(n)
			for i := 0; i < col.Len(); i++ {
				e := col.Elem(i)
				if e.IsNA() {
					columns[n] = append(columns[n], "")
					continue
				}
				columns[n] = append(columns[n], e.String())
			}
		}
		for _, n := range names {
			if !present[n] {
				columns[n] = append(columns[n], make([]string, df.Nrow())...)
			}
		}
	}

	list := make([]series.Series, len(names))
	for i, n := range names {
		list[i] = series.New(columns[n], series.String, n)
	}
	df := dataframe.New(list...)
	if df.Err != nil {
		return df, fmt.Errorf("concatenating frames: %w", df.Err)
	}
	return df, nil
}

// writeRecords writes header and rows to path, creating parent directories.
func writeRecords(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	// gota refuses a header-only table
	if len(rows) == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		w.Flush()
		return w.Error()
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	records = append(records, rows...)

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return fmt.Errorf("building table for %s: %w", path, df.Err)
	}
	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// SaveAirQuality writes the aggregated air quality table. params fixes the
// order of the parameter columns.
func SaveAirQuality(path string, rows []models.AirQualitySummary, params []string) error {
	header := append(append([]string(nil), AirQualityLeadingColumns...), params...)

	out := make([][]string, len(rows))
	for i, r := range rows {
		record := []string{
			r.Timestamp.Format(models.TimestampLayout),
			strconv.Itoa(r.Month),
			r.Date,
			strconv.Itoa(r.Day),
			strconv.Itoa(r.Hour),
			r.Season,
		}
		for _, p := range params {
			v, ok := r.Values[p]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, formatFloat(v))
		}
		out[i] = record
	}
	return writeRecords(path, header, out)
}

// LoadAirQuality reads a table written by SaveAirQuality.
func LoadAirQuality(path string) ([]models.AirQualitySummary, []string, error) {
	df, err := ReadCSV(path)
	if err != nil {
		return nil, nil, err
	}

	names := df.Names()
	if err := requireColumns(names, AirQualityLeadingColumns); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	params := names[len(AirQualityLeadingColumns):]

	records := df.Records()[1:]
	out := make([]models.AirQualitySummary, len(records))
	for i, rec := range records {
		ts, err := time.Parse(models.TimestampLayout, rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: row %d timestamp %q", models.ErrTypeConversion, i, rec[0])
		}
		month, err1 := strconv.Atoi(rec[1])
		day, err2 := strconv.Atoi(rec[3])
		hour, err3 := strconv.Atoi(rec[4])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, nil, fmt.Errorf("%w: row %d calendar fields", models.ErrTypeConversion, i)
		}

		s := models.AirQualitySummary{
			Timestamp: ts,
			Month:     month,
			Date:      rec[2],
			Day:       day,
			Hour:      hour,
			Season:    rec[5],
			Values:    make(map[string]float64, len(params)),
		}
		for j, p := range params {
			v, ok, err := parseOptionalFloat(rec[len(AirQualityLeadingColumns)+j])
			if err != nil {
				return nil, nil, fmt.Errorf("row %d %s: %w", i, p, err)
			}
			if ok {
				s.Values[p] = v
			}
		}
		out[i] = s
	}
	return out, append([]string(nil), params...), nil
}

// SavePedestrian writes the final pedestrian table. Missing coordinates are
// written as empty cells.
func SavePedestrian(path string, rows []models.PedestrianCount) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.Timestamp.Format(models.TimestampLayout),
			r.Location,
			strconv.Itoa(r.PedestrianCount),
			formatOptional(r.Latitude),
			formatOptional(r.Longitude),
		}
	}
	return writeRecords(path, PedestrianColumns, out)
}

// LoadPedestrian reads a table written by SavePedestrian.
func LoadPedestrian(path string) ([]models.PedestrianCount, error) {
	df, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(df.Names(), PedestrianColumns); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	timestamps := cells(df.Col("timestamp"))
	locations := cells(df.Col("location"))
	counts := cells(df.Col("pedestrian_count"))
	lats := cells(df.Col("latitude"))
	lons := cells(df.Col("longitude"))

	out := make([]models.PedestrianCount, len(timestamps))
	for i := range timestamps {
		ts, err := time.Parse(models.TimestampLayout, timestamps[i])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d timestamp %q", models.ErrTypeConversion, i, timestamps[i])
		}
		count, err := strconv.Atoi(counts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d count %q", models.ErrTypeConversion, i, counts[i])
		}
		lat, err := optionalPointer(lats[i])
		if err != nil {
			return nil, fmt.Errorf("row %d latitude: %w", i, err)
		}
		lon, err := optionalPointer(lons[i])
		if err != nil {
			return nil, fmt.Errorf("row %d longitude: %w", i, err)
		}
		out[i] = models.PedestrianCount{
			Timestamp:       ts,
			Location:        locations[i],
			PedestrianCount: count,
			Latitude:        lat,
			Longitude:       lon,
		}
	}
	return out, nil
}

// SaveAreaMapping writes the query key to coordinate table.
func SaveAreaMapping(path string, rows []models.AreaCoordinate) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		lat, lon := "", ""
		if r.Coordinates != nil {
			lat = formatFloat(r.Coordinates.Latitude)
			lon = formatFloat(r.Coordinates.Longitude)
		}
		out[i] = []string{r.QueryKey, lat, lon}
	}
	return writeRecords(path, AreaMappingColumns, out)
}

// LoadAreaMapping reads a table written by SaveAreaMapping.
func LoadAreaMapping(path string) ([]models.AreaCoordinate, error) {
	df, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if err := requireColumns(df.Names(), AreaMappingColumns); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	keys := cells(df.Col("nominatim_area"))
	lats := cells(df.Col("latitude"))
	lons := cells(df.Col("longitude"))

	out := make([]models.AreaCoordinate, len(keys))
	for i, key := range keys {
		out[i] = models.AreaCoordinate{QueryKey: key}
		lat, err := optionalPointer(lats[i])
		if err != nil {
			return nil, fmt.Errorf("row %d latitude: %w", i, err)
		}
		lon, err := optionalPointer(lons[i])
		if err != nil {
			return nil, fmt.Errorf("row %d longitude: %w", i, err)
		}
		if lat != nil && lon != nil {
			out[i].Coordinates = &models.Coordinates{Latitude: *lat, Longitude: *lon}
		}
	}
	return out, nil
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

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseOptionalFloat(value string) (float64, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "NaN" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q is not numeric", models.ErrTypeConversion, value)
	}
	return v, true, nil
}

func optionalPointer(value string) (*float64, error) {
	v, ok, err := parseOptionalFloat(value)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}
