package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// ReadWorkbookSheet loads one sheet of an xlsx workbook as a text table. The
// first row is the header; numeric and date cells keep their stored value.
func ReadWorkbookSheet(path, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("opening workbook %s: %w", path, err)
	}

	sheet, ok := xlFile.Sheet[sheetName]
	if !ok {
		return dataframe.DataFrame{}, fmt.Errorf("%w: sheet %s not found in %s", models.ErrMissingColumn, sheetName, path)
	}

	return convertSheetToDataFrame(sheet)
}

func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: sheet %s has no rows", models.ErrEmptyInput, sheet.Name)
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: sheet %s has no header", models.ErrEmptyInput, sheet.Name)
	}

	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for _, row := range sheet.Rows[1:] {
		if row == nil || emptyRow(row) {
			continue
		}
		for i := range headers {
			value := ""
			if i < len(row.Cells) && row.Cells[i] != nil {
				value = row.Cells[i].Value
			}
			columns[i] = append(columns[i], value)
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, colName)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return df, fmt.Errorf("converting sheet %s: %w", sheet.Name, df.Err)
	}
	return df, nil
}

func emptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if cell != nil && strings.TrimSpace(cell.Value) != "" {
			return false
		}
	}
	return true
}

// Sheet is one worksheet of an Excel export.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// SaveExcel writes sheets into a new workbook at path.
func SaveExcel(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("%w: no sheets to export", models.ErrEmptyInput)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet.Name, err)
		}

		// Write header
		for col, name := range sheet.Header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(sheet.Name, cell, name); err != nil {
				return fmt.Errorf("writing header of %s: %w", sheet.Name, err)
			}
		}

		// Write data
		for rowIdx, row := range sheet.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
			values := row
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				return fmt.Errorf("writing row %d of %s: %w", rowIdx, sheet.Name, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// AirQualitySheet lays out the aggregated table for SaveExcel.
func AirQualitySheet(rows []models.AirQualitySummary, params []string) Sheet {
	sheet := Sheet{
		Name:   "air_quality",
		Header: append(append([]string(nil), AirQualityLeadingColumns...), params...),
		Rows:   make([][]interface{}, len(rows)),
	}
	for i, r := range rows {
		values := []interface{}{
			r.Timestamp.Format(models.TimestampLayout),
			r.Month,
			r.Date,
			r.Day,
			r.Hour,
			r.Season,
		}
		for _, p := range params {
			values = append(values, r.Values[p])
		}
		sheet.Rows[i] = values
	}
	return sheet
}

// PedestrianSheet lays out the final pedestrian table for SaveExcel.
func PedestrianSheet(rows []models.PedestrianCount) Sheet {
	sheet := Sheet{
		Name:   "pedestrian",
		Header: append([]string(nil), PedestrianColumns...),
		Rows:   make([][]interface{}, len(rows)),
	}
	for i, r := range rows {
		var lat, lon interface{}
		if r.Latitude != nil {
			lat = *r.Latitude
		}
		if r.Longitude != nil {
			lon = *r.Longitude
		}
		sheet.Rows[i] = []interface{}{
			r.Timestamp.Format(models.TimestampLayout),
			r.Location,
			r.PedestrianCount,
			lat,
			lon,
		}
	}
	return sheet
}
