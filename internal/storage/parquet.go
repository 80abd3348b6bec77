package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

func SaveAirQualityParquet(path string, rows []models.AirQualitySummary) error {
	records := make([]interface{}, len(rows))
	for i, r := range rows {
		records[i] = r.Parquet()
	}
	return writeParquet(path, new(models.AirQualityParquet), records)
}

func SavePedestrianParquet(path string, rows []models.PedestrianCount) error {
	records := make([]interface{}, len(rows))
	for i, r := range rows {
		records[i] = r.Parquet()
	}
	return writeParquet(path, new(models.PedestrianParquet), records)
}

func writeParquet(path string, schema interface{}, records []interface{}) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, schema, 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("failed to write record to parquet for %s: %w", path, err)
		}
	}

	// WriteStop can panic on malformed rows
	var stopErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					stopErr = err
				} else {
					stopErr = fmt.Errorf("panic value: %v", r)
				}
			}
		}()
		stopErr = pw.WriteStop()
	}()
	if stopErr != nil {
		return fmt.Errorf("failed to stop parquet writer for %s: %w", path, stopErr)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
