package airquality

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
)

var timestampLayouts = []string{
	models.TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	models.DateLayout,
}

// excelEpoch already absorbs the 1900 leap-year bug for serials after
// February 1900.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseTimestamp accepts the text layouts found in the EPA exports as well as
// raw Excel serial date numbers. Times are kept as wall clock values in UTC.
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", models.ErrTypeConversion)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		days := math.Floor(serial)
		seconds := math.Round((serial - days) * 86400)
		return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second), nil
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q", models.ErrTypeConversion, value)
}
