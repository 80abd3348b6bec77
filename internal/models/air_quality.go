package models

import (
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05"

const DateLayout = "2006-01-02"

// AirQualityReading is one station reading at one timestamp after pivoting,
// with one value per retained parameter.
type AirQualityReading struct {
	Timestamp time.Time          `json:"timestamp"`
	Location  string             `json:"location"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Values    map[string]float64 `json:"values"`
}

type AirQualityObservation struct {
	AirQualityReading
	Month  int    `json:"month"`
	Date   string `json:"date"`
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
	Season string `json:"season"`
}

// AirQualitySummary holds the per-parameter median across all stations
// reporting at one timestamp.
type AirQualitySummary struct {
	Timestamp time.Time          `json:"timestamp"`
	Month     int                `json:"month"`
	Date      string             `json:"date"`
	Day       int                `json:"day"`
	Hour      int                `json:"hour"`
	Season    string             `json:"season"`
	Values    map[string]float64 `json:"values"`
}

type AirQualityParquet struct {
	Timestamp int64   `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Month     int32   `parquet:"name=month,type=INT32"`
	Date      string  `parquet:"name=date,type=BYTE_ARRAY,convertedtype=UTF8"`
	Day       int32   `parquet:"name=day,type=INT32"`
	Hour      int32   `parquet:"name=hour,type=INT32"`
	Season    string  `parquet:"name=season,type=BYTE_ARRAY,convertedtype=UTF8"`
	CO        float64 `parquet:"name=co,type=DOUBLE"`
	DBT       float64 `parquet:"name=dbt,type=DOUBLE"`
	NO2       float64 `parquet:"name=no2,type=DOUBLE"`
	O3        float64 `parquet:"name=o3,type=DOUBLE"`
	PM10      float64 `parquet:"name=pm10,type=DOUBLE"`
	PM25      float64 `parquet:"name=pm2_5,type=DOUBLE"`
	SO2       float64 `parquet:"name=so2,type=DOUBLE"`
}

func (s AirQualitySummary) Parquet() AirQualityParquet {
	return AirQualityParquet{
		Timestamp: s.Timestamp.UnixMilli(),
		Month:     int32(s.Month),
		Date:      s.Date,
		Day:       int32(s.Day),
		Hour:      int32(s.Hour),
		Season:    s.Season,
		CO:        s.Values["CO"],
		DBT:       s.Values["DBT"],
		NO2:       s.Values["NO2"],
		O3:        s.Values["O3"],
		PM10:      s.Values["PM10"],
		PM25:      s.Values["PM2.5"],
		SO2:       s.Values["SO2"],
	}
}
