package models

import (
	"time"
)

type PedestrianObservation struct {
	Timestamp       time.Time `json:"timestamp"`
	Location        string    `json:"location"`
	PedestrianCount int       `json:"pedestrian_count"`
	QueryKey        string    `json:"nominatim_area"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AreaCoordinate is one row of the area mapping; Coordinates is nil when the
// geocoder had no result for the key.
type AreaCoordinate struct {
	QueryKey    string       `json:"nominatim_area"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type PedestrianCount struct {
	Timestamp       time.Time `json:"timestamp"`
	Location        string    `json:"location"`
	PedestrianCount int       `json:"pedestrian_count"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
}

type PedestrianParquet struct {
	Timestamp       int64    `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Location        string   `parquet:"name=location,type=BYTE_ARRAY,convertedtype=UTF8"`
	PedestrianCount int64    `parquet:"name=pedestrian_count,type=INT64"`
	Latitude        *float64 `parquet:"name=latitude,type=DOUBLE,repetitiontype=OPTIONAL"`
	Longitude       *float64 `parquet:"name=longitude,type=DOUBLE,repetitiontype=OPTIONAL"`
}

func (p PedestrianCount) Parquet() PedestrianParquet {
	return PedestrianParquet{
		Timestamp:       p.Timestamp.UnixMilli(),
		Location:        p.Location,
		PedestrianCount: int64(p.PedestrianCount),
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
	}
}
