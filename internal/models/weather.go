package models

import (
	"fmt"
	"time"
)

// Coordinate is the single point an assessment is computed for.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Key returns a stable cache key for the coordinate (6 decimal places).
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// DailyForecast is one calendar day of aggregated forecast weather.
type DailyForecast struct {
	Date          string  `json:"date"` // YYYY-MM-DD as reported by the weather source
	AvgTempC      float64 `json:"avgTempC"`
	Condition     string  `json:"condition"`
	AvgHumidity   float64 `json:"avgHumidity"`
	MaxWindKph    float64 `json:"maxWindKph"`
	TotalPrecipMM float64 `json:"totalPrecipMm"`
}

// ElevationSample is the elevation at the coordinate. Present is false when the
// elevation source failed or returned nothing; Meters is meaningless then.
type ElevationSample struct {
	Meters  float64 `json:"meters"`
	Present bool    `json:"present"`
}

// KnownElevation returns a present sample.
func KnownElevation(meters float64) ElevationSample {
	return ElevationSample{Meters: meters, Present: true}
}

// UnknownElevation returns an absent sample.
func UnknownElevation() ElevationSample {
	return ElevationSample{}
}

// SeismicEvent is a single earthquake reported near the coordinate.
type SeismicEvent struct {
	Place     string    `json:"place"`
	Magnitude float64   `json:"magnitude"`
	Time      time.Time `json:"time"`
}
