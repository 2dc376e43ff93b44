package models

import "time"

// RiskLevel is an ordinal severity tier. Tier counts differ per hazard.
type RiskLevel int

const (
	RiskLow      RiskLevel = 1
	RiskModerate RiskLevel = 2
	RiskHigh     RiskLevel = 3
)

// HazardAssessment is the scored result for one forecast day.
type HazardAssessment struct {
	Date         string    `json:"date"`
	RainAmountMM float64   `json:"rainAmountMm"`
	Flood        RiskLevel `json:"floodRisk"`     // 1, 2 or 3
	HeavyRain    RiskLevel `json:"heavyRainRisk"` // 1 or 3
	Tsunami      RiskLevel `json:"tsunamiRisk"`   // 1 or 2
	Landslide    RiskLevel `json:"landslideRisk"` // 1, 2 or 3
}

// Source names one of the external data services an assessment draws on.
type Source string

const (
	SourceWeather   Source = "weather"
	SourceElevation Source = "elevation"
	SourceSeismic   Source = "seismic"
	SourceGeocode   Source = "geocode"
)

// ErrorKind classifies a per-source problem within a cycle.
type ErrorKind string

const (
	// KindSourceUnavailable covers transport failures, non-2xx statuses and undecodable bodies.
	KindSourceUnavailable ErrorKind = "source_unavailable"
	// KindMissingDerivedValue marks a scoring input that fell back to its floor value.
	KindMissingDerivedValue ErrorKind = "missing_derived_value"
)

// SourceError is a contained failure of one source. Critical errors mean no
// days could be scored. Cosmetic errors touch only display fields and do not
// affect the status.
type SourceError struct {
	Source   Source    `json:"source"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Critical bool      `json:"critical,omitempty"`
	Cosmetic bool      `json:"cosmetic,omitempty"`
}

// Status summarizes an assessment cycle.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Assessment is the full output of one cycle. It is built once and replaced
// wholesale on the next cycle.
type Assessment struct {
	Coordinate  Coordinate         `json:"coordinate"`
	PlaceName   string             `json:"placeName"`
	Forecast    []DailyForecast    `json:"forecast"`
	Elevation   ElevationSample    `json:"elevation"`
	Days        []HazardAssessment `json:"days"`
	Seismic     []SeismicEvent     `json:"seismic"`
	Errors      []SourceError      `json:"errors,omitempty"`
	Status      Status             `json:"status"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// Failed reports whether the given source recorded a source_unavailable error.
func (a Assessment) Failed(src Source) bool {
	for _, e := range a.Errors {
		if e.Source == src && e.Kind == KindSourceUnavailable {
			return true
		}
	}
	return false
}
