// Package report turns an assessment into the labeled view a client renders:
// per-panel text, risk labels and chart series.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

const (
	NoSeismicMessage = "No recent earthquakes found within 100 km."
	SeismicHeading   = "Recent Earthquakes (within 100 km)"
)

// Panel error messages shown in place of a failed source's content.
var errorMessages = map[models.Source]string{
	models.SourceWeather:   "Error fetching weather data. Please try again.",
	models.SourceElevation: "Error fetching elevation data. Please try again.",
	models.SourceSeismic:   "Error fetching earthquake data. Please try again.",
	models.SourceGeocode:   "Error fetching place name.",
}

// riskErrorMessage replaces the risk panel when no days could be scored.
const riskErrorMessage = "Error fetching risk data. Please try again."

// FloodLabel names a flood level. Landslide uses the same scale.
func FloodLabel(l models.RiskLevel) string {
	switch l {
	case models.RiskHigh:
		return "High"
	case models.RiskModerate:
		return "Moderate"
	default:
		return "Low"
	}
}

// LandslideLabel names a landslide level.
func LandslideLabel(l models.RiskLevel) string {
	return FloodLabel(l)
}

// HeavyRainLabel names a heavy rain level; only High and Low exist.
func HeavyRainLabel(l models.RiskLevel) string {
	if l == models.RiskHigh {
		return "High"
	}
	return "Low"
}

// TsunamiLabel names a tsunami level.
func TsunamiLabel(l models.RiskLevel) string {
	if l == models.RiskModerate {
		return "Possible"
	}
	return "None"
}

// ErrorMessage returns the user-facing message for a failed source.
func ErrorMessage(src models.Source) string {
	if msg, ok := errorMessages[src]; ok {
		return msg
	}
	return "Error fetching data. Please try again."
}

type WeatherDay struct {
	Date        string  `json:"date"`
	TempC       float64 `json:"temperatureC"`
	Condition   string  `json:"condition"`
	HumidityPct float64 `json:"humidityPct"`
	WindKph     float64 `json:"windKph"`
	RainMM      float64 `json:"rainMm"`
}

type RiskDay struct {
	Date      string  `json:"date"`
	RainMM    float64 `json:"rainMm"`
	Flood     string  `json:"flood"`
	HeavyRain string  `json:"heavyRain"`
	Tsunami   string  `json:"tsunami"`
	Landslide string  `json:"landslide"`
}

type Earthquake struct {
	Place     string    `json:"place"`
	Magnitude float64   `json:"magnitude"`
	Time      time.Time `json:"time"`
}

// Dataset is one chart line: a level per forecast day.
type Dataset struct {
	Label string `json:"label"`
	Data  []int  `json:"data"`
}

// Chart has one label per forecast day and one dataset per hazard.
type Chart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Report is the presentation view of one assessment. An Error field, when
// set, replaces the content of its panel.
type Report struct {
	Coordinate models.Coordinate `json:"coordinate"`
	Place      string            `json:"place"`
	Status     models.Status     `json:"status"`

	Weather      []WeatherDay `json:"weather"`
	WeatherError string       `json:"weatherError,omitempty"`

	Risk      []RiskDay `json:"risk"`
	RiskError string    `json:"riskError,omitempty"`

	Elevation      string `json:"elevation,omitempty"`
	ElevationError string `json:"elevationError,omitempty"`

	SeismicHeading string       `json:"seismicHeading,omitempty"`
	Earthquakes    []Earthquake `json:"earthquakes"`
	SeismicMessage string       `json:"seismicMessage,omitempty"`

	Notices []string `json:"notices,omitempty"`
	Chart   Chart    `json:"chart"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// Build derives the report from a. It never fails; missing inputs become
// panel error messages.
func Build(a models.Assessment) Report {
	r := Report{
		Coordinate:  a.Coordinate,
		Place:       a.PlaceName,
		Status:      a.Status,
		Weather:     make([]WeatherDay, 0, len(a.Forecast)),
		Risk:        make([]RiskDay, 0, len(a.Days)),
		Earthquakes: make([]Earthquake, 0, len(a.Seismic)),
		GeneratedAt: a.GeneratedAt,
	}
	if r.Place == "" {
		r.Place = "Unknown"
	}

	for _, d := range a.Forecast {
		r.Weather = append(r.Weather, WeatherDay{
			Date:        d.Date,
			TempC:       d.AvgTempC,
			Condition:   d.Condition,
			HumidityPct: d.AvgHumidity,
			WindKph:     d.MaxWindKph,
			RainMM:      d.TotalPrecipMM,
		})
	}
	for _, d := range a.Days {
		r.Risk = append(r.Risk, RiskDay{
			Date:      d.Date,
			RainMM:    d.RainAmountMM,
			Flood:     FloodLabel(d.Flood),
			HeavyRain: HeavyRainLabel(d.HeavyRain),
			Tsunami:   TsunamiLabel(d.Tsunami),
			Landslide: LandslideLabel(d.Landslide),
		})
	}
	if a.Failed(models.SourceWeather) {
		r.WeatherError = ErrorMessage(models.SourceWeather)
		r.RiskError = riskErrorMessage
	}

	switch {
	case a.Elevation.Present:
		r.Elevation = fmt.Sprintf("Elevation: %s meters", strconv.FormatFloat(a.Elevation.Meters, 'f', -1, 64))
	case a.Failed(models.SourceElevation):
		r.ElevationError = ErrorMessage(models.SourceElevation)
	}

	switch {
	case a.Failed(models.SourceSeismic):
		r.SeismicMessage = ErrorMessage(models.SourceSeismic)
	case len(a.Seismic) == 0:
		r.SeismicMessage = NoSeismicMessage
	default:
		r.SeismicHeading = SeismicHeading
		for _, ev := range a.Seismic {
			r.Earthquakes = append(r.Earthquakes, Earthquake{Place: ev.Place, Magnitude: ev.Magnitude, Time: ev.Time})
		}
	}

	for _, e := range a.Errors {
		if e.Kind == models.KindMissingDerivedValue {
			r.Notices = append(r.Notices, "Elevation unavailable; landslide risk shown as Low.")
		}
	}

	r.Chart = buildChart(a.Days)
	return r
}

func buildChart(days []models.HazardAssessment) Chart {
	c := Chart{
		Labels: make([]string, 0, len(days)),
		Datasets: []Dataset{
			{Label: "Flood Risk", Data: make([]int, 0, len(days))},
			{Label: "Heavy Rain Risk", Data: make([]int, 0, len(days))},
			{Label: "Tsunami Risk", Data: make([]int, 0, len(days))},
			{Label: "Landslide Risk", Data: make([]int, 0, len(days))},
		},
	}
	for _, d := range days {
		c.Labels = append(c.Labels, d.Date)
		c.Datasets[0].Data = append(c.Datasets[0].Data, int(d.Flood))
		c.Datasets[1].Data = append(c.Datasets[1].Data, int(d.HeavyRain))
		c.Datasets[2].Data = append(c.Datasets[2].Data, int(d.Tsunami))
		c.Datasets[3].Data = append(c.Datasets[3].Data, int(d.Landslide))
	}
	return c
}
