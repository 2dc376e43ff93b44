// Package hazard scores per-day flood, heavy-rain, tsunami and landslide risk
// from already-fetched inputs. Every function is pure.
//
// Comparisons are strict; NaN inputs fail every comparison and so land in the
// lowest tier.
package hazard

import (
	"github.com/kjstillabower/hazard-risk-service/internal/geo"
	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// Rainfall and elevation thresholds, exclusive lower bounds.
const (
	FloodHighRainMM     = 50.0
	FloodModerateRainMM = 20.0
	HeavyRainMM         = 20.0

	LandslideHighElevationM     = 1000.0
	LandslideHighRainMM         = 50.0
	LandslideModerateElevationM = 500.0
	LandslideModerateRainMM     = 20.0
)

// FloodRisk returns 3 above 50 mm, 2 above 20 mm, else 1.
func FloodRisk(rainMM float64) models.RiskLevel {
	switch {
	case rainMM > FloodHighRainMM:
		return models.RiskHigh
	case rainMM > FloodModerateRainMM:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// HeavyRainRisk has no moderate tier: 3 above 20 mm, else 1.
func HeavyRainRisk(rainMM float64) models.RiskLevel {
	if rainMM > HeavyRainMM {
		return models.RiskHigh
	}
	return models.RiskLow
}

// TsunamiRisk is 2 near a water body, else 1. It never reaches 3.
func TsunamiRisk(c models.Coordinate) models.RiskLevel {
	if geo.IsNearWaterBody(c) {
		return models.RiskModerate
	}
	return models.RiskLow
}

// LandslideRisk needs both elevation and rainfall over threshold. Unknown
// elevation always scores 1.
func LandslideRisk(elev models.ElevationSample, rainMM float64) models.RiskLevel {
	if !elev.Present {
		return models.RiskLow
	}
	switch {
	case elev.Meters > LandslideHighElevationM && rainMM > LandslideHighRainMM:
		return models.RiskHigh
	case elev.Meters > LandslideModerateElevationM && rainMM > LandslideModerateRainMM:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// Score builds the assessment for one forecast day.
func Score(day models.DailyForecast, elev models.ElevationSample, c models.Coordinate) models.HazardAssessment {
	rain := day.TotalPrecipMM
	return models.HazardAssessment{
		Date:         day.Date,
		RainAmountMM: rain,
		Flood:        FloodRisk(rain),
		HeavyRain:    HeavyRainRisk(rain),
		Tsunami:      TsunamiRisk(c),
		Landslide:    LandslideRisk(elev, rain),
	}
}

// ScoreDays scores each day in order, reusing the one elevation sample for all.
func ScoreDays(days []models.DailyForecast, elev models.ElevationSample, c models.Coordinate) []models.HazardAssessment {
	out := make([]models.HazardAssessment, 0, len(days))
	for _, d := range days {
		out = append(out, Score(d, elev, c))
	}
	return out
}
