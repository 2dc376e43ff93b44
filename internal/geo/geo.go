// Package geo classifies coordinates against a fixed set of coarse water-body regions.
package geo

import "github.com/kjstillabower/hazard-risk-service/internal/models"

// Region is an inclusive bounding box. Bounds are compared literally; a region
// whose min exceeds its max on either axis is never normalized.
type Region struct {
	Name   string
	LatMin float64
	LatMax float64
	LngMin float64
	LngMax float64
}

// Contains applies the inclusive range test on both axes.
func (r Region) Contains(c models.Coordinate) bool {
	return c.Lat >= r.LatMin && c.Lat <= r.LatMax && c.Lng >= r.LngMin && c.Lng <= r.LngMax
}

// Inverted reports whether either axis has min > max.
func (r Region) Inverted() bool {
	return r.LatMin > r.LatMax || r.LngMin > r.LngMax
}

// waterBodies approximates major oceans and seas. The first two entries have
// inverted bounds and never match under Contains.
var waterBodies = []Region{
	{Name: "north-atlantic", LatMin: 84, LatMax: 60, LngMin: -80, LngMax: 20},
	{Name: "north-pacific", LatMin: 65, LatMax: 65, LngMin: 120, LngMax: -80},
	{Name: "central-asia-seas", LatMin: 30, LatMax: 60, LngMin: 20, LngMax: 120},
	{Name: "arctic", LatMin: 65, LatMax: 90, LngMin: -180, LngMax: 180},
	{Name: "andaman-sea", LatMin: 5, LatMax: 20, LngMin: 92, LngMax: 100},
}

// WaterBodies returns a copy of the region table.
func WaterBodies() []Region {
	out := make([]Region, len(waterBodies))
	copy(out, waterBodies)
	return out
}

// IsNearWaterBody reports whether c falls inside any water-body region.
func IsNearWaterBody(c models.Coordinate) bool {
	for _, r := range waterBodies {
		if r.Contains(c) {
			return true
		}
	}
	return false
}
