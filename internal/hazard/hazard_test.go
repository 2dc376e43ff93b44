package hazard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

var inland = models.Coordinate{Lat: 47.6, Lng: -122.3}

func TestFloodAndHeavyRainRisk(t *testing.T) {
	tests := []struct {
		rain      float64
		flood     models.RiskLevel
		heavyRain models.RiskLevel
	}{
		{0, 1, 1},
		{10, 1, 1},
		{20, 1, 1},
		{20.01, 2, 3},
		{30, 2, 3},
		{50, 2, 3},
		{50.01, 3, 3},
		{120, 3, 3},
		{-1, 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.flood, FloodRisk(tt.rain), "FloodRisk(%v)", tt.rain)
		assert.Equal(t, tt.heavyRain, HeavyRainRisk(tt.rain), "HeavyRainRisk(%v)", tt.rain)
	}
}

func TestLandslideRisk(t *testing.T) {
	tests := []struct {
		name string
		elev models.ElevationSample
		rain float64
		want models.RiskLevel
	}{
		{"high both", models.KnownElevation(1200), 60, 3},
		{"high elevation moderate rain", models.KnownElevation(1200), 30, 2},
		{"moderate both", models.KnownElevation(600), 30, 2},
		{"moderate elevation heavy rain", models.KnownElevation(600), 60, 2},
		{"elevation exactly 1000", models.KnownElevation(1000), 60, 2},
		{"elevation exactly 500", models.KnownElevation(500), 60, 1},
		{"rain exactly 20", models.KnownElevation(1200), 20, 1},
		{"high elevation dry", models.KnownElevation(3000), 5, 1},
		{"low elevation wet", models.KnownElevation(100), 200, 1},
		{"unknown elevation", models.UnknownElevation(), 200, 1},
		{"unknown elevation with stale meters", models.ElevationSample{Meters: 2000}, 200, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LandslideRisk(tt.elev, tt.rain))
		})
	}
}

func TestTsunamiRisk_IgnoresRainAndElevation(t *testing.T) {
	near := models.Coordinate{Lat: 12, Lng: 96}
	assert.Equal(t, models.RiskModerate, TsunamiRisk(near))
	assert.Equal(t, models.RiskLow, TsunamiRisk(inland))

	for _, rain := range []float64{0, 30, 300} {
		for _, elev := range []models.ElevationSample{models.UnknownElevation(), models.KnownElevation(5), models.KnownElevation(4000)} {
			day := models.DailyForecast{Date: "2024-01-01", TotalPrecipMM: rain}
			assert.Equal(t, models.RiskModerate, Score(day, elev, near).Tsunami)
			assert.Equal(t, models.RiskLow, Score(day, elev, inland).Tsunami)
		}
	}
}

func TestScore_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		rain      float64
		elev      models.ElevationSample
		flood     models.RiskLevel
		heavyRain models.RiskLevel
		landslide models.RiskLevel
	}{
		{"A", 10, models.KnownElevation(200), 1, 1, 1},
		{"B", 30, models.KnownElevation(600), 2, 3, 2},
		{"C", 60, models.KnownElevation(1200), 3, 3, 3},
		{"D elevation unknown", 60, models.UnknownElevation(), 3, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(models.DailyForecast{Date: "2024-06-01", TotalPrecipMM: tt.rain}, tt.elev, inland)
			assert.Equal(t, "2024-06-01", got.Date)
			assert.Equal(t, tt.rain, got.RainAmountMM)
			assert.Equal(t, tt.flood, got.Flood)
			assert.Equal(t, tt.heavyRain, got.HeavyRain)
			assert.Equal(t, tt.landslide, got.Landslide)
			assert.Equal(t, models.RiskLow, got.Tsunami)
		})
	}
}

func TestScore_NaNFallsToLowestTier(t *testing.T) {
	nan := math.NaN()
	got := Score(models.DailyForecast{TotalPrecipMM: nan}, models.KnownElevation(nan), inland)
	assert.Equal(t, models.RiskLow, got.Flood)
	assert.Equal(t, models.RiskLow, got.HeavyRain)
	assert.Equal(t, models.RiskLow, got.Landslide)

	assert.Equal(t, models.RiskLow, LandslideRisk(models.KnownElevation(nan), 100))
	assert.Equal(t, models.RiskLow, LandslideRisk(models.KnownElevation(2000), nan))
}

func TestScoreDays_PreservesOrderAndIsIdempotent(t *testing.T) {
	days := []models.DailyForecast{
		{Date: "2024-06-01", TotalPrecipMM: 60},
		{Date: "2024-06-02", TotalPrecipMM: 10},
		{Date: "2024-06-03", TotalPrecipMM: 30},
	}
	elev := models.KnownElevation(1200)

	first := ScoreDays(days, elev, inland)
	second := ScoreDays(days, elev, inland)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	assert.Equal(t, "2024-06-01", first[0].Date)
	assert.Equal(t, "2024-06-02", first[1].Date)
	assert.Equal(t, "2024-06-03", first[2].Date)
	assert.Equal(t, models.RiskHigh, first[0].Landslide)
	assert.Equal(t, models.RiskLow, first[1].Landslide)
	assert.Equal(t, models.RiskModerate, first[2].Landslide)
}

func TestScoreDays_Empty(t *testing.T) {
	got := ScoreDays(nil, models.KnownElevation(100), inland)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
