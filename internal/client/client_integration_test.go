//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

var tokyo = models.Coordinate{Lat: 35.6762, Lng: 139.6503}

func integrationOptions(url string) Options {
	return Options{URL: url, Timeout: 10 * time.Second, RetryAttempts: 2}
}

func TestWeatherAPIClient_GetForecast_Integration(t *testing.T) {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	c, err := NewWeatherAPIClient(apiKey, integrationOptions("https://api.weatherapi.com/v1/forecast.json"))
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	ctx := context.Background()
	if err := c.ValidateAPIKey(ctx); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	days, err := c.GetForecast(ctx, tokyo, ForecastDays)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if len(days) == 0 {
		t.Fatal("GetForecast() returned no days")
	}
	for i := 1; i < len(days); i++ {
		if days[i].Date <= days[i-1].Date {
			t.Errorf("GetForecast() dates not ascending: %q then %q", days[i-1].Date, days[i].Date)
		}
	}
}

func TestOpenElevationClient_GetElevation_Integration(t *testing.T) {
	c, err := NewOpenElevationClient(integrationOptions("https://api.open-elevation.com/api/v1/lookup"))
	if err != nil {
		t.Fatalf("NewOpenElevationClient() error = %v", err)
	}
	sample, err := c.GetElevation(context.Background(), tokyo)
	if err != nil {
		t.Skipf("open-elevation unavailable: %v", err)
	}
	if !sample.Present {
		t.Error("GetElevation() returned unknown elevation without error")
	}
}

func TestUSGSClient_GetEvents_Integration(t *testing.T) {
	c, err := NewUSGSClient(integrationOptions("https://earthquake.usgs.gov/fdsnws/event/1/query"))
	if err != nil {
		t.Fatalf("NewUSGSClient() error = %v", err)
	}
	events, err := c.GetEvents(context.Background(), tokyo, SeismicRadiusKm)
	if err != nil {
		t.Fatalf("GetEvents() error = %v", err)
	}
	for _, ev := range events {
		if ev.Time.IsZero() {
			t.Errorf("GetEvents() event %q has zero time", ev.Place)
		}
	}
}

func TestNominatimClient_ReverseGeocode_Integration(t *testing.T) {
	c, err := NewNominatimClient(integrationOptions("https://nominatim.openstreetmap.org/reverse"))
	if err != nil {
		t.Fatalf("NewNominatimClient() error = %v", err)
	}
	name, err := c.ReverseGeocode(context.Background(), tokyo)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if name == "" {
		t.Error("ReverseGeocode() returned empty name")
	}
}
