package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// ForecastDays is the forecast horizon requested from the weather source.
const ForecastDays = 3

// WeatherClient returns per-day forecasts in chronological order.
type WeatherClient interface {
	GetForecast(ctx context.Context, c models.Coordinate, days int) ([]models.DailyForecast, error)
	ValidateAPIKey(ctx context.Context) error
}

// WeatherAPIClient talks to the WeatherAPI.com forecast endpoint.
type WeatherAPIClient struct {
	httpSource
	apiKey string
}

// NewWeatherAPIClient validates the key shape and builds the client.
func NewWeatherAPIClient(apiKey string, opts Options) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	src, err := newHTTPSource(models.SourceWeather, opts)
	if err != nil {
		return nil, err
	}
	return &WeatherAPIClient{httpSource: src, apiKey: apiKey}, nil
}

type forecastResponse struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				AvgTempC      float64 `json:"avgtemp_c"`
				AvgHumidity   float64 `json:"avghumidity"`
				MaxWindKph    float64 `json:"maxwind_kph"`
				TotalPrecipMM float64 `json:"totalprecip_mm"`
				Condition     struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// GetForecast fetches a days-long forecast for c. An empty day list is
// ErrNoResult so it is never scored or cached as a clean profile.
func (w *WeatherAPIClient) GetForecast(ctx context.Context, c models.Coordinate, days int) ([]models.DailyForecast, error) {
	var resp forecastResponse
	err := w.getJSON(ctx, w.params(c, days), &resp, func() error {
		if len(resp.Forecast.ForecastDay) == 0 {
			return fmt.Errorf("forecast: %w", ErrNoResult)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.DailyForecast, 0, len(resp.Forecast.ForecastDay))
	for _, fd := range resp.Forecast.ForecastDay {
		out = append(out, models.DailyForecast{
			Date:          fd.Date,
			AvgTempC:      fd.Day.AvgTempC,
			Condition:     fd.Day.Condition.Text,
			AvgHumidity:   fd.Day.AvgHumidity,
			MaxWindKph:    fd.Day.MaxWindKph,
			TotalPrecipMM: fd.Day.TotalPrecipMM,
		})
	}
	return out, nil
}

// ValidateAPIKey issues a one-day forecast request and only checks for auth failures.
func (w *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resp forecastResponse
	err := w.callAPI(ctx, w.params(models.Coordinate{Lat: 51.5072, Lng: -0.1276}, 1), &resp)
	if err != nil {
		return fmt.Errorf("validate weather API key: %w", err)
	}
	return nil
}

func (w *WeatherAPIClient) params(c models.Coordinate, days int) url.Values {
	params := url.Values{}
	params.Set("key", w.apiKey)
	params.Set("q", formatCoord(c.Lat)+","+formatCoord(c.Lng))
	params.Set("days", fmt.Sprintf("%d", days))
	return params
}
