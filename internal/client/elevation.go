package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// ElevationClient returns the ground elevation at a coordinate.
type ElevationClient interface {
	GetElevation(ctx context.Context, c models.Coordinate) (models.ElevationSample, error)
}

// OpenElevationClient talks to the Open-Elevation lookup endpoint.
type OpenElevationClient struct {
	httpSource
}

// NewOpenElevationClient builds the client.
func NewOpenElevationClient(opts Options) (*OpenElevationClient, error) {
	src, err := newHTTPSource(models.SourceElevation, opts)
	if err != nil {
		return nil, err
	}
	return &OpenElevationClient{httpSource: src}, nil
}

type elevationResponse struct {
	Results []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// GetElevation returns a present sample on success. An empty result set or a
// null elevation is ErrNoResult; callers treat every error as unknown elevation.
func (e *OpenElevationClient) GetElevation(ctx context.Context, c models.Coordinate) (models.ElevationSample, error) {
	params := url.Values{}
	params.Set("locations", formatCoord(c.Lat)+","+formatCoord(c.Lng))

	var resp elevationResponse
	err := e.getJSON(ctx, params, &resp, func() error {
		if len(resp.Results) == 0 || resp.Results[0].Elevation == nil {
			return fmt.Errorf("elevation: %w", ErrNoResult)
		}
		return nil
	})
	if err != nil {
		return models.UnknownElevation(), err
	}
	return models.KnownElevation(*resp.Results[0].Elevation), nil
}
