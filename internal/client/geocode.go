package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// Geocoder resolves a coordinate to a human-readable place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c models.Coordinate) (string, error)
}

// NominatimClient talks to the OpenStreetMap Nominatim reverse endpoint.
// Nominatim's usage policy requires an identifying User-Agent.
type NominatimClient struct {
	httpSource
}

// NewNominatimClient builds the client.
func NewNominatimClient(opts Options) (*NominatimClient, error) {
	src, err := newHTTPSource(models.SourceGeocode, opts)
	if err != nil {
		return nil, err
	}
	return &NominatimClient{httpSource: src}, nil
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ReverseGeocode returns the display name for c.
func (n *NominatimClient) ReverseGeocode(ctx context.Context, c models.Coordinate) (string, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(c.Lat))
	params.Set("lon", formatCoord(c.Lng))
	params.Set("format", "json")

	var resp reverseResponse
	// Open water has no address; Nominatim answers 200 with an error field.
	// That is a valid answer, not an outage, so it stays out of the health window.
	if err := n.getJSON(ctx, params, &resp, nil); err != nil {
		return "", err
	}
	name := strings.TrimSpace(resp.DisplayName)
	if name == "" {
		return "", fmt.Errorf("geocode: %w", ErrNoResult)
	}
	return name, nil
}
