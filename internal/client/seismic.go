package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// SeismicRadiusKm is the search radius around the coordinate.
const SeismicRadiusKm = 100

// SeismicClient lists recent earthquakes near a coordinate.
type SeismicClient interface {
	GetEvents(ctx context.Context, c models.Coordinate, radiusKm float64) ([]models.SeismicEvent, error)
}

// USGSClient talks to the USGS FDSN event query endpoint.
type USGSClient struct {
	httpSource
}

// NewUSGSClient builds the client.
func NewUSGSClient(opts Options) (*USGSClient, error) {
	src, err := newHTTPSource(models.SourceSeismic, opts)
	if err != nil {
		return nil, err
	}
	return &USGSClient{httpSource: src}, nil
}

type geoJSONResponse struct {
	Features []struct {
		Properties struct {
			Place string   `json:"place"`
			Mag   *float64 `json:"mag"`
			Time  int64    `json:"time"` // milliseconds since epoch
		} `json:"properties"`
	} `json:"features"`
}

// GetEvents returns events in the order USGS reports them (newest first).
// A null magnitude is reported as 0.
func (u *USGSClient) GetEvents(ctx context.Context, c models.Coordinate, radiusKm float64) ([]models.SeismicEvent, error) {
	params := url.Values{}
	params.Set("format", "geojson")
	params.Set("latitude", formatCoord(c.Lat))
	params.Set("longitude", formatCoord(c.Lng))
	params.Set("maxradiuskm", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var resp geoJSONResponse
	if err := u.getJSON(ctx, params, &resp, nil); err != nil {
		return nil, err
	}

	out := make([]models.SeismicEvent, 0, len(resp.Features))
	for _, f := range resp.Features {
		ev := models.SeismicEvent{
			Place: f.Properties.Place,
			Time:  time.UnixMilli(f.Properties.Time).UTC(),
		}
		if f.Properties.Mag != nil {
			ev.Magnitude = *f.Properties.Mag
		}
		out = append(out, ev)
	}
	return out, nil
}
