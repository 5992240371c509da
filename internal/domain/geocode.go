package domain

import (
	"context"
	"log/slog"
)

// GeocodingResult contains place data returned by a geocoding provider.
type GeocodingResult struct {
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// ReverseGeocoder resolves coordinates to place details.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// EnrichMetadata attaches place names to metadata rows that have coordinates.
// A nil geocoder returns the rows unchanged; lookup failures are logged and
// leave the row without a place name.
func EnrichMetadata(ctx context.Context, rows []Metadata, geocoder ReverseGeocoder, logger *slog.Logger) []Metadata {
	if geocoder == nil {
		return rows
	}

	out := make([]Metadata, len(rows))
	for i, m := range rows {
		out[i] = m
		if !m.HasPoint() {
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		result, err := geocoder.ReverseGeocode(ctx, m.Point.Lat(), m.Point.Lon())
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"id", m.ID,
				"entity", m.Key.String(),
				"lat", m.Point.Lat(),
				"lon", m.Point.Lon(),
				"error", err,
			)
			continue
		}
		out[i].PlaceName = result.PlaceName
		out[i].Address = result.FormattedAddress
	}
	return out
}
