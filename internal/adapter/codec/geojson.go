package codec

import (
	"fmt"
	"io"

	"github.com/couchcryptid/openaq-forecast-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WriteGeoJSON writes the metadata table as a FeatureCollection in EPSG:4326.
// Rows without coordinates get an empty GeometryCollection.
func WriteGeoJSON(w io.Writer, rows []domain.Metadata) error {
	fc := geojson.NewFeatureCollection()
	for _, m := range rows {
		var geom orb.Geometry = orb.Collection{}
		if m.HasPoint() {
			geom = m.Point
		}
		f := geojson.NewFeature(geom)
		f.ID = m.ID
		f.Properties["id"] = m.ID
		f.Properties["country"] = m.Key.Country
		f.Properties["city"] = m.Key.City
		f.Properties["location"] = m.Key.Location
		f.Properties["parameter"] = m.Key.Parameter
		if m.PlaceName != "" {
			f.Properties["place_name"] = m.PlaceName
		}
		if m.Address != "" {
			f.Properties["address"] = m.Address
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal feature collection: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write feature collection: %w", err)
	}
	return nil
}
