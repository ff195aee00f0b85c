package rtree

import (
	"fmt"
	"os"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/paulmach/orb/geojson"
)

// DecodeGeoJSON converts a GeoJSON FeatureCollection to features.
// Features without an id get their position in the collection.
func DecodeGeoJSON(data []byte) ([]*models.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	features := make([]*models.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := fmt.Sprint(i)
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		props := map[string]interface{}(f.Properties)
		if props == nil {
			props = map[string]interface{}{}
		}
		features = append(features, &models.Feature{
			ID:         id,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return features, nil
}

// LoadGeoJSON reads a GeoJSON FeatureCollection file
func LoadGeoJSON(filename string) ([]*models.Feature, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return DecodeGeoJSON(data)
}
