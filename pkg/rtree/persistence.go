package rtree

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/paulmach/orb/encoding/wkb"
)

// storedFeature is the serializable form of a feature.
// Geometry is kept as WKB and properties as JSON so gob never sees interface values.
type storedFeature struct {
	ID         string
	Geometry   []byte
	Properties []byte
}

// IndexData represents the serializable form of the feature index
type IndexData struct {
	Features []storedFeature
	Count    int64
}

// SaveToFile saves the index to a binary file
func (fi *FeatureIndex) SaveToFile(filename string) error {
	features := fi.All()

	data := IndexData{
		Features: make([]storedFeature, 0, len(features)),
		Count:    int64(len(features)),
	}
	for _, f := range features {
		geom, err := wkb.Marshal(f.Geometry)
		if err != nil {
			return fmt.Errorf("failed to encode geometry of feature %s: %w", f.ID, err)
		}
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties of feature %s: %w", f.ID, err)
		}
		data.Features = append(data.Features, storedFeature{ID: f.ID, Geometry: geom, Properties: props})
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return file.Close()
}

// LoadFromFile replaces the index content with a file written by SaveToFile
func (fi *FeatureIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data IndexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}

	features := make([]*models.Feature, 0, len(data.Features))
	for _, sf := range data.Features {
		geom, err := wkb.Unmarshal(sf.Geometry)
		if err != nil {
			return fmt.Errorf("failed to decode geometry of feature %s: %w", sf.ID, err)
		}
		var props map[string]interface{}
		if err := json.Unmarshal(sf.Properties, &props); err != nil {
			return fmt.Errorf("failed to decode properties of feature %s: %w", sf.ID, err)
		}
		features = append(features, &models.Feature{ID: sf.ID, Geometry: geom, Properties: props})
	}

	// Clear existing index and rebuild
	fi.Clear()
	if err := fi.IndexFeatures(features); err != nil {
		return fmt.Errorf("failed to index features: %w", err)
	}

	return nil
}
