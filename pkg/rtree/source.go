package rtree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/paulmach/orb"
)

// DefaultGeometryColumn names the geometry of in-memory layers
const DefaultGeometryColumn = "the_geom"

// ErrEmptyIndex is returned when the bound of an empty index is requested
var ErrEmptyIndex = errors.New("index is empty")

// Source serves a layer from a FeatureIndex
type Source struct {
	index          *FeatureIndex
	geometryColumn string
	fields         []string
}

// NewSource wraps an index. fields fixes the attribute order of query
// records; when empty, attributes are listed alphabetically.
func NewSource(index *FeatureIndex, geometryColumn string, fields []string) *Source {
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}
	return &Source{index: index, geometryColumn: geometryColumn, fields: fields}
}

// Index returns the underlying index
func (s *Source) Index() *FeatureIndex {
	return s.index
}

// GeometryColumn returns the name reported for the geometry field
func (s *Source) GeometryColumn() string {
	return s.geometryColumn
}

// Query returns one record per feature matching the filter
func (s *Source) Query(ctx context.Context, filter query.SpatialFilter) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Predicate != query.Intersects {
		return nil, fmt.Errorf("unsupported predicate %s", filter.Predicate)
	}
	if filter.GeometryColumn != "" && filter.GeometryColumn != s.geometryColumn {
		return nil, fmt.Errorf("unknown geometry column %q", filter.GeometryColumn)
	}

	features, err := s.index.QueryIntersects(filter.Envelope)
	if err != nil {
		return nil, err
	}

	records := make([]query.Record, 0, len(features))
	for _, f := range features {
		records = append(records, s.record(f))
	}
	return records, nil
}

func (s *Source) record(f *models.Feature) query.Record {
	names := s.fields
	if len(names) == 0 {
		names = make([]string, 0, len(f.Properties))
		for name := range f.Properties {
			if name == s.geometryColumn {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
	}

	fields := make([]models.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, models.Field{Name: name, Value: f.Properties[name]})
	}
	return query.Record{Fields: fields}
}

// Features returns the features whose bounding box intersects b
func (s *Source) Features(ctx context.Context, b orb.Bound) ([]*models.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.index.QueryBound(b)
}

// Bound returns the extent of the indexed data
func (s *Source) Bound(ctx context.Context) (orb.Bound, error) {
	b, ok := s.index.Bound()
	if !ok {
		return orb.Bound{}, ErrEmptyIndex
	}
	return b, nil
}

// Close is a no-op, in-memory sources hold no external resources
func (s *Source) Close() error {
	return nil
}
