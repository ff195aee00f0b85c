package mapctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/postgis"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/rtree"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Source types of a layer document
const (
	SourceGeoJSON  = "geojson"
	SourceSnapshot = "snapshot"
	SourcePostGIS  = "postgis"
)

// Document is the YAML form of a map
type Document struct {
	Name   string      `yaml:"name"`
	Extent []float64   `yaml:"extent"`
	Layers []LayerSpec `yaml:"layers"`
}

// LayerSpec declares one layer
type LayerSpec struct {
	Name    string     `yaml:"name"`
	Visible *bool      `yaml:"visible"`
	Source  SourceSpec `yaml:"source"`
	Fields  []string   `yaml:"fields"`
	Style   Style      `yaml:"style"`
}

// SourceSpec tells where the features of a layer come from
type SourceSpec struct {
	Type           string `yaml:"type"`
	Path           string `yaml:"path"`
	Table          string `yaml:"table"`
	GeometryColumn string `yaml:"geometry_column"`
	SRID           int    `yaml:"srid"`
}

// LoadOptions carries the dependencies of layer sources
type LoadOptions struct {
	// DB serves postgis layers; without it they cannot be loaded
	DB     *postgis.DB
	Logger *zap.Logger
}

// Load reads a map document. Relative paths are resolved against the
// document directory.
func Load(ctx context.Context, path string, opts LoadOptions) (*MapContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map %s: %w", path, err)
	}
	return Parse(ctx, data, filepath.Dir(path), opts)
}

// Parse builds a map from a document
func Parse(ctx context.Context, data []byte, baseDir string, opts LoadOptions) (*MapContext, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse map document: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}

	layers := make([]*Layer, 0, len(doc.Layers))
	closeAll := func() {
		for _, l := range layers {
			l.source.Close()
		}
	}

	for _, spec := range doc.Layers {
		if err := ctx.Err(); err != nil {
			closeAll()
			return nil, err
		}

		source, err := openSource(spec, baseDir, opts.DB)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to load layer %s: %w", spec.Name, err)
		}

		visible := true
		if spec.Visible != nil {
			visible = *spec.Visible
		}
		layers = append(layers, NewLayer(spec.Name, source, visible, spec.Style))

		logger.Debug("loaded layer",
			zap.String("layer", spec.Name),
			zap.String("source", spec.Source.Type),
			zap.Bool("visible", visible))
	}

	m, err := New(doc.Name, layers...)
	if err != nil {
		closeAll()
		return nil, err
	}
	m.logger = logger

	if len(doc.Extent) == 4 {
		e := models.Extent{MinX: doc.Extent[0], MinY: doc.Extent[1], MaxX: doc.Extent[2], MaxY: doc.Extent[3]}
		if err := m.SetDefaultExtent(e); err != nil {
			closeAll()
			return nil, err
		}
	}

	logger.Info("map loaded", zap.String("map", doc.Name), zap.Int("layers", len(layers)))
	return m, nil
}

func (d *Document) validate() error {
	var errs []error
	if d.Extent != nil && len(d.Extent) != 4 {
		errs = append(errs, fmt.Errorf("extent must be [minx, miny, maxx, maxy], got %d values", len(d.Extent)))
	}
	if len(d.Layers) == 0 {
		errs = append(errs, errors.New("map has no layers"))
	}

	seen := make(map[string]bool, len(d.Layers))
	for i, l := range d.Layers {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("layer %d has no name", i))
		} else if seen[l.Name] {
			errs = append(errs, fmt.Errorf("duplicate layer %q", l.Name))
		}
		seen[l.Name] = true

		switch l.Source.Type {
		case SourceGeoJSON, SourceSnapshot:
			if l.Source.Path == "" {
				errs = append(errs, fmt.Errorf("layer %q: source path is required", l.Name))
			}
		case SourcePostGIS:
			if l.Source.Table == "" {
				errs = append(errs, fmt.Errorf("layer %q: source table is required", l.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("layer %q: unknown source type %q", l.Name, l.Source.Type))
		}

		if err := l.Style.withDefaults().validate(); err != nil {
			errs = append(errs, fmt.Errorf("layer %q: %w", l.Name, err))
		}
	}
	return errors.Join(errs...)
}

func openSource(spec LayerSpec, baseDir string, db *postgis.DB) (Source, error) {
	switch spec.Source.Type {
	case SourceGeoJSON:
		features, err := rtree.LoadGeoJSON(resolve(baseDir, spec.Source.Path))
		if err != nil {
			return nil, err
		}
		index := rtree.NewFeatureIndex()
		if err := index.IndexFeatures(features); err != nil {
			return nil, err
		}
		return rtree.NewSource(index, spec.Source.GeometryColumn, spec.Fields), nil

	case SourceSnapshot:
		index := rtree.NewFeatureIndex()
		if err := index.LoadFromFile(resolve(baseDir, spec.Source.Path)); err != nil {
			return nil, err
		}
		return rtree.NewSource(index, spec.Source.GeometryColumn, spec.Fields), nil

	case SourcePostGIS:
		if db == nil {
			return nil, &query.EngineUnavailableError{Engine: "postgis", Err: errors.New("no database configured")}
		}
		return db.Table(spec.Source.Table, spec.Source.GeometryColumn, spec.Source.SRID), nil
	}
	return nil, fmt.Errorf("unknown source type %q", spec.Source.Type)
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
