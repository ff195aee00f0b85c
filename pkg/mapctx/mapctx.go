// Package mapctx holds the ordered layers of a map and loads them from a
// YAML map document.
//
// The first layer of a map is the topmost one: it is drawn last and asked
// first when a tap is resolved.
package mapctx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"go.uber.org/zap"
)

var (
	// ErrLayerNotFound is returned for a layer name that is not in the map
	ErrLayerNotFound = errors.New("layer not found")
	// ErrNoExtent is returned when neither the document nor any layer gives an extent
	ErrNoExtent = errors.New("map has no extent")
)

// MapContext is an ordered set of layers
type MapContext struct {
	name   string
	layers []*Layer
	byName map[string]*Layer

	mu     sync.RWMutex
	extent *models.Extent

	logger *zap.Logger
}

// New creates a map from layers, topmost first. Layer names must be unique.
func New(name string, layers ...*Layer) (*MapContext, error) {
	byName := make(map[string]*Layer, len(layers))
	for _, l := range layers {
		if l.Name() == "" {
			return nil, errors.New("layer name is empty")
		}
		if _, ok := byName[l.Name()]; ok {
			return nil, fmt.Errorf("duplicate layer %q", l.Name())
		}
		byName[l.Name()] = l
	}
	return &MapContext{
		name:   name,
		layers: layers,
		byName: byName,
		logger: zap.NewNop(),
	}, nil
}

// Name returns the map title
func (m *MapContext) Name() string {
	return m.name
}

// Layers returns the layers in document order, topmost first
func (m *MapContext) Layers() []*Layer {
	out := make([]*Layer, len(m.layers))
	copy(out, m.layers)
	return out
}

// QueryLayers returns the layers as seen by the query planner
func (m *MapContext) QueryLayers() []query.Layer {
	out := make([]query.Layer, len(m.layers))
	for i, l := range m.layers {
		out[i] = l
	}
	return out
}

// Layer looks a layer up by name
func (m *MapContext) Layer(name string) (*Layer, error) {
	l, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	return l, nil
}

// SetVisible sets the visibility of a layer and returns it
func (m *MapContext) SetVisible(name string, visible bool) (bool, error) {
	l, err := m.Layer(name)
	if err != nil {
		return false, err
	}
	l.setVisible(visible)
	return visible, nil
}

// Toggle flips the visibility of a layer and returns the new state
func (m *MapContext) Toggle(name string) (bool, error) {
	l, err := m.Layer(name)
	if err != nil {
		return false, err
	}
	return l.toggle(), nil
}

// SetDefaultExtent fixes the initial extent instead of deriving it from the data
func (m *MapContext) SetDefaultExtent(e models.Extent) error {
	if !e.Valid() {
		return fmt.Errorf("invalid extent %s", e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extent = &e
	return nil
}

// DefaultExtent returns the declared extent, or else the union of the
// bounds of all layers. Layers whose bound cannot be computed are skipped,
// an unavailable engine is reported.
func (m *MapContext) DefaultExtent(ctx context.Context) (models.Extent, error) {
	m.mu.RLock()
	declared := m.extent
	m.mu.RUnlock()
	if declared != nil {
		return *declared, nil
	}

	var result models.Extent
	found := false
	for _, l := range m.layers {
		b, err := l.source.Bound(ctx)
		if err != nil {
			var engineErr *query.EngineUnavailableError
			if errors.As(err, &engineErr) {
				return models.Extent{}, err
			}
			m.logger.Debug("layer has no bound", zap.String("layer", l.Name()), zap.Error(err))
			continue
		}
		if found {
			b = b.Union(result.Bound())
		}
		result = models.ExtentFromBound(b)
		found = true
	}

	if !found || !result.Valid() {
		return models.Extent{}, ErrNoExtent
	}
	return result, nil
}

// Close releases the layer sources
func (m *MapContext) Close() error {
	var errs []error
	for _, l := range m.layers {
		if err := l.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close layer %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}
