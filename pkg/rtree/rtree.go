// Package rtree implements an in-memory R-Tree index over layer features
// and a layer source backed by it
package rtree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/spatial"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

const (
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	// minimum side of an indexed rectangle, R-Tree rejects zero-size rects
	epsilon = 1e-9
)

// spatialFeature wraps a feature to implement rtreego.Spatial interface
type spatialFeature struct {
	*models.Feature
	rect rtreego.Rect
}

func (sf *spatialFeature) Bounds() rtreego.Rect {
	return sf.rect
}

// FeatureIndex is a thread-safe R-Tree index of features
type FeatureIndex struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
	bound     orb.Bound
	hasBound  bool
}

// NewFeatureIndex creates an empty index
func NewFeatureIndex() *FeatureIndex {
	return &FeatureIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// toRect converts an orb bound to an R-Tree rectangle, padding degenerate sides
func toRect(b orb.Bound) (rtreego.Rect, error) {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w < epsilon {
		w = epsilon
	}
	if h < epsilon {
		h = epsilon
	}
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
}

// IndexFeatures adds features to the index. Features without geometry are skipped.
func (fi *FeatureIndex) IndexFeatures(features []*models.Feature) error {
	items := make([]*spatialFeature, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if b.IsEmpty() {
			continue
		}
		rect, err := toRect(b)
		if err != nil {
			return fmt.Errorf("failed to index feature %s: %w", f.ID, err)
		}
		items = append(items, &spatialFeature{f, rect})
	}

	fi.mu.Lock()
	defer fi.mu.Unlock()

	for _, item := range items {
		fi.tree.Insert(item)
		b := item.Geometry.Bound()
		if fi.hasBound {
			fi.bound = fi.bound.Union(b)
		} else {
			fi.bound = b
			fi.hasBound = true
		}
	}
	fi.itemCount.Add(int64(len(items)))
	return nil
}

// QueryBound returns the features whose bounding box intersects b.
// Boxes that only touch b are included.
func (fi *FeatureIndex) QueryBound(b orb.Bound) ([]*models.Feature, error) {
	// R-Tree intersection is strict, widen the window so touching items match
	rect, err := toRect(b.Pad(epsilon))
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	fi.mu.RLock()
	defer fi.mu.RUnlock()

	results := fi.tree.SearchIntersect(rect)
	features := make([]*models.Feature, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialFeature)
		if !ok || item.Feature == nil {
			continue
		}
		features = append(features, item.Feature)
	}
	return features, nil
}

// QueryIntersects returns the features whose geometry intersects the polygon
func (fi *FeatureIndex) QueryIntersects(p orb.Polygon) ([]*models.Feature, error) {
	if len(p) == 0 {
		return nil, nil
	}

	candidates, err := fi.QueryBound(p.Bound())
	if err != nil {
		return nil, err
	}

	// Exact test on the candidates from the tree
	matches := candidates[:0]
	for _, f := range candidates {
		if spatial.Intersects(f.Geometry, p) {
			matches = append(matches, f)
		}
	}
	return matches, nil
}

// All returns every indexed feature
func (fi *FeatureIndex) All() []*models.Feature {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	if !fi.hasBound {
		return nil
	}
	// features on the max edge only touch the bound
	rect, err := toRect(fi.bound.Pad(epsilon))
	if err != nil {
		return nil
	}

	results := fi.tree.SearchIntersect(rect)
	features := make([]*models.Feature, 0, len(results))
	for _, result := range results {
		if item, ok := result.(*spatialFeature); ok {
			features = append(features, item.Feature)
		}
	}
	return features
}

// Bound returns the union of all indexed geometries' bounds
func (fi *FeatureIndex) Bound() (orb.Bound, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.bound, fi.hasBound
}

// Count returns the number of indexed features
func (fi *FeatureIndex) Count() int64 {
	return fi.itemCount.Load()
}

// Clear removes all features from the index
func (fi *FeatureIndex) Clear() {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	fi.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	fi.bound = orb.Bound{}
	fi.hasBound = false
	fi.itemCount.Store(0)
}
