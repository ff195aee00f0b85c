// Package mapview ties a viewport, a map and a renderer into an interactive
// map session: gestures move the view, taps ask the layers for information.
package mapview

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/metrics"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/viewport"
	"go.uber.org/zap"
)

// Renderer draws the visible layers of a map for an extent
type Renderer interface {
	Render(ctx context.Context, m *mapctx.MapContext, extent models.Extent, width, height int) (image.Image, error)
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger of the session
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPlanner replaces the default query planner
func WithPlanner(p *query.Planner) Option {
	return func(s *Session) {
		if p != nil {
			s.planner = p
		}
	}
}

// WithMetrics records gestures, queries and renders on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session is one interactive view on a map. Gestures are serialized.
type Session struct {
	mu sync.Mutex

	ctrl     *viewport.Controller
	mc       *mapctx.MapContext
	renderer Renderer
	planner  *query.Planner
	metrics  *metrics.Metrics
	logger   *zap.Logger

	initial models.Extent
	image   image.Image
}

// New opens a session on the default extent of mc and renders it
func New(ctx context.Context, cfg viewport.Config, mc *mapctx.MapContext, r Renderer, opts ...Option) (*Session, error) {
	s := &Session{
		mc:       mc,
		renderer: r,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.planner == nil {
		s.planner = query.NewPlanner(s.logger)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := mc.DefaultExtent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute map extent: %w", err)
	}
	ctrl, err := viewport.New(cfg, base)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	s.initial = ctrl.Extent()

	if err := s.redraw(ctx); err != nil {
		return nil, fmt.Errorf("failed to render map: %w", err)
	}

	width, height := cfg.ImageSize()
	s.logger.Info("map session started",
		zap.String("map", mc.Name()),
		zap.Stringer("extent", s.initial),
		zap.Int("image_width", width),
		zap.Int("image_height", height))
	return s, nil
}

// redraw renders the current extent. The caller holds mu.
func (s *Session) redraw(ctx context.Context) error {
	start := time.Now()
	width, height := s.ctrl.ImageSize()

	img, err := s.renderer.Render(ctx, s.mc, s.ctrl.Extent(), width, height)
	s.metrics.ObserveRender(start)
	if err != nil {
		return err
	}
	s.image = img
	return nil
}

// update applies change and redraws. When the redraw fails the previous
// extent is restored and undo is called.
func (s *Session) update(ctx context.Context, change func() error, undo func()) error {
	prev := s.ctrl.Extent()
	if err := change(); err != nil {
		return err
	}
	if err := s.redraw(ctx); err != nil {
		// prev comes from the controller and is always valid
		_ = s.ctrl.SetExtent(prev)
		if undo != nil {
			undo()
		}
		s.logger.Error("redraw failed, view restored", zap.Error(err))
		return err
	}
	return nil
}

// Move pans the view by a drag of dx, dy screen pixels and redraws
func (s *Session) Move(ctx context.Context, dx, dy float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, func() error {
		s.ctrl.Pan(dx, dy)
		return nil
	}, nil)
	if err == nil {
		s.metrics.Gesture(metrics.GesturePan)
		s.logger.Debug("moved", zap.Float64("dx", dx), zap.Float64("dy", dy), zap.Stringer("extent", s.ctrl.Extent()))
	}
	return s.image, err
}

// Scale zooms the view and redraws. A factor that would collapse the view
// returns *viewport.InvalidScaleError and leaves view and image unchanged.
func (s *Session) Scale(ctx context.Context, scaleX, scaleY float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, func() error {
		_, err := s.ctrl.Scale(scaleX, scaleY)
		return err
	}, nil)
	if err != nil {
		s.logger.Debug("scale rejected", zap.Float64("scale_x", scaleX), zap.Float64("scale_y", scaleY), zap.Error(err))
		return s.image, err
	}
	s.metrics.Gesture(metrics.GestureScale)
	return s.image, nil
}

// ToggleLayer flips the visibility of a layer, redraws and returns the new state
func (s *Session) ToggleLayer(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state bool
	err := s.update(ctx, func() error {
		var err error
		state, err = s.mc.Toggle(name)
		return err
	}, func() {
		state, _ = s.mc.Toggle(name)
	})
	if err != nil {
		return state, err
	}
	s.metrics.Gesture(metrics.GestureToggle)
	s.logger.Debug("layer toggled", zap.String("layer", name), zap.Bool("visible", state))
	return state, nil
}

// SetLayerVisible sets the visibility of a layer, redraws and returns the state
func (s *Session) SetLayerVisible(ctx context.Context, name string, visible bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer, err := s.mc.Layer(name)
	if err != nil {
		return false, err
	}
	prev := layer.Visible()

	err = s.update(ctx, func() error {
		_, err := s.mc.SetVisible(name, visible)
		return err
	}, func() {
		_, _ = s.mc.SetVisible(name, prev)
	})
	if err != nil {
		return prev, err
	}
	s.metrics.Gesture(metrics.GestureToggle)
	return visible, nil
}

// Info describes the feature under a tap, asking the visible layers in order
func (s *Session) Info(ctx context.Context, tap models.ScreenPoint) (query.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.planner.Query(ctx, tap, s.ctrl, s.mc.QueryLayers())
	if err != nil {
		return result, err
	}
	s.metrics.Gesture(metrics.GestureInfo)
	s.metrics.Query(string(result.Outcome), result.Failed)

	world := s.ctrl.ScreenToWorld(tap)
	s.logger.Debug("tap resolved",
		zap.Float64("x", world.X),
		zap.Float64("y", world.Y),
		zap.String("outcome", string(result.Outcome)),
		zap.String("layer", result.Layer))
	return result, nil
}

// Reset returns to the extent the session started with
func (s *Session) Reset(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, func() error {
		return s.ctrl.SetExtent(s.initial)
	}, nil)
	if err == nil {
		s.metrics.Gesture(metrics.GestureReset)
	}
	return s.image, err
}

// Thumbnail returns the last rendered image
func (s *Session) Thumbnail() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Extent returns the current extent
func (s *Session) Extent() models.Extent {
	return s.ctrl.Extent()
}

// Viewport returns the coordinate controller of the session
func (s *Session) Viewport() *viewport.Controller {
	return s.ctrl
}

// Layers returns the map layers, topmost first
func (s *Session) Layers() []*mapctx.Layer {
	return s.mc.Layers()
}

// Map returns the map shown by the session
func (s *Session) Map() *mapctx.MapContext {
	return s.mc
}
