// Package render draws the visible layers of a map into a raster image
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"go.uber.org/zap"
)

// clipMargin is the number of pixels kept around the image when clipping
// geometries, so strokes and point markers at the border stay whole
const clipMargin = 8

// Renderer draws maps with gg
type Renderer struct {
	logger     *zap.Logger
	background color.Color
}

// Option configures a Renderer
type Option func(*Renderer)

// WithBackground sets the color behind all layers
func WithBackground(c color.Color) Option {
	return func(r *Renderer) {
		r.background = c
	}
}

// New creates a renderer with a white background
func New(logger *zap.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{logger: logger, background: color.White}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render draws the visible layers of m covering extent into a width x height
// image. Layers are painted bottom first. A layer whose source fails is
// skipped; an unavailable engine aborts the render.
func (r *Renderer) Render(ctx context.Context, m *mapctx.MapContext, extent models.Extent, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if !extent.Valid() {
		return nil, fmt.Errorf("invalid extent %s", extent)
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(r.background)
	dc.Clear()

	p := newProjection(extent, width, height)
	window := extent.Bound().Pad(clipMargin * max(p.unitX, p.unitY))

	layers := m.Layers()
	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		if !layer.Visible() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		features, err := layer.Features(ctx, window)
		if err != nil {
			var engineErr *query.EngineUnavailableError
			if errors.As(err, &engineErr) {
				return nil, err
			}
			r.logger.Warn("layer render failed, skipping layer",
				zap.String("layer", layer.Name()),
				zap.Error(&query.BackendError{Layer: layer.Name(), Err: err}))
			continue
		}

		style := layer.Style()
		for _, f := range features {
			g := clip.Geometry(window, f.Geometry)
			if g == nil {
				continue
			}
			drawGeometry(dc, p, g, style)
		}
	}

	return dc.Image(), nil
}

// projection maps world coordinates to pixels, y axis pointing down
type projection struct {
	minX, maxY   float64
	unitX, unitY float64
}

func newProjection(e models.Extent, width, height int) projection {
	return projection{
		minX:  e.MinX,
		maxY:  e.MaxY,
		unitX: e.Width() / float64(width),
		unitY: e.Height() / float64(height),
	}
}

func (p projection) apply(pt orb.Point) (float64, float64) {
	return (pt[0] - p.minX) / p.unitX, (p.maxY - pt[1]) / p.unitY
}

func drawGeometry(dc *gg.Context, p projection, g orb.Geometry, style mapctx.Style) {
	switch g := g.(type) {
	case orb.Point:
		x, y := p.apply(g)
		dc.DrawCircle(x, y, style.PointRadius)
		fillAndStroke(dc, style)
	case orb.MultiPoint:
		for _, pt := range g {
			drawGeometry(dc, p, pt, style)
		}
	case orb.LineString:
		tracePath(dc, p, g)
		dc.SetColor(style.StrokeColor())
		dc.SetLineWidth(style.Width)
		dc.Stroke()
	case orb.MultiLineString:
		for _, ls := range g {
			drawGeometry(dc, p, ls, style)
		}
	case orb.Ring:
		drawGeometry(dc, p, orb.Polygon{g}, style)
	case orb.Polygon:
		for _, ring := range g {
			tracePath(dc, p, orb.LineString(ring))
			dc.ClosePath()
		}
		dc.SetFillRuleEvenOdd()
		fillAndStroke(dc, style)
	case orb.MultiPolygon:
		for _, poly := range g {
			drawGeometry(dc, p, poly, style)
		}
	case orb.Collection:
		for _, child := range g {
			drawGeometry(dc, p, child, style)
		}
	case orb.Bound:
		drawGeometry(dc, p, g.ToPolygon(), style)
	}
}

func tracePath(dc *gg.Context, p projection, ls orb.LineString) {
	dc.NewSubPath()
	for i, pt := range ls {
		x, y := p.apply(pt)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
}

func fillAndStroke(dc *gg.Context, style mapctx.Style) {
	dc.SetColor(style.FillColor())
	dc.FillPreserve()
	dc.SetColor(style.StrokeColor())
	dc.SetLineWidth(style.Width)
	dc.Stroke()
}

// SavePNG writes an image to a PNG file
func SavePNG(path string, img image.Image) error {
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
