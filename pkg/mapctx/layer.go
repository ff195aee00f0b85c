package mapctx

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync/atomic"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/paulmach/orb"
)

// Source provides the features of a layer
type Source interface {
	GeometryColumn() string
	Query(ctx context.Context, filter query.SpatialFilter) ([]query.Record, error)
	Features(ctx context.Context, b orb.Bound) ([]*models.Feature, error)
	Bound(ctx context.Context) (orb.Bound, error)
	Close() error
}

// Style controls how a layer is drawn
type Style struct {
	Fill        string  `yaml:"fill"`
	Stroke      string  `yaml:"stroke"`
	Width       float64 `yaml:"width"`
	PointRadius float64 `yaml:"point_radius"`
	Opacity     float64 `yaml:"opacity"`
}

// DefaultStyle is applied to the unset attributes of a layer style
var DefaultStyle = Style{
	Fill:        "#9ecae1",
	Stroke:      "#3182bd",
	Width:       1,
	PointRadius: 3,
	Opacity:     0.8,
}

func (s Style) withDefaults() Style {
	if s.Fill == "" {
		s.Fill = DefaultStyle.Fill
	}
	if s.Stroke == "" {
		s.Stroke = DefaultStyle.Stroke
	}
	if s.Width <= 0 {
		s.Width = DefaultStyle.Width
	}
	if s.PointRadius <= 0 {
		s.PointRadius = DefaultStyle.PointRadius
	}
	if s.Opacity <= 0 || s.Opacity > 1 {
		s.Opacity = DefaultStyle.Opacity
	}
	return s
}

func (s Style) validate() error {
	if _, err := parseHex(s.Fill, 1); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if _, err := parseHex(s.Stroke, 1); err != nil {
		return fmt.Errorf("stroke: %w", err)
	}
	return nil
}

// FillColor returns the fill color with the layer opacity applied
func (s Style) FillColor() color.NRGBA {
	c, _ := parseHex(s.Fill, s.Opacity)
	return c
}

// StrokeColor returns the opaque stroke color
func (s Style) StrokeColor() color.NRGBA {
	c, _ := parseHex(s.Stroke, 1)
	return c
}

// parseHex reads #rgb or #rrggbb
func parseHex(s string, opacity float64) (color.NRGBA, error) {
	c := color.NRGBA{A: uint8(opacity*255 + 0.5)}
	hex := strings.TrimPrefix(s, "#")

	var err error
	switch len(hex) {
	case 6:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 3:
		_, err = fmt.Sscanf(hex, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R, c.G, c.B = c.R*17, c.G*17, c.B*17
	default:
		err = fmt.Errorf("invalid color %q", s)
	}
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return c, nil
}

// Layer is a named, toggleable feature source. It satisfies query.Layer.
type Layer struct {
	name    string
	source  Source
	style   Style
	visible atomic.Bool
}

// NewLayer creates a layer. Unset style attributes take DefaultStyle values.
func NewLayer(name string, source Source, visible bool, style Style) *Layer {
	l := &Layer{name: name, source: source, style: style.withDefaults()}
	l.visible.Store(visible)
	return l
}

func (l *Layer) Name() string {
	return l.name
}

func (l *Layer) Visible() bool {
	return l.visible.Load()
}

func (l *Layer) GeometryColumn() string {
	return l.source.GeometryColumn()
}

func (l *Layer) Style() Style {
	return l.style
}

func (l *Layer) Source() Source {
	return l.source
}

// Query forwards the filter to the layer source
func (l *Layer) Query(ctx context.Context, filter query.SpatialFilter) ([]query.Record, error) {
	return l.source.Query(ctx, filter)
}

// Features returns the features to draw inside b
func (l *Layer) Features(ctx context.Context, b orb.Bound) ([]*models.Feature, error) {
	return l.source.Features(ctx, b)
}

func (l *Layer) setVisible(v bool) {
	l.visible.Store(v)
}

func (l *Layer) toggle() bool {
	for {
		old := l.visible.Load()
		if l.visible.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
