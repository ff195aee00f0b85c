// Package query resolves a tap on the map to a text summary of the feature
// under it.
//
// Layers are consulted in order and the first layer that answers wins, even
// when its answer is ambiguous. Spatial filters are passed to layers as
// structured values; building SQL or any other query language is the layer's
// job.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const (
	// NoInformation is returned when no visible layer has data under the tap
	NoInformation = "No Information Available"
	// ZoomMessage is returned when the first answering layer matches more than one feature
	ZoomMessage = "Zoom to have more precise information"

	defaultHalfSize = 10.0
)

// Predicate is a spatial relation between a layer geometry and the envelope
type Predicate int

const (
	Intersects Predicate = iota
)

// String returns the SQL function implementing the predicate
func (p Predicate) String() string {
	switch p {
	case Intersects:
		return "ST_Intersects"
	default:
		return fmt.Sprintf("Predicate(%d)", int(p))
	}
}

// SpatialFilter selects the features of a layer that relate to an envelope
type SpatialFilter struct {
	Layer          string
	GeometryColumn string
	Predicate      Predicate
	Envelope       orb.Polygon
}

// Record is one matched feature, geometry excluded, fields in source order
type Record struct {
	Fields []models.Field
}

// Projector converts screen pixels to world coordinates
type Projector interface {
	ScreenToWorld(models.ScreenPoint) models.WorldPoint
}

// Layer is a queryable, toggleable source of features
type Layer interface {
	Name() string
	Visible() bool
	GeometryColumn() string
	Query(ctx context.Context, filter SpatialFilter) ([]Record, error)
}

// Outcome classifies a query result
type Outcome string

const (
	OutcomeHit       Outcome = "hit"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNone      Outcome = "none"
)

// Result is the answer to a tap
type Result struct {
	Text    string
	Layer   string
	Outcome Outcome
	Matches int
	// Failed lists the layers whose backend returned an error during the scan
	Failed []string
}

// Option configures a Planner
type Option func(*Planner)

// WithHalfSize sets the half width of the query envelope in screen pixels
func WithHalfSize(px float64) Option {
	return func(p *Planner) {
		if px > 0 {
			p.halfSize = px
		}
	}
}

// Planner turns taps into layer queries
type Planner struct {
	log      *zap.Logger
	halfSize float64
}

// NewPlanner creates a planner. A nil logger discards output.
func NewPlanner(logger *zap.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{
		log:      logger,
		halfSize: defaultHalfSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HalfSize returns the half width of the query envelope in pixels
func (p *Planner) HalfSize() float64 {
	return p.halfSize
}

// Envelope builds the query polygon around a tap.
// Each corner is converted on its own so that the polygon stays exact under any projector.
func (p *Planner) Envelope(proj Projector, tap models.ScreenPoint) orb.Polygon {
	h := p.halfSize
	convert := func(x, y float64) orb.Point {
		return proj.ScreenToWorld(models.ScreenPoint{X: x, Y: y}).Point()
	}

	lowerLeft := convert(tap.X-h, tap.Y+h)
	upperLeft := convert(tap.X-h, tap.Y-h)
	upperRight := convert(tap.X+h, tap.Y-h)
	lowerRight := convert(tap.X+h, tap.Y+h)

	return orb.Polygon{orb.Ring{lowerLeft, upperLeft, upperRight, lowerRight, lowerLeft}}
}

// Query looks for information under tap in the visible layers, in order
func (p *Planner) Query(ctx context.Context, tap models.ScreenPoint, proj Projector, layers []Layer) (Result, error) {
	envelope := p.Envelope(proj, tap)
	var failed []string

	for _, layer := range layers {
		if !layer.Visible() {
			continue
		}

		filter := SpatialFilter{
			Layer:          layer.Name(),
			GeometryColumn: layer.GeometryColumn(),
			Predicate:      Intersects,
			Envelope:       envelope,
		}

		records, err := layer.Query(ctx, filter)
		if err != nil {
			var engineErr *EngineUnavailableError
			if errors.As(err, &engineErr) {
				return Result{}, err
			}
			backendErr := &BackendError{Layer: layer.Name(), Err: err}
			p.log.Warn("layer query failed, skipping layer",
				zap.String("layer", layer.Name()),
				zap.Error(backendErr))
			failed = append(failed, layer.Name())
			continue
		}

		switch len(records) {
		case 0:
			continue
		case 1:
			text := FormatRecord(records[0])
			if text == "" {
				// matched feature carries no attributes
				continue
			}
			return Result{Text: text, Layer: layer.Name(), Outcome: OutcomeHit, Matches: 1, Failed: failed}, nil
		default:
			return Result{Text: ZoomMessage, Layer: layer.Name(), Outcome: OutcomeAmbiguous, Matches: len(records), Failed: failed}, nil
		}
	}

	return Result{Text: NoInformation, Outcome: OutcomeNone, Failed: failed}, nil
}

// FormatRecord renders each field as "name : value" on its own line
func FormatRecord(r Record) string {
	var b strings.Builder
	for _, f := range r.Fields {
		b.WriteString(f.Name)
		b.WriteString(" : ")
		b.WriteString(formatValue(f.Value))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
