package query

import (
	"context"
	"errors"
	"testing"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeLayer struct {
	name    string
	visible bool
	records []Record
	err     error

	calls   int
	filters []SpatialFilter
}

func (l *fakeLayer) Name() string           { return l.name }
func (l *fakeLayer) Visible() bool          { return l.visible }
func (l *fakeLayer) GeometryColumn() string { return "the_geom" }

func (l *fakeLayer) Query(_ context.Context, filter SpatialFilter) ([]Record, error) {
	l.calls++
	l.filters = append(l.filters, filter)
	return l.records, l.err
}

func record(fields ...models.Field) Record {
	return Record{Fields: fields}
}

func newViewport(t *testing.T) *viewport.Controller {
	t.Helper()
	vp, err := viewport.New(
		viewport.Config{ScreenWidth: 800, ScreenHeight: 600, BufferFactor: 1},
		models.Extent{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100},
	)
	require.NoError(t, err)
	return vp
}

func TestEnvelope(t *testing.T) {
	planner := NewPlanner(nil)
	vp := newViewport(t)

	env := planner.Envelope(vp, models.ScreenPoint{X: 400, Y: 300})
	require.Len(t, env, 1)
	ring := env[0]
	require.Len(t, ring, 5)
	assert.True(t, ring.Closed())

	// 10 pixels are 1.25 units horizontally and 1.6667 vertically
	expected := []orb.Point{
		{48.75, 50 - 10.0/6},
		{48.75, 50 + 10.0/6},
		{51.25, 50 + 10.0/6},
		{51.25, 50 - 10.0/6},
		{48.75, 50 - 10.0/6},
	}
	for i, p := range expected {
		assert.InDelta(t, p[0], ring[i][0], 1e-9, "corner %d x", i)
		assert.InDelta(t, p[1], ring[i][1], 1e-9, "corner %d y", i)
	}
}

func TestEnvelopeHalfSizeOption(t *testing.T) {
	planner := NewPlanner(nil, WithHalfSize(40))
	assert.Equal(t, 40.0, planner.HalfSize())

	env := planner.Envelope(newViewport(t), models.ScreenPoint{X: 400, Y: 300})
	b := env.Bound()
	assert.InDelta(t, 10, b.Max[0]-b.Min[0], 1e-9)

	// non-positive values keep the default
	assert.Equal(t, 10.0, NewPlanner(nil, WithHalfSize(0)).HalfSize())
}

func TestQueryFirstEmptySecondSingle(t *testing.T) {
	a := &fakeLayer{name: "a", visible: true}
	b := &fakeLayer{name: "b", visible: true, records: []Record{
		record(models.Field{Name: "name", Value: "Paris"}, models.Field{Name: "population", Value: 2148000}),
	}}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{X: 400, Y: 300}, newViewport(t), []Layer{a, b})
	require.NoError(t, err)

	assert.Equal(t, "name : Paris\npopulation : 2148000", result.Text)
	assert.Equal(t, "b", result.Layer)
	assert.Equal(t, OutcomeHit, result.Outcome)
	assert.Equal(t, 1, result.Matches)
	assert.NotEqual(t, ZoomMessage, result.Text)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestQueryAmbiguousFirstLayerStopsScan(t *testing.T) {
	a := &fakeLayer{name: "a", visible: true, records: []Record{
		record(models.Field{Name: "id", Value: 1}),
		record(models.Field{Name: "id", Value: 2}),
	}}
	b := &fakeLayer{name: "b", visible: true, records: []Record{
		record(models.Field{Name: "id", Value: 3}),
	}}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{X: 10, Y: 10}, newViewport(t), []Layer{a, b})
	require.NoError(t, err)

	assert.Equal(t, ZoomMessage, result.Text)
	assert.Equal(t, OutcomeAmbiguous, result.Outcome)
	assert.Equal(t, 2, result.Matches)
	assert.Equal(t, "a", result.Layer)
	assert.Equal(t, 0, b.calls, "later layers must not be consulted")
}

func TestQueryNoInformation(t *testing.T) {
	layers := []Layer{
		&fakeLayer{name: "a", visible: true},
		&fakeLayer{name: "b", visible: true},
	}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), layers)
	require.NoError(t, err)
	assert.Equal(t, NoInformation, result.Text)
	assert.Equal(t, OutcomeNone, result.Outcome)
	assert.Empty(t, result.Layer)

	result, err = NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), nil)
	require.NoError(t, err)
	assert.Equal(t, NoInformation, result.Text)
}

func TestQuerySkipsHiddenLayers(t *testing.T) {
	hidden := &fakeLayer{name: "hidden", visible: false, records: []Record{
		record(models.Field{Name: "name", Value: "secret"}),
	}}
	shown := &fakeLayer{name: "shown", visible: true, records: []Record{
		record(models.Field{Name: "name", Value: "public"}),
	}}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), []Layer{hidden, shown})
	require.NoError(t, err)
	assert.Equal(t, "name : public", result.Text)
	assert.Equal(t, 0, hidden.calls)
}

func TestQuerySingleMatchWithoutAttributesContinues(t *testing.T) {
	bare := &fakeLayer{name: "bare", visible: true, records: []Record{record()}}
	named := &fakeLayer{name: "named", visible: true, records: []Record{
		record(models.Field{Name: "name", Value: "Lyon"}),
	}}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), []Layer{bare, named})
	require.NoError(t, err)
	assert.Equal(t, "name : Lyon", result.Text)
	assert.Equal(t, "named", result.Layer)
}

func TestQueryBackendErrorIsLoggedAndSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	planner := NewPlanner(zap.New(core))

	broken := &fakeLayer{name: "broken", visible: true, err: errors.New("relation does not exist")}
	working := &fakeLayer{name: "working", visible: true, records: []Record{
		record(models.Field{Name: "code", Value: "75056"}),
	}}

	result, err := planner.Query(context.Background(), models.ScreenPoint{}, newViewport(t), []Layer{broken, working})
	require.NoError(t, err)
	assert.Equal(t, "code : 75056", result.Text)
	assert.Equal(t, []string{"broken"}, result.Failed)

	entries := logs.FilterField(zap.String("layer", "broken")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctxMap := entries[0].ContextMap()
	assert.Contains(t, ctxMap["error"], "relation does not exist")
}

func TestQueryBackendErrorOnEveryLayer(t *testing.T) {
	layers := []Layer{
		&fakeLayer{name: "a", visible: true, err: errors.New("parse error")},
		&fakeLayer{name: "b", visible: true, err: errors.New("driver error")},
	}

	result, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), layers)
	require.NoError(t, err)
	assert.Equal(t, NoInformation, result.Text)
	assert.Equal(t, []string{"a", "b"}, result.Failed)
}

func TestQueryEngineUnavailablePropagates(t *testing.T) {
	engineErr := &EngineUnavailableError{Engine: "postgis", Err: errors.New("connection refused")}
	a := &fakeLayer{name: "a", visible: true, err: errors.New("wrapped: " + engineErr.Error())}
	b := &fakeLayer{name: "b", visible: true, err: engineErr}
	c := &fakeLayer{name: "c", visible: true, records: []Record{record(models.Field{Name: "x", Value: 1})}}

	_, err := NewPlanner(nil).Query(context.Background(), models.ScreenPoint{}, newViewport(t), []Layer{a, b, c})
	require.Error(t, err)

	var target *EngineUnavailableError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "postgis", target.Engine)
	assert.Equal(t, 0, c.calls)
}

func TestQueryPassesStructuredFilter(t *testing.T) {
	layer := &fakeLayer{name: "communes", visible: true}
	planner := NewPlanner(nil)
	vp := newViewport(t)
	tap := models.ScreenPoint{X: 200, Y: 100}

	_, err := planner.Query(context.Background(), tap, vp, []Layer{layer})
	require.NoError(t, err)

	require.Len(t, layer.filters, 1)
	filter := layer.filters[0]
	assert.Equal(t, "communes", filter.Layer)
	assert.Equal(t, "the_geom", filter.GeometryColumn)
	assert.Equal(t, Intersects, filter.Predicate)
	assert.Equal(t, "ST_Intersects", filter.Predicate.String())
	assert.Equal(t, planner.Envelope(vp, tap), filter.Envelope)

	center := vp.ScreenToWorld(tap)
	assert.True(t, filter.Envelope.Bound().Contains(center.Point()))
}

func TestFormatRecord(t *testing.T) {
	testCases := []struct {
		name     string
		record   Record
		expected string
	}{
		{"empty", record(), ""},
		{"string and int", record(models.Field{Name: "a", Value: "x"}, models.Field{Name: "b", Value: 3}), "a : x\nb : 3"},
		{"bytes", record(models.Field{Name: "raw", Value: []byte("text")}), "raw : text"},
		{"null", record(models.Field{Name: "n", Value: nil}), "n : null"},
		{"float", record(models.Field{Name: "area", Value: 12.5}), "area : 12.5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatRecord(tc.record))
		})
	}
}
