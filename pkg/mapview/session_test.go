package mapview

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/metrics"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/rtree"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var screen = viewport.Config{ScreenWidth: 800, ScreenHeight: 600, BufferFactor: 1}

// fakeRenderer records the extents it was asked to draw and returns a fresh
// image per call so tests can tell renders apart
type fakeRenderer struct {
	extents []models.Extent
	visible [][]string
	fail    error
}

func (r *fakeRenderer) Render(_ context.Context, m *mapctx.MapContext, extent models.Extent, width, height int) (image.Image, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	r.extents = append(r.extents, extent)
	var names []string
	for _, l := range m.Layers() {
		if l.Visible() {
			names = append(names, l.Name())
		}
	}
	r.visible = append(r.visible, names)
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

func testMap(t *testing.T) *mapctx.MapContext {
	t.Helper()

	wells := rtree.NewFeatureIndex()
	require.NoError(t, wells.IndexFeatures([]*models.Feature{
		{ID: "w1", Geometry: orb.Point{50, 50}, Properties: map[string]interface{}{"name": "Well 1"}},
		{ID: "w2", Geometry: orb.Point{70, 70}, Properties: map[string]interface{}{"name": "Well 2"}},
		{ID: "w3", Geometry: orb.Point{70.5, 70.5}, Properties: map[string]interface{}{"name": "Well 3"}},
	}))
	parcels := rtree.NewFeatureIndex()
	require.NoError(t, parcels.IndexFeatures([]*models.Feature{
		{ID: "p1", Geometry: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{40, 40}}.ToPolygon(), Properties: map[string]interface{}{"name": "North"}},
	}))

	m, err := mapctx.New("test",
		mapctx.NewLayer("wells", rtree.NewSource(wells, "", nil), true, mapctx.Style{}),
		mapctx.NewLayer("parcels", rtree.NewSource(parcels, "", nil), true, mapctx.Style{}),
	)
	require.NoError(t, err)
	require.NoError(t, m.SetDefaultExtent(models.Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}))
	return m
}

func newSession(t *testing.T, r *fakeRenderer, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := New(context.Background(), screen, testMap(t), r, opts...)
	require.NoError(t, err)
	return s
}

func TestNewRendersInitialExtent(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)

	require.Len(t, r.extents, 1)
	assert.Equal(t, models.Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}, r.extents[0])
	assert.Equal(t, image.Rect(0, 0, 800, 600), s.Thumbnail().Bounds())
	assert.Len(t, s.Layers(), 2)
	assert.NotNil(t, s.Viewport())
	assert.Equal(t, "test", s.Map().Name())
}

func TestNewErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, viewport.Config{ScreenWidth: 0, ScreenHeight: 600, BufferFactor: 1}, testMap(t), &fakeRenderer{})
	var cfgErr *viewport.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(ctx, screen, testMap(t), &fakeRenderer{fail: errors.New("boom")})
	assert.Error(t, err)

	empty, err := mapctx.New("empty", mapctx.NewLayer("a", rtree.NewSource(rtree.NewFeatureIndex(), "", nil), true, mapctx.Style{}))
	require.NoError(t, err)
	_, err = New(ctx, screen, empty, &fakeRenderer{})
	assert.ErrorIs(t, err, mapctx.ErrNoExtent)
}

func TestMove(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	before := s.Thumbnail()

	img, err := s.Move(context.Background(), 80, 0)
	require.NoError(t, err)

	assert.Equal(t, models.Extent{MinX: -10, MinY: 0, MaxX: 90, MaxY: 100}, s.Extent())
	assert.Equal(t, s.Extent(), r.extents[len(r.extents)-1])
	assert.NotSame(t, before, img)
}

func TestMoveRedrawFailureRestoresView(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	before := s.Thumbnail()

	r.fail = errors.New("renderer crashed")
	img, err := s.Move(context.Background(), 80, 0)
	require.Error(t, err)

	assert.Equal(t, models.Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}, s.Extent())
	assert.Same(t, before, img)
}

func TestScale(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)

	_, err := s.Scale(context.Background(), 1.25, 1.25)
	require.NoError(t, err)
	assert.Equal(t, models.Extent{MinX: 25, MinY: 25, MaxX: 75, MaxY: 75}, s.Extent())
	assert.Len(t, r.extents, 2)
}

func TestScaleInvalidKeepsView(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	before := s.Thumbnail()

	img, err := s.Scale(context.Background(), 1.6, 1.6)

	var scaleErr *viewport.InvalidScaleError
	require.ErrorAs(t, err, &scaleErr)
	assert.Same(t, before, img)
	assert.Equal(t, models.Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}, s.Extent())
	assert.Len(t, r.extents, 1)
}

func TestToggleLayer(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	ctx := context.Background()

	state, err := s.ToggleLayer(ctx, "parcels")
	require.NoError(t, err)
	assert.False(t, state)
	assert.Equal(t, []string{"wells"}, r.visible[len(r.visible)-1])

	state, err = s.ToggleLayer(ctx, "parcels")
	require.NoError(t, err)
	assert.True(t, state)

	_, err = s.ToggleLayer(ctx, "roads")
	assert.ErrorIs(t, err, mapctx.ErrLayerNotFound)
	assert.Len(t, r.extents, 3)
}

func TestToggleLayerRedrawFailure(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)

	r.fail = errors.New("renderer crashed")
	state, err := s.ToggleLayer(context.Background(), "wells")
	require.Error(t, err)
	assert.True(t, state)

	l, err := s.Map().Layer("wells")
	require.NoError(t, err)
	assert.True(t, l.Visible())
}

func TestSetLayerVisible(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	ctx := context.Background()

	state, err := s.SetLayerVisible(ctx, "wells", false)
	require.NoError(t, err)
	assert.False(t, state)
	assert.Equal(t, []string{"parcels"}, r.visible[len(r.visible)-1])

	_, err = s.SetLayerVisible(ctx, "roads", true)
	assert.ErrorIs(t, err, mapctx.ErrLayerNotFound)
}

func TestInfo(t *testing.T) {
	s := newSession(t, &fakeRenderer{})
	ctx := context.Background()

	testCases := []struct {
		name    string
		tap     models.ScreenPoint
		text    string
		layer   string
		outcome query.Outcome
	}{
		// (400, 300) is world (50, 50)
		{"top layer hit", models.ScreenPoint{X: 400, Y: 300}, "name : Well 1", "wells", query.OutcomeHit},
		// (160, 480) is world (20, 20), no well there
		{"falls through to parcels", models.ScreenPoint{X: 160, Y: 480}, "name : North", "parcels", query.OutcomeHit},
		// (560, 180) is world (70, 70) with two wells
		{"ambiguous", models.ScreenPoint{X: 560, Y: 180}, query.ZoomMessage, "wells", query.OutcomeAmbiguous},
		// (720, 60) is world (90, 90)
		{"nothing", models.ScreenPoint{X: 720, Y: 60}, query.NoInformation, "", query.OutcomeNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.Info(ctx, tc.tap)
			require.NoError(t, err)
			assert.Equal(t, tc.text, result.Text)
			assert.Equal(t, tc.layer, result.Layer)
			assert.Equal(t, tc.outcome, result.Outcome)
		})
	}
}

func TestInfoHiddenLayer(t *testing.T) {
	s := newSession(t, &fakeRenderer{})
	ctx := context.Background()

	_, err := s.SetLayerVisible(ctx, "wells", false)
	require.NoError(t, err)

	result, err := s.Info(ctx, models.ScreenPoint{X: 400, Y: 300})
	require.NoError(t, err)
	assert.Equal(t, query.NoInformation, result.Text)
}

func TestReset(t *testing.T) {
	r := &fakeRenderer{}
	s := newSession(t, r)
	ctx := context.Background()

	_, err := s.Move(ctx, 80, 60)
	require.NoError(t, err)
	_, err = s.Scale(ctx, 1.1, 1.1)
	require.NoError(t, err)

	_, err = s.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}, s.Extent())
}

func TestSessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newSession(t, &fakeRenderer{}, WithMetrics(metrics.New(reg)), WithPlanner(query.NewPlanner(nil, query.WithHalfSize(5))))
	ctx := context.Background()

	_, err := s.Move(ctx, 1, 1)
	require.NoError(t, err)
	_, err = s.Info(ctx, models.ScreenPoint{X: 400, Y: 300})
	require.NoError(t, err)
	_, _ = s.Scale(ctx, 2, 2)

	expected := `
# HELP touchmap_gesture_total Total gestures applied to the map
# TYPE touchmap_gesture_total counter
touchmap_gesture_total{kind="info"} 1
touchmap_gesture_total{kind="pan"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "touchmap_gesture_total"))

	count, err := testutil.GatherAndCount(reg, "touchmap_render_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
