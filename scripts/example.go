package main

import (
	"context"
	"fmt"

	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/mapview"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/render"
	"github.com/1F47E/touchmap/pkg/rtree"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	ctx := context.Background()

	// Sample points for major US cities
	cities := rtree.NewFeatureIndex()
	err := cities.IndexFeatures([]*models.Feature{
		{ID: "NYC", Geometry: orb.Point{-74.0060, 40.7128}, Properties: map[string]interface{}{"name": "New York", "population": 8336817}},
		{ID: "LAX", Geometry: orb.Point{-118.2437, 34.0522}, Properties: map[string]interface{}{"name": "Los Angeles", "population": 3979576}},
		{ID: "CHI", Geometry: orb.Point{-87.6298, 41.8781}, Properties: map[string]interface{}{"name": "Chicago", "population": 2693976}},
		{ID: "HOU", Geometry: orb.Point{-95.3698, 29.7604}, Properties: map[string]interface{}{"name": "Houston", "population": 2320268}},
		{ID: "DAL", Geometry: orb.Point{-96.7970, 32.7767}, Properties: map[string]interface{}{"name": "Dallas", "population": 1343573}},
		{ID: "SFO", Geometry: orb.Point{-122.4194, 37.7749}, Properties: map[string]interface{}{"name": "San Francisco", "population": 881549}},
	})
	if err != nil {
		logger.Fatal("failed to index cities", zap.Error(err))
	}

	states := rtree.NewFeatureIndex()
	err = states.IndexFeatures([]*models.Feature{
		{ID: "CA", Geometry: orb.Bound{Min: orb.Point{-124.5, 32.5}, Max: orb.Point{-114.0, 42.0}}.ToPolygon(), Properties: map[string]interface{}{"state": "California"}},
		{ID: "TX", Geometry: orb.Bound{Min: orb.Point{-106.6, 25.8}, Max: orb.Point{-93.5, 36.5}}.ToPolygon(), Properties: map[string]interface{}{"state": "Texas"}},
	})
	if err != nil {
		logger.Fatal("failed to index states", zap.Error(err))
	}

	// Cities are drawn on top of states and answer taps first
	m, err := mapctx.New("US",
		mapctx.NewLayer("cities", rtree.NewSource(cities, "", []string{"name", "population"}), true, mapctx.Style{Fill: "#d62728", PointRadius: 5}),
		mapctx.NewLayer("states", rtree.NewSource(states, "", nil), true, mapctx.Style{Fill: "#c6dbef", Opacity: 0.6}),
	)
	if err != nil {
		logger.Fatal("failed to build map", zap.Error(err))
	}

	screen := viewport.Config{ScreenWidth: 800, ScreenHeight: 400, BufferFactor: 1.2}
	s, err := mapview.New(ctx, screen, m, render.New(logger), mapview.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to open session", zap.Error(err))
	}

	// Example 1: tap on Dallas
	fmt.Println("=== Tap on Dallas ===")
	tap := s.Viewport().WorldToScreen(models.WorldPoint{X: -96.7970, Y: 32.7767})
	result, err := s.Info(ctx, tap)
	if err != nil {
		logger.Fatal("query failed", zap.Error(err))
	}
	fmt.Printf("%s\n\n", result.Text)

	// Example 2: hide the cities, the same tap now reaches the state
	fmt.Println("=== Same tap without cities ===")
	if _, err := s.ToggleLayer(ctx, "cities"); err != nil {
		logger.Fatal("toggle failed", zap.Error(err))
	}
	result, _ = s.Info(ctx, tap)
	fmt.Printf("%s\n\n", result.Text)

	// Example 3: zoom in and drag the view
	fmt.Println("=== Zoom and pan ===")
	if _, err := s.Scale(ctx, 1.25, 1.25); err != nil {
		logger.Fatal("zoom failed", zap.Error(err))
	}
	if _, err := s.Move(ctx, 100, 0); err != nil {
		logger.Fatal("pan failed", zap.Error(err))
	}
	fmt.Printf("Extent: %s\n", s.Extent())

	// Save the raster
	fmt.Println("\n=== Saving map ===")
	if err := render.SavePNG("cities.png", s.Thumbnail()); err != nil {
		logger.Fatal("failed to save map", zap.Error(err))
	}
	fmt.Println("Map saved to cities.png")

	// Save the index
	if err := cities.SaveToFile("cities.gob"); err != nil {
		logger.Fatal("failed to save index", zap.Error(err))
	}
	fmt.Printf("Index with %d cities saved to cities.gob\n", cities.Count())
}
