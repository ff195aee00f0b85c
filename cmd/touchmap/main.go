package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/1F47E/touchmap/pkg/config"
	"github.com/1F47E/touchmap/pkg/logging"
	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/mapview"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/postgis"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	mapFile    string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "touchmap",
	Short: "Touch driven map viewer",
	Long: `Render vector layers, pan and zoom them with gestures and tap features
to read their attributes. Layers come from GeoJSON files, index snapshots or PostGIS.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the map to a PNG file",
	Long:  `Open the map on its default extent, apply the requested gestures and save the raster.`,
	RunE:  runRender,
}

var infoCmd = &cobra.Command{
	Use:   "info X Y",
	Short: "Describe the feature under a screen point",
	Long:  `Resolve a tap at screen pixel X Y against the visible layers, topmost first.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runInfo,
}

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the layers of the map",
	RunE:  runLayers,
}

// gesture flags shared by render and info
var (
	outFile  string
	panX     float64
	panY     float64
	zoom     float64
	hidden   []string
	halfSize float64
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./touchmap.yaml)")
	rootCmd.PersistentFlags().StringVarP(&mapFile, "map", "m", "", "Map document, overrides map.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides log.level")

	for _, cmd := range []*cobra.Command{renderCmd, infoCmd} {
		cmd.Flags().Float64Var(&panX, "pan-x", 0, "Horizontal drag in screen pixels")
		cmd.Flags().Float64Var(&panY, "pan-y", 0, "Vertical drag in screen pixels")
		cmd.Flags().Float64VarP(&zoom, "zoom", "z", 1, "Scale factor, above 1 zooms in")
		cmd.Flags().StringSliceVar(&hidden, "hide", nil, "Layers to hide")
	}
	renderCmd.Flags().StringVarP(&outFile, "out", "o", "map.png", "Output PNG file")
	infoCmd.Flags().Float64Var(&halfSize, "half-size", 0, "Half width of the tap envelope in pixels, overrides query.half_size")

	rootCmd.AddCommand(renderCmd, infoCmd, layersCmd, indexCmd, importCmd, viewCmd, benchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if mapFile != "" {
		cfg.Map.Path = mapFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	var outputs []string
	if cfg.Log.File != "" {
		outputs = append(outputs, cfg.Log.File)
	}
	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, outputs...)
	return err
}

// openMap loads the map document, connecting to PostGIS when configured.
// The returned function releases both.
func openMap(ctx context.Context) (*mapctx.MapContext, func(), error) {
	if cfg.Map.Path == "" {
		return nil, nil, fmt.Errorf("no map document, use --map or map.path")
	}

	var db *postgis.DB
	if cfg.PostGIS.Enabled() {
		var err error
		db, err = postgis.Open(ctx, cfg.PostGIS.Connection(), logger)
		if err != nil {
			return nil, nil, err
		}
	}

	m, err := mapctx.Load(ctx, cfg.Map.Path, mapctx.LoadOptions{DB: db, Logger: logger})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return m, func() {
		if err := m.Close(); err != nil {
			logger.Warn("failed to close map", zap.Error(err))
		}
		db.Close()
	}, nil
}

func openSession(ctx context.Context, m *mapctx.MapContext, opts ...mapview.Option) (*mapview.Session, error) {
	opts = append([]mapview.Option{
		mapview.WithLogger(logger),
		mapview.WithPlanner(query.NewPlanner(logger, query.WithHalfSize(cfg.Query.HalfSize))),
	}, opts...)
	return mapview.New(ctx, cfg.Screen.Viewport(), m, render.New(logger), opts...)
}

// applyGestures replays the command line gestures on a fresh session
func applyGestures(ctx context.Context, s *mapview.Session) error {
	for _, name := range hidden {
		if _, err := s.SetLayerVisible(ctx, strings.TrimSpace(name), false); err != nil {
			return err
		}
	}
	if panX != 0 || panY != 0 {
		if _, err := s.Move(ctx, panX, panY); err != nil {
			return err
		}
	}
	if zoom != 1 {
		if _, err := s.Scale(ctx, zoom, zoom); err != nil {
			return err
		}
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, closeMap, err := openMap(ctx)
	if err != nil {
		return err
	}
	defer closeMap()

	s, err := openSession(ctx, m)
	if err != nil {
		return err
	}
	if err := applyGestures(ctx, s); err != nil {
		return err
	}

	if err := render.SavePNG(outFile, s.Thumbnail()); err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Map saved to %s", outFile))
	printStat("Extent", s.Extent())
	width, height := s.Viewport().ImageSize()
	printStat("Image", fmt.Sprintf("%dx%d", width, height))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid X %q: %w", args[0], err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid Y %q: %w", args[1], err)
	}
	if halfSize > 0 {
		cfg.Query.HalfSize = halfSize
	}

	ctx := cmd.Context()
	m, closeMap, err := openMap(ctx)
	if err != nil {
		return err
	}
	defer closeMap()

	s, err := openSession(ctx, m)
	if err != nil {
		return err
	}
	if err := applyGestures(ctx, s); err != nil {
		return err
	}

	tap := models.ScreenPoint{X: x, Y: y}
	result, err := s.Info(ctx, tap)
	if err != nil {
		return err
	}

	world := s.Viewport().ScreenToWorld(tap)
	printSubtitle(fmt.Sprintf("Tap at (%g, %g) → world (%.6g, %.6g)", x, y, world.X, world.Y))
	if result.Layer != "" {
		printStat("Layer", result.Layer)
	}
	for _, name := range result.Failed {
		printError(fmt.Sprintf("layer %s failed and was skipped", name))
	}
	fmt.Println(result.Text)
	return nil
}

func runLayers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, closeMap, err := openMap(ctx)
	if err != nil {
		return err
	}
	defer closeMap()

	printTitle(m.Name())
	for i, l := range m.Layers() {
		state := "hidden"
		if l.Visible() {
			state = "visible"
		}
		printInfo(fmt.Sprintf("%d. %-20s %-8s geometry=%s fill=%s", i+1, l.Name(), state, l.GeometryColumn(), l.Style().Fill))
	}

	if e, err := m.DefaultExtent(ctx); err == nil {
		printStat("Default extent", e)
	} else {
		printError(err.Error())
	}
	return nil
}
