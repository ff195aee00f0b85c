package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/postgis"
	"github.com/1F47E/touchmap/pkg/rtree"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var indexCmd = &cobra.Command{
	Use:   "index INPUT.geojson",
	Short: "Build an index snapshot from a GeoJSON file",
	Long:  `Load a GeoJSON FeatureCollection into the R-Tree index and save it as a snapshot layer source.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var importCmd = &cobra.Command{
	Use:   "import INPUT.geojson",
	Short: "Import a GeoJSON file into a PostGIS table",
	Long:  `Recreate a PostGIS table from a GeoJSON FeatureCollection, one TEXT column per attribute, and index its geometry.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var (
	snapshotFile string
	tableName    string
	geomColumn   string
	srid         int
	fields       []string
)

func init() {
	indexCmd.Flags().StringVarP(&snapshotFile, "out", "o", "layer.gob", "Snapshot file path")

	importCmd.Flags().StringVarP(&tableName, "table", "t", "", "Target table")
	importCmd.Flags().StringVar(&geomColumn, "geometry-column", "geom", "Geometry column name")
	importCmd.Flags().IntVar(&srid, "srid", postgis.DefaultSRID, "Spatial reference of the input")
	importCmd.Flags().StringSliceVar(&fields, "fields", nil, "Attributes to import (default all)")
	_ = importCmd.MarkFlagRequired("table")
}

func runIndex(cmd *cobra.Command, args []string) error {
	printTitle("Building index snapshot")

	start := time.Now()
	features, err := rtree.LoadGeoJSON(args[0])
	if err != nil {
		return err
	}

	index := rtree.NewFeatureIndex()
	if err := index.IndexFeatures(features); err != nil {
		return fmt.Errorf("failed to index features: %w", err)
	}
	loadTime := time.Since(start)

	if err := index.SaveToFile(snapshotFile); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	logger.Info("index snapshot written",
		zap.String("input", args[0]),
		zap.String("output", snapshotFile),
		zap.Int64("features", index.Count()))

	printSuccess(fmt.Sprintf("Indexed %d features in %v", index.Count(), loadTime))
	if skipped := len(features) - int(index.Count()); skipped > 0 {
		printInfo(fmt.Sprintf("%d features without geometry skipped", skipped))
	}
	if b, ok := index.Bound(); ok {
		printStat("Bound", fmt.Sprintf("[%g %g, %g %g]", b.Min[0], b.Min[1], b.Max[0], b.Max[1]))
	}
	printStat("Snapshot", snapshotFile)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	if !cfg.PostGIS.Enabled() {
		return fmt.Errorf("postgis.host is not configured")
	}
	ctx := cmd.Context()

	features, err := rtree.LoadGeoJSON(args[0])
	if err != nil {
		return err
	}

	importFields := fields
	if len(importFields) == 0 {
		importFields = propertyNames(features, geomColumn)
	}

	db, err := postgis.Open(ctx, cfg.PostGIS.Connection(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := postgis.Schema{
		Table:          tableName,
		GeometryColumn: geomColumn,
		SRID:           srid,
		Fields:         importFields,
	}

	printTitle(fmt.Sprintf("Importing %d features into %s", len(features), tableName))
	if err := db.InitSchema(ctx, schema); err != nil {
		return err
	}

	start := time.Now()
	err = db.ImportFeatures(ctx, schema, features, func(done, total int) {
		printProgress(done, total, "Inserting")
	})
	if err != nil {
		return err
	}
	insertTime := time.Since(start)

	if err := db.CreateSpatialIndex(ctx, schema); err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Imported %d features in %v", len(features), insertTime))
	stats, err := db.Stats(ctx, tableName)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printStat(k, stats[k])
	}
	return nil
}

// propertyNames lists every attribute name found in the features, sorted
func propertyNames(features []*models.Feature, geomColumn string) []string {
	seen := map[string]bool{}
	for _, f := range features {
		for name := range f.Properties {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		// both names are taken by the import table
		if name == "id" || name == geomColumn {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
