package postgis

import (
	"context"
	"fmt"
	"time"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/paulmach/orb/encoding/ewkb"
	"go.uber.org/zap"
)

const batchSize = 10000

// Schema describes an import table
type Schema struct {
	Table          string
	GeometryColumn string
	SRID           int
	// Fields become TEXT columns, in this order
	Fields []string
}

func (s Schema) withDefaults() Schema {
	if s.GeometryColumn == "" {
		s.GeometryColumn = "geom"
	}
	if s.SRID == 0 {
		s.SRID = DefaultSRID
	}
	return s
}

// InitSchema creates the postgis extension and recreates the table
func (d *DB) InitSchema(ctx context.Context, schema Schema) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	schema = schema.withDefaults()

	for _, q := range buildSchemaQueries(schema.Table, schema.GeometryColumn, schema.SRID, schema.Fields) {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", q, err)
		}
	}
	return nil
}

// CreateSpatialIndex creates a GIST index on the geometry column
func (d *DB) CreateSpatialIndex(ctx context.Context, schema Schema) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	schema = schema.withDefaults()

	start := time.Now()
	if _, err := db.ExecContext(ctx, buildIndexQuery(schema.Table, schema.GeometryColumn)); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}

	// Analyze table for better query planning
	if _, err := db.ExecContext(ctx, "ANALYZE "+quoteName(schema.Table)); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	d.logger.Info("created spatial index",
		zap.String("table", schema.Table),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ImportFeatures inserts features in batched transactions. progress, when
// set, is called after every committed batch.
func (d *DB) ImportFeatures(ctx context.Context, schema Schema, features []*models.Feature, progress func(done, total int)) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	schema = schema.withDefaults()

	stmtSQL := buildInsertQuery(schema.Table, schema.GeometryColumn, schema.Fields)
	for start := 0; start < len(features); start += batchSize {
		end := min(start+batchSize, len(features))

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, stmtSQL)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare statement: %w", err)
		}

		for _, f := range features[start:end] {
			if _, err := stmt.ExecContext(ctx, insertArgs(f, schema)...); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("failed to insert feature %s: %w", f.ID, err)
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		if progress != nil {
			progress(end, len(features))
		}
	}

	d.logger.Info("imported features",
		zap.String("table", schema.Table),
		zap.Int("count", len(features)))
	return nil
}

func insertArgs(f *models.Feature, schema Schema) []interface{} {
	args := make([]interface{}, 0, len(schema.Fields)+2)
	args = append(args, f.ID)
	for _, name := range schema.Fields {
		v, ok := f.Properties[name]
		if !ok || v == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, fmt.Sprint(v))
	}
	return append(args, ewkb.Value(f.Geometry, schema.SRID))
}

// Count returns the number of rows of a table
func (d *DB) Count(ctx context.Context, table string) (int64, error) {
	db, err := d.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteName(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

// Stats returns database size and table statistics
func (d *DB) Stats(ctx context.Context, table string) (map[string]interface{}, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]interface{})

	var dbSize string
	err = db.QueryRowContext(ctx, `SELECT pg_size_pretty(pg_database_size(current_database()))`).Scan(&dbSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get database size: %w", err)
	}
	stats["database_size"] = dbSize

	var tableSize, indexSize string
	err = db.QueryRowContext(ctx, `
		SELECT
			pg_size_pretty(pg_total_relation_size($1::regclass)),
			pg_size_pretty(pg_indexes_size($1::regclass))
	`, table).Scan(&tableSize, &indexSize)
	if err != nil {
		// Table might not exist yet
		stats["table_size"] = "0 bytes"
		stats["index_size"] = "0 bytes"
	} else {
		stats["table_size"] = tableSize
		stats["index_size"] = indexSize
	}

	count, err := d.Count(ctx, table)
	if err == nil {
		stats["row_count"] = count
	}
	return stats, nil
}
