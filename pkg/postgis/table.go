package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"go.uber.org/zap"
)

// DefaultSRID is used when a table is declared without one
const DefaultSRID = 4326

// ErrEmptyTable is returned for the bound of a table with no geometry
var ErrEmptyTable = errors.New("table has no geometry")

// Table is a layer source reading one PostGIS table
type Table struct {
	db         *DB
	name       string
	geomColumn string
	srid       int

	mu      sync.Mutex
	columns []string
}

// Table returns a source for a table. Attribute columns are discovered on
// first use.
func (d *DB) Table(name, geomColumn string, srid int) *Table {
	if geomColumn == "" {
		geomColumn = "geom"
	}
	if srid == 0 {
		srid = DefaultSRID
	}
	return &Table{db: d, name: name, geomColumn: geomColumn, srid: srid}
}

// Name returns the table name
func (t *Table) Name() string {
	return t.name
}

// GeometryColumn returns the geometry column name
func (t *Table) GeometryColumn() string {
	return t.geomColumn
}

// SRID returns the spatial reference of the envelopes sent to the table
func (t *Table) SRID() int {
	return t.srid
}

// Columns returns the attribute columns in declaration order, geometry excluded
func (t *Table) Columns(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.columns != nil {
		return t.columns, nil
	}

	db, err := t.db.conn()
	if err != nil {
		return nil, err
	}

	q, args := buildColumnsQuery(t.name)
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", t.name, err)
	}
	defer rows.Close()

	columns := []string{}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		if name == t.geomColumn {
			found = true
			continue
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("table %s has no column %s", t.name, t.geomColumn)
	}

	t.columns = columns
	return columns, nil
}

// Query runs the spatial filter in the database, one record per matching row
func (t *Table) Query(ctx context.Context, filter query.SpatialFilter) ([]query.Record, error) {
	if filter.Predicate != query.Intersects {
		return nil, fmt.Errorf("unsupported predicate %s", filter.Predicate)
	}
	geomColumn := t.geomColumn
	if filter.GeometryColumn != "" {
		geomColumn = filter.GeometryColumn
	}

	columns, err := t.Columns(ctx)
	if err != nil {
		return nil, err
	}
	db, err := t.db.conn()
	if err != nil {
		return nil, err
	}

	q := buildIntersectsQuery(t.name, geomColumn, filter.Predicate.String(), columns)
	t.db.logger.Debug("querying table",
		zap.String("table", t.name),
		zap.String("sql", q))

	rows, err := db.QueryContext(ctx, q, ewkb.Value(filter.Envelope, t.srid))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []query.Record
	for rows.Next() {
		values, err := scanValues(rows, len(columns))
		if err != nil {
			return nil, err
		}
		fields := make([]models.Field, len(columns))
		for i, c := range columns {
			fields[i] = models.Field{Name: c, Value: values[i]}
		}
		records = append(records, query.Record{Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

// Features returns the rows whose geometry bounding box overlaps b
func (t *Table) Features(ctx context.Context, b orb.Bound) ([]*models.Feature, error) {
	columns, err := t.Columns(ctx)
	if err != nil {
		return nil, err
	}
	db, err := t.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, buildFeaturesQuery(t.name, t.geomColumn, columns),
		b.Min[0], b.Min[1], b.Max[0], b.Max[1], t.srid)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var features []*models.Feature
	for rows.Next() {
		geom := ewkb.Scanner(nil)
		dest := make([]interface{}, len(columns)+1)
		dest[0] = geom
		values := make([]interface{}, len(columns))
		for i := range values {
			dest[i+1] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if !geom.Valid {
			continue
		}

		props := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			props[c] = normalize(values[i])
		}
		features = append(features, &models.Feature{
			ID:         featureID(props, len(features)),
			Geometry:   geom.Geometry,
			Properties: props,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return features, nil
}

// Bound returns the extent of the table geometry
func (t *Table) Bound(ctx context.Context) (orb.Bound, error) {
	db, err := t.db.conn()
	if err != nil {
		return orb.Bound{}, err
	}

	var minX, minY, maxX, maxY sql.NullFloat64
	err = db.QueryRowContext(ctx, buildExtentQuery(t.name, t.geomColumn)).Scan(&minX, &minY, &maxX, &maxY)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("failed to compute extent of %s: %w", t.name, err)
	}
	if !minX.Valid || !minY.Valid || !maxX.Valid || !maxY.Valid {
		return orb.Bound{}, ErrEmptyTable
	}
	return orb.Bound{Min: orb.Point{minX.Float64, minY.Float64}, Max: orb.Point{maxX.Float64, maxY.Float64}}, nil
}

// Close is a no-op, the pool is owned by DB
func (t *Table) Close() error {
	return nil
}

func scanValues(rows *sql.Rows, n int) ([]interface{}, error) {
	if n == 0 {
		var one int
		if err := rows.Scan(&one); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		return nil, nil
	}
	values := make([]interface{}, n)
	dest := make([]interface{}, n)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	for i := range values {
		values[i] = normalize(values[i])
	}
	return values, nil
}

// normalize converts driver values that have no useful text form
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func featureID(props map[string]interface{}, row int) string {
	for _, key := range []string{"id", "gid", "fid"} {
		if v, ok := props[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return strconv.Itoa(row)
}
