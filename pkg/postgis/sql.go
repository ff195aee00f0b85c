package postgis

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// quoteName quotes a possibly schema qualified name
func quoteName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// splitName returns the schema and the bare table name
func splitName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func selectList(columns []string) string {
	if len(columns) == 0 {
		return "1"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// buildColumnsQuery lists the columns of a table in declaration order
func buildColumnsQuery(table string) (string, []interface{}) {
	schema, name := splitName(table)
	if schema == "" {
		return `SELECT column_name FROM information_schema.columns
			WHERE table_name = $1 AND table_schema = ANY(current_schemas(false))
			ORDER BY ordinal_position`, []interface{}{name}
	}
	return `SELECT column_name FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = $2
		ORDER BY ordinal_position`, []interface{}{name, schema}
}

// buildIntersectsQuery selects the attribute columns of the rows whose
// geometry satisfies predicate against the envelope passed as $1 (EWKB)
func buildIntersectsQuery(table, geomColumn, predicate string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s(%s, ST_GeomFromEWKB($1))",
		selectList(columns), quoteName(table), predicate, pq.QuoteIdentifier(geomColumn))
}

// buildFeaturesQuery selects geometry and attributes of the rows whose
// bounding box overlaps the envelope ($1..$4, srid $5)
func buildFeaturesQuery(table, geomColumn string, columns []string) string {
	geom := pq.QuoteIdentifier(geomColumn)
	list := "ST_AsEWKB(" + geom + ")"
	if len(columns) > 0 {
		list += ", " + selectList(columns)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s && ST_MakeEnvelope($1, $2, $3, $4, $5)",
		list, quoteName(table), geom)
}

func buildExtentQuery(table, geomColumn string) string {
	return fmt.Sprintf(`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e)
		FROM (SELECT ST_Extent(%s) AS e FROM %s) AS extent`,
		pq.QuoteIdentifier(geomColumn), quoteName(table))
}

// buildInsertQuery inserts one feature: id, the fields as text, geometry as EWKB
func buildInsertQuery(table, geomColumn string, fields []string) string {
	columns := append([]string{"id"}, fields...)
	columns = append(columns, geomColumn)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	placeholders[len(columns)-1] = fmt.Sprintf("ST_GeomFromEWKB($%d)", len(columns))

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteName(table), selectList(columns), strings.Join(placeholders, ", "))
}

// buildSchemaQueries recreates an import table
func buildSchemaQueries(table, geomColumn string, srid int, fields []string) []string {
	defs := []string{"id TEXT PRIMARY KEY"}
	for _, f := range fields {
		defs = append(defs, pq.QuoteIdentifier(f)+" TEXT")
	}
	defs = append(defs, fmt.Sprintf("%s GEOMETRY(GEOMETRY, %d)", pq.QuoteIdentifier(geomColumn), srid))

	return []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteName(table)),
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteName(table), strings.Join(defs, ", ")),
	}
}

func buildIndexQuery(table, geomColumn string) string {
	_, name := splitName(table)
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST(%s)",
		pq.QuoteIdentifier("idx_"+name+"_"+geomColumn), quoteName(table), pq.QuoteIdentifier(geomColumn))
}
