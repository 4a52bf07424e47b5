package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// columnsFor returns the data columns of a family's table in declaration
// order: key columns first, then labels, then metric fields.
func columnsFor(schema models.Schema) []string {
	cols := []string{"ts"}
	if schema.Regional {
		cols = append(cols, "region_id", "region_name")
	}
	cols = append(cols, schema.Labels...)
	cols = append(cols, schema.FieldNames()...)
	return cols
}

func keyColumnsFor(schema models.Schema) []string {
	if schema.Regional {
		return []string{"ts", "region_id"}
	}
	return []string{"ts"}
}

// createTableSQL renders the DDL for one family table: a primary key on the
// family's uniqueness key, nullable metric columns (absence is meaningful)
// and bookkeeping timestamps.
func createTableSQL(schema models.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", schema.Table)
	b.WriteString("    ts timestamptz NOT NULL")
	if schema.Regional {
		b.WriteString(",\n    region_id integer NOT NULL")
		b.WriteString(",\n    region_name text")
	}
	for _, name := range schema.Labels {
		fmt.Fprintf(&b, ",\n    %s text", name)
	}
	for _, name := range schema.FieldNames() {
		fmt.Fprintf(&b, ",\n    %s double precision", name)
	}
	b.WriteString(",\n    ingested_at timestamptz NOT NULL DEFAULT NOW()")
	b.WriteString(",\n    updated_at timestamptz NOT NULL DEFAULT NOW()")
	fmt.Fprintf(&b, ",\n    PRIMARY KEY (%s)\n)", strings.Join(keyColumnsFor(schema), ", "))
	return b.String()
}

func createIndexSQL(schema models.Schema) []string {
	if !schema.Regional {
		return nil
	}
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_region_idx ON %s (region_id)", schema.Table, schema.Table),
	}
}

// upsertSQL renders the idempotent insert for one row of a family. On a key
// conflict the non-key columns are replaced, not merged, so re-running an
// overlapping window converges to last write wins. RETURNING (xmax = 0)
// distinguishes a fresh insert from an update.
func upsertSQL(schema models.Schema) string {
	cols := columnsFor(schema)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}

	var sets []string
	key := keyColumnsFor(schema)
	for _, c := range cols {
		if contains(key, c) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf(
		"INSERT INTO %s (%s, ingested_at, updated_at)\nVALUES (%s, NOW(), NOW())\nON CONFLICT (%s) DO UPDATE\nSET %s\nRETURNING (xmax = 0) AS inserted",
		schema.Table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(key, ", "),
		strings.Join(sets, ",\n    "),
	)
}

// upsertArgs orders a row's values to match upsertSQL's placeholders.
// Absent metrics and labels become NULLs.
func upsertArgs(schema models.Schema, row models.CanonicalRow) []any {
	args := []any{row.TS.UTC()}
	if schema.Regional {
		args = append(args, row.RegionID, row.RegionName)
	}
	for _, name := range schema.Labels {
		if v, ok := row.Labels[name]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	for _, name := range schema.FieldNames() {
		if v, ok := row.Metrics[name]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

// selectSQL renders one bounded page of a range read. Ordering includes the
// region column so successive pages never interleave.
func selectSQL(schema models.Schema, filter Filter, limit, offset int) (string, []any) {
	cols := columnsFor(schema)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE ts >= $1 AND ts <= $2", strings.Join(cols, ", "), schema.Table)
	args := []any{filter.Start.UTC(), filter.End.UTC()}

	if schema.Regional && len(filter.Regions) > 0 {
		args = append(args, filter.Regions)
		fmt.Fprintf(&b, " AND region_id = ANY($%d)", len(args))
	}

	b.WriteString(" ORDER BY " + strings.Join(keyColumnsFor(schema), ", "))
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	return b.String(), args
}

func watermarkSQL(schema models.Schema) string {
	return fmt.Sprintf("SELECT MAX(ts) FROM %s", schema.Table)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// scanTargets builds scan destinations matching columnsFor order and a
// closure assembling the scanned values into a Record.
func scanTargets(schema models.Schema) ([]any, func() models.Record) {
	var (
		ts       time.Time
		regionID *int
		name     *string
		labels   = make([]*string, len(schema.Labels))
		values   = make([]*float64, len(schema.Fields))
	)

	dest := []any{&ts}
	if schema.Regional {
		dest = append(dest, &regionID, &name)
	}
	for i := range labels {
		dest = append(dest, &labels[i])
	}
	for i := range values {
		dest = append(dest, &values[i])
	}

	build := func() models.Record {
		rec := models.Record{
			TS:      ts,
			Metrics: make(map[string]float64, len(schema.Fields)),
		}
		// Copy pointer targets; the same destinations are reused per row.
		if regionID != nil {
			id := *regionID
			rec.RegionID = &id
		}
		if name != nil {
			n := *name
			rec.RegionName = &n
		}
		for i, v := range values {
			if v != nil {
				rec.Metrics[schema.Fields[i].Name] = *v
			}
		}
		if len(schema.Labels) > 0 {
			rec.Labels = make(map[string]string, len(schema.Labels))
			for i, v := range labels {
				if v != nil {
					rec.Labels[schema.Labels[i]] = *v
				}
			}
		}
		return rec
	}
	return dest, build
}
