// Package query composes historical store reads into the tabular shapes the
// presentation tier consumes.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/db"
	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// Reader is the slice of the historical store the query layer depends on.
type Reader interface {
	Read(ctx context.Context, family models.Family, filter db.Filter) ([]models.Record, error)
	Bounds(ctx context.Context) (min, max time.Time, ok bool, err error)
}

// Table is a wide time-series result. Each row aligns with Columns; absent
// metric values stay nil rather than being coerced to a numeric default.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MetricSummary aggregates one metric over the queried range, counting only
// present values.
type MetricSummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary is the headline statistics block for one family and range.
type Summary struct {
	Family  models.Family            `json:"family"`
	Start   time.Time                `json:"start"`
	End     time.Time                `json:"end"`
	Rows    int                      `json:"rows"`
	Metrics map[string]MetricSummary `json:"metrics"`
	// Trend compares the mean of the family's lead metric over the second
	// half of the range against the first half; nil when there is too
	// little data.
	Trend *float64 `json:"trend,omitempty"`
}

// Service serves filtered slices of the historical store.
type Service struct {
	store Reader
}

// New creates a query Service over the given store.
func New(store Reader) *Service {
	return &Service{store: store}
}

// Query returns the family's records within [start, end], optionally limited
// to a region set, ordered by ascending timestamp. A start after end, or a
// region filter on the non-partitioned demand family, is a caller error.
func (s *Service) Query(ctx context.Context, family models.Family, regions []int, start, end time.Time) (Table, error) {
	if err := checkArgs(family, regions, start, end); err != nil {
		return Table{}, err
	}

	schema := models.SchemaFor(family)
	records, err := s.store.Read(ctx, family, db.Filter{Start: start, End: end, Regions: regions})
	if err != nil {
		return Table{}, err
	}
	return buildTable(schema, records), nil
}

// Summary aggregates the family's metrics over the range: count, mean, min
// and max per metric over present values only.
func (s *Service) Summary(ctx context.Context, family models.Family, regions []int, start, end time.Time) (Summary, error) {
	if err := checkArgs(family, regions, start, end); err != nil {
		return Summary{}, err
	}

	schema := models.SchemaFor(family)
	records, err := s.store.Read(ctx, family, db.Filter{Start: start, End: end, Regions: regions})
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Family:  family,
		Start:   start.UTC(),
		End:     end.UTC(),
		Rows:    len(records),
		Metrics: make(map[string]MetricSummary, len(schema.Fields)),
	}

	for _, f := range schema.Fields {
		var agg MetricSummary
		for _, rec := range records {
			v, ok := rec.Metrics[f.Name]
			if !ok {
				continue
			}
			if agg.Count == 0 || v < agg.Min {
				agg.Min = v
			}
			if agg.Count == 0 || v > agg.Max {
				agg.Max = v
			}
			agg.Mean += v
			agg.Count++
		}
		if agg.Count > 0 {
			agg.Mean /= float64(agg.Count)
			out.Metrics[f.Name] = agg
		}
	}

	out.Trend = leadTrend(schema, records)
	return out, nil
}

// Bounds reports the stored demand date range for the date picker.
func (s *Service) Bounds(ctx context.Context) (min, max time.Time, ok bool, err error) {
	return s.store.Bounds(ctx)
}

func checkArgs(family models.Family, regions []int, start, end time.Time) error {
	if start.After(end) {
		return fmt.Errorf("%w: start %s after end %s", models.ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if !models.SchemaFor(family).Regional && len(regions) > 0 {
		return fmt.Errorf("%w: %s is not region-partitioned", models.ErrInvalidRange, family)
	}
	return nil
}

func buildTable(schema models.Schema, records []models.Record) Table {
	cols := []string{"ts"}
	if schema.Regional {
		cols = append(cols, "region_id", "region_name")
	}
	cols = append(cols, schema.Labels...)
	cols = append(cols, schema.FieldNames()...)

	table := Table{Columns: cols, Rows: make([][]any, 0, len(records))}
	for _, rec := range records {
		row := make([]any, 0, len(cols))
		row = append(row, rec.TS.UTC())
		if schema.Regional {
			if rec.RegionID != nil {
				row = append(row, *rec.RegionID)
			} else {
				row = append(row, nil)
			}
			if rec.RegionName != nil {
				row = append(row, *rec.RegionName)
			} else {
				row = append(row, nil)
			}
		}
		for _, name := range schema.Labels {
			if v, ok := rec.Labels[name]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		for _, name := range schema.FieldNames() {
			if v, ok := rec.Metrics[name]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// leadTrend averages the lead metric per timestamp, then compares the second
// half of the series against the first.
func leadTrend(schema models.Schema, records []models.Record) *float64 {
	perTS := make(map[time.Time][]float64)
	for _, rec := range records {
		if v, ok := rec.Metrics[schema.Lead]; ok {
			perTS[rec.TS] = append(perTS[rec.TS], v)
		}
	}
	if len(perTS) < 2 {
		return nil
	}

	stamps := make([]time.Time, 0, len(perTS))
	for ts := range perTS {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	means := make([]float64, 0, len(stamps))
	for _, ts := range stamps {
		var sum float64
		for _, v := range perTS[ts] {
			sum += v
		}
		means = append(means, sum/float64(len(perTS[ts])))
	}

	mid := len(means) / 2
	first := mean(means[:mid])
	second := mean(means[mid:])
	delta := second - first
	return &delta
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// CacheKey canonicalises a query's identity for the TTL cache: shape,
// family, sorted region set and range.
func CacheKey(shape string, family models.Family, regions []int, start, end time.Time) string {
	sorted := make([]int, len(regions))
	copy(sorted, regions)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join([]string{
		shape,
		string(family),
		strings.Join(parts, ","),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	}, "|")
}
