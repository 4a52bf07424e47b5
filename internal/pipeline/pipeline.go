// Package pipeline cleans and validates canonical rows before they reach the
// historical store. Every stage is a pure function: identical input yields
// identical output, and no state is kept between batches.
package pipeline

import (
	"sort"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// tsSlack tolerates provider clock skew on freshly published records.
const tsSlack = time.Hour

// Validate runs a batch of canonical rows through the cleaning stages in
// order: timestamp normalisation, schema alignment, in-batch duplicate
// collapse (last seen wins), and per-field sanity checks. Rows with missing
// metric values are never rejected for the missing value alone; the absence
// is preserved. Accepted rows come back sorted by ascending timestamp so
// upserts apply in time order.
func Validate(schema models.Schema, rows []models.CanonicalRow) ([]models.CanonicalRow, []models.Rejection) {
	accepted := make([]models.CanonicalRow, 0, len(rows))
	rejected := make([]models.Rejection, 0)

	byKey := make(map[string]int, len(rows))
	for _, row := range rows {
		norm, reason, ok := normalise(schema, row)
		if !ok {
			rejected = append(rejected, models.Rejection{Row: row, Reason: reason})
			continue
		}

		// Providers may repeat a key across pagination boundaries; keep the
		// last-seen value per key rather than rejecting.
		key := norm.Key()
		if idx, dup := byKey[key]; dup {
			accepted[idx] = norm
			continue
		}
		byKey[key] = len(accepted)
		accepted = append(accepted, norm)
	}

	out := accepted[:0]
	for _, row := range accepted {
		if reason, ok := sanityCheck(schema, row); !ok {
			rejected = append(rejected, models.Rejection{Row: row, Reason: reason})
			continue
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TS.Equal(out[j].TS) {
			return out[i].TS.Before(out[j].TS)
		}
		return regionOrd(out[i]) < regionOrd(out[j])
	})
	return out, rejected
}

// normalise applies the timestamp and schema-alignment stages to one row,
// returning a fresh row that shares no maps with the input.
func normalise(schema models.Schema, row models.CanonicalRow) (models.CanonicalRow, models.RejectReason, bool) {
	if row.TS.IsZero() {
		return models.CanonicalRow{}, models.ReasonInvalidTimestamp, false
	}
	// Region identity is part of the uniqueness key for partitioned families.
	if schema.Regional && row.RegionID == nil {
		return models.CanonicalRow{}, models.ReasonInvalidTimestamp, false
	}

	out := models.CanonicalRow{
		TS:         row.TS.UTC(),
		RegionID:   row.RegionID,
		RegionName: row.RegionName,
		Metrics:    make(map[string]float64, len(schema.Fields)),
	}

	// Unknown fields are dropped, not rejected.
	for _, f := range schema.Fields {
		if v, ok := row.Metrics[f.Name]; ok {
			out.Metrics[f.Name] = v
		}
	}
	if len(schema.Labels) > 0 {
		out.Labels = make(map[string]string, len(schema.Labels))
		for _, name := range schema.Labels {
			if v, ok := row.Labels[name]; ok {
				out.Labels[name] = v
			}
		}
	}
	return out, "", true
}

// sanityCheck applies the family's physical-plausibility predicates. A row
// failing any bound is excluded entirely; it stays available in the rejected
// output for inspection but never reaches the store.
func sanityCheck(schema models.Schema, row models.CanonicalRow) (models.RejectReason, bool) {
	if row.TS.Before(models.HistoryStart) || row.TS.After(time.Now().UTC().Add(tsSlack)) {
		return models.ReasonRangeViolation, false
	}
	for _, f := range schema.Fields {
		v, ok := row.Metrics[f.Name]
		if !ok {
			continue // absent is a valid observation
		}
		if !f.InRange(v) {
			return models.ReasonRangeViolation, false
		}
	}
	return "", true
}

func regionOrd(r models.CanonicalRow) int {
	if r.RegionID == nil {
		return -1
	}
	return *r.RegionID
}
