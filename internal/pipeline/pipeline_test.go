package pipeline

import (
	"testing"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

func demandRow(ts time.Time, nd float64) models.CanonicalRow {
	return models.CanonicalRow{TS: ts, Metrics: map[string]float64{"nd": nd}}
}

func TestValidateSortsAndNormalisesToUTC(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)
	loc := time.FixedZone("BST", 3600)

	later := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
	earlier := time.Date(2024, 1, 1, 1, 0, 0, 0, loc)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		demandRow(later, 30000),
		demandRow(earlier, 29000),
	})
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted rows, got %d", len(accepted))
	}
	if !accepted[0].TS.Before(accepted[1].TS) {
		t.Fatalf("accepted rows not in ascending timestamp order: %v, %v", accepted[0].TS, accepted[1].TS)
	}
	if zone, _ := accepted[0].TS.Zone(); zone != "UTC" {
		t.Fatalf("timestamp not normalised to UTC, zone %s", zone)
	}
	if accepted[0].TS.Hour() != 0 {
		t.Fatalf("BST 01:00 should normalise to 00:00 UTC, got %s", accepted[0].TS)
	}
}

func TestValidateRejectsZeroTimestamp(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		{Metrics: map[string]float64{"nd": 30000}},
	})
	if len(accepted) != 0 {
		t.Fatalf("expected no accepted rows, got %d", len(accepted))
	}
	if len(rejected) != 1 || rejected[0].Reason != models.ReasonInvalidTimestamp {
		t.Fatalf("expected one invalid_timestamp rejection, got %v", rejected)
	}
}

func TestValidateRejectsMissingRegionForRegionalFamily(t *testing.T) {
	schema := models.SchemaFor(models.FamilyWeather)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, rejected := Validate(schema, []models.CanonicalRow{
		{TS: ts, Metrics: map[string]float64{"temperature": 10}},
	})
	if len(rejected) != 1 || rejected[0].Reason != models.ReasonInvalidTimestamp {
		t.Fatalf("expected invalid_timestamp rejection for missing region, got %v", rejected)
	}
}

func TestValidateDropsUnknownFieldsKeepsMissing(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		{TS: ts, Metrics: map[string]float64{"nd": 30000, "bogus_column": 1}},
	})
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	row := accepted[0]
	if _, ok := row.Metrics["bogus_column"]; ok {
		t.Fatal("unknown field should be dropped")
	}
	// A declared but unreported metric stays absent, never coerced to zero.
	if _, ok := row.Metrics["tsd"]; ok {
		t.Fatal("missing metric should remain absent")
	}
	if len(rejected) != 0 {
		t.Fatal("a row must never be rejected solely for missing fields")
	}
}

func TestValidateCollapsesDuplicateKeysLastWins(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		demandRow(ts, 1000),
		demandRow(ts, 2000),
	})
	if len(rejected) != 0 {
		t.Fatalf("duplicates must be collapsed, not rejected: %v", rejected)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 row after collapse, got %d", len(accepted))
	}
	if got := accepted[0].Metrics["nd"]; got != 2000 {
		t.Fatalf("expected last-seen value 2000, got %v", got)
	}
}

func TestValidateRejectsSanityViolations(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		demandRow(ts, -100),
		demandRow(ts.Add(30*time.Minute), 28000),
	})
	if len(accepted) != 1 || accepted[0].Metrics["nd"] != 28000 {
		t.Fatalf("valid row should survive, got %v", accepted)
	}
	if len(rejected) != 1 || rejected[0].Reason != models.ReasonRangeViolation {
		t.Fatalf("expected range_violation for nd=-100, got %v", rejected)
	}
}

func TestValidateRejectsTimestampsOutsideHistory(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)

	accepted, rejected := Validate(schema, []models.CanonicalRow{
		demandRow(time.Date(2019, 12, 31, 23, 30, 0, 0, time.UTC), 28000),
		demandRow(time.Now().UTC().Add(48*time.Hour), 28000),
	})
	if len(accepted) != 0 {
		t.Fatalf("expected no accepted rows, got %v", accepted)
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(rejected))
	}
	for _, rej := range rejected {
		if rej.Reason != models.ReasonRangeViolation {
			t.Fatalf("expected range_violation, got %s", rej.Reason)
		}
	}
}

func TestValidateWeatherBounds(t *testing.T) {
	schema := models.SchemaFor(models.FamilyWeather)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	id := 13

	rows := []models.CanonicalRow{
		{TS: ts, RegionID: &id, Metrics: map[string]float64{"temperature": 21.5, "humidity": 60}},
		{TS: ts.Add(time.Hour), RegionID: &id, Metrics: map[string]float64{"temperature": 80}},
		{TS: ts.Add(2 * time.Hour), RegionID: &id, Metrics: map[string]float64{"humidity": 120}},
	}
	accepted, rejected := Validate(schema, rows)
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted row, got %d", len(accepted))
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejected rows, got %d", len(rejected))
	}
}

func TestValidateIsPure(t *testing.T) {
	schema := models.SchemaFor(models.FamilyDemand)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	input := []models.CanonicalRow{demandRow(ts, 30000), demandRow(ts.Add(30*time.Minute), -5)}

	a1, r1 := Validate(schema, input)
	a2, r2 := Validate(schema, input)
	if len(a1) != len(a2) || len(r1) != len(r2) {
		t.Fatal("identical input must yield identical output")
	}
	// The accepted rows must not alias the caller's maps.
	a1[0].Metrics["nd"] = -1
	if input[0].Metrics["nd"] != 30000 {
		t.Fatal("pipeline must not share maps with its input")
	}
}
