package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// nesoWindow bounds one SQL query against the NESO datastore; the full
// 2020-to-present backfill is split into windows this wide.
const nesoWindow = 90 * 24 * time.Hour

// Neso adapts the NESO historic-demand datastore. The provider encodes time
// as a settlement date plus a 1-48 half-hour period index, which is folded
// into a single UTC instant here.
type Neso struct {
	client   *Client
	baseURL  string
	resource string
}

// NewNeso builds the demand adapter against the datastore SQL endpoint.
func NewNeso(client *Client, baseURL, resource string) *Neso {
	return &Neso{client: client, baseURL: baseURL, resource: resource}
}

func (n *Neso) Family() models.Family {
	return models.FamilyDemand
}

type nesoResponse struct {
	Result struct {
		Records []map[string]any `json:"records"`
	} `json:"result"`
}

// Fetch retrieves demand rows with settlement dates at or after since (or
// the full history when since is nil). Windows overlap the watermark's day;
// the idempotent upsert absorbs the refetched rows.
func (n *Neso) Fetch(ctx context.Context, since *time.Time) ([]models.CanonicalRow, error) {
	start := models.HistoryStart
	if since != nil {
		start = since.UTC().Truncate(24 * time.Hour)
	}
	end := time.Now().UTC().Add(24 * time.Hour)

	var rows []models.CanonicalRow
	for from := start; from.Before(end); from = from.Add(nesoWindow) {
		to := from.Add(nesoWindow)
		if to.After(end) {
			to = end
		}

		var payload nesoResponse
		if err := n.client.GetJSON(ctx, n.queryURL(from, to), &payload); err != nil {
			return nil, models.SourceUnavailable(models.FamilyDemand, err)
		}

		for _, rec := range payload.Result.Records {
			row, err := parseNesoRecord(rec)
			if err != nil {
				return nil, models.SourceUnavailable(models.FamilyDemand, err)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (n *Neso) queryURL(from, to time.Time) string {
	sql := fmt.Sprintf(
		`SELECT * FROM "%s" WHERE "SETTLEMENT_DATE" >= '%s' AND "SETTLEMENT_DATE" < '%s' ORDER BY "SETTLEMENT_DATE" ASC`,
		n.resource,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
	)
	values := url.Values{}
	values.Set("sql", sql)
	return n.baseURL + "?" + values.Encode()
}

// parseNesoRecord lowercases the provider's column names, drops its metadata
// columns (leading underscore) and resolves the settlement encoding into a
// timestamp. Non-numeric values and unknown columns survive into the
// canonical row only as far as the pipeline lets them.
func parseNesoRecord(rec map[string]any) (models.CanonicalRow, error) {
	var (
		dateStr string
		period  = -1
		metrics = make(map[string]float64)
	)

	for key, value := range rec {
		name := strings.ToLower(strings.ReplaceAll(key, " ", "_"))
		if strings.HasPrefix(name, "_") {
			continue
		}
		switch name {
		case "settlement_date":
			s, ok := value.(string)
			if !ok {
				return models.CanonicalRow{}, fmt.Errorf("settlement_date is %T", value)
			}
			dateStr = s
		case "settlement_period":
			p, ok := asInt(value)
			if !ok {
				return models.CanonicalRow{}, fmt.Errorf("settlement_period %v", value)
			}
			period = p
		default:
			if v, ok := asFloat(value); ok {
				metrics[name] = v
			}
		}
	}

	ts, err := SettlementTime(dateStr, period)
	if err != nil {
		// Leave the bad timestamp zeroed; the pipeline rejects it with a
		// reason instead of aborting the whole batch.
		return models.CanonicalRow{Metrics: metrics}, nil
	}
	return models.CanonicalRow{TS: ts, Metrics: metrics}, nil
}

// SettlementTime converts a settlement date and half-hour period index
// (1-48, extended on clock-change days) to a UTC instant.
func SettlementTime(dateStr string, period int) (time.Time, error) {
	if dateStr == "" || period < 1 {
		return time.Time{}, fmt.Errorf("incomplete settlement encoding (%q, %d)", dateStr, period)
	}

	var day time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339} {
		if day, err = time.Parse(layout, dateStr); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("settlement date %q: %w", dateStr, err)
	}

	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(period-1) * 30 * time.Minute), nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}
