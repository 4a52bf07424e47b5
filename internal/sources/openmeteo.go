package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// openMeteoHourly lists the provider variables requested, in the order they
// map onto canonical metric names.
var openMeteoHourly = []struct {
	provider  string
	canonical string
}{
	{"temperature_2m", "temperature"},
	{"relative_humidity_2m", "humidity"},
	{"wind_speed_10m", "wind_speed"},
	{"cloud_cover", "cloud_cover"},
	{"precipitation", "precipitation"},
}

// OpenMeteo adapts the Open-Meteo archive API, fetching hourly history for
// each distribution region's representative coordinates.
type OpenMeteo struct {
	client  *Client
	baseURL string
	log     zerolog.Logger
}

// NewOpenMeteo builds the weather adapter.
func NewOpenMeteo(client *Client, baseURL string, log zerolog.Logger) *OpenMeteo {
	return &OpenMeteo{client: client, baseURL: baseURL, log: log}
}

func (o *OpenMeteo) Family() models.Family {
	return models.FamilyWeather
}

type openMeteoResponse struct {
	Hourly map[string][]any `json:"hourly"`
}

// Fetch retrieves hourly weather per region from the watermark (or history
// start) to today. A region that fails is skipped so one bad request does
// not lose the other thirteen; the family only counts as unavailable when
// every region failed.
func (o *OpenMeteo) Fetch(ctx context.Context, since *time.Time) ([]models.CanonicalRow, error) {
	start := models.HistoryStart
	if since != nil {
		start = since.UTC().Add(time.Hour)
	}
	end := time.Now().UTC()
	if start.After(end) {
		return nil, nil
	}

	var (
		rows    []models.CanonicalRow
		lastErr error
	)
	for _, region := range models.Regions() {
		regionRows, err := o.fetchRegion(ctx, region, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, models.SourceUnavailable(models.FamilyWeather, ctx.Err())
			}
			o.log.Warn().Err(err).Str("region", region.Name).Msg("weather region fetch failed")
			lastErr = err
			continue
		}
		rows = append(rows, regionRows...)
	}

	if len(rows) == 0 && lastErr != nil {
		return nil, models.SourceUnavailable(models.FamilyWeather, lastErr)
	}
	return rows, nil
}

func (o *OpenMeteo) fetchRegion(ctx context.Context, region models.Region, start, end time.Time) ([]models.CanonicalRow, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.2f", region.Lat))
	values.Set("longitude", fmt.Sprintf("%.2f", region.Lon))
	values.Set("start_date", start.Format("2006-01-02"))
	values.Set("end_date", end.Format("2006-01-02"))
	values.Set("timezone", "UTC")

	hourly := ""
	for i, v := range openMeteoHourly {
		if i > 0 {
			hourly += ","
		}
		hourly += v.provider
	}
	values.Set("hourly", hourly)

	var payload openMeteoResponse
	if err := o.client.GetJSON(ctx, o.baseURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}

	times := payload.Hourly["time"]
	if len(times) == 0 {
		return nil, fmt.Errorf("payload missing hourly.time")
	}

	rows := make([]models.CanonicalRow, 0, len(times))
	for i, rawTS := range times {
		s, ok := rawTS.(string)
		if !ok {
			continue
		}
		ts, err := parseOpenMeteoTime(s)
		if err != nil {
			continue
		}

		id := region.ID
		name := region.Name
		row := models.CanonicalRow{
			TS:         ts,
			RegionID:   &id,
			RegionName: &name,
			Metrics:    make(map[string]float64, len(openMeteoHourly)),
		}
		for _, v := range openMeteoHourly {
			series, ok := payload.Hourly[v.provider]
			if !ok || i >= len(series) {
				continue
			}
			// JSON nulls stay absent rather than becoming zeros.
			if f, ok := series[i].(float64); ok {
				row.Metrics[v.canonical] = f
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseOpenMeteoTime parses the archive API's minute-precision local stamps,
// which are UTC because the request pins timezone=UTC.
func parseOpenMeteoTime(s string) (time.Time, error) {
	ts, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
