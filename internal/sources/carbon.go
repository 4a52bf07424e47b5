package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/1509Chamma/ukenergydashboard/internal/models"
)

// carbonWindow is the widest range one regional intensity request may span;
// the API caps ranges at 14 days.
const carbonWindow = 13 * 24 * time.Hour

// Carbon adapts the GB carbon intensity API's regional endpoint, emitting
// one row per half-hour period per distribution region.
type Carbon struct {
	client  *Client
	baseURL string
}

// NewCarbon builds the carbon/generation-mix adapter.
func NewCarbon(client *Client, baseURL string) *Carbon {
	return &Carbon{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Carbon) Family() models.Family {
	return models.FamilyCarbon
}

type carbonResponse struct {
	Data []struct {
		From    string `json:"from"`
		To      string `json:"to"`
		Regions []struct {
			RegionID  int    `json:"regionid"`
			ShortName string `json:"shortname"`
			Intensity struct {
				Forecast *float64 `json:"forecast"`
				Index    string   `json:"index"`
			} `json:"intensity"`
			GenerationMix []struct {
				Fuel string   `json:"fuel"`
				Perc *float64 `json:"perc"`
			} `json:"generationmix"`
		} `json:"regions"`
	} `json:"data"`
}

// Fetch walks the range from the watermark (or history start) to now in
// API-sized windows.
func (c *Carbon) Fetch(ctx context.Context, since *time.Time) ([]models.CanonicalRow, error) {
	start := models.HistoryStart
	if since != nil {
		start = since.UTC().Add(30 * time.Minute)
	}
	end := time.Now().UTC()

	var rows []models.CanonicalRow
	for from := start; from.Before(end); from = from.Add(carbonWindow) {
		to := from.Add(carbonWindow)
		if to.After(end) {
			to = end
		}

		url := fmt.Sprintf("%s/regional/intensity/%s/%s",
			c.baseURL,
			from.Format(time.RFC3339),
			to.Format(time.RFC3339),
		)

		var payload carbonResponse
		if err := c.client.GetJSON(ctx, url, &payload); err != nil {
			return nil, models.SourceUnavailable(models.FamilyCarbon, err)
		}

		for _, period := range payload.Data {
			ts, err := parseCarbonTime(period.From)
			if err != nil {
				return nil, models.SourceUnavailable(models.FamilyCarbon, fmt.Errorf("period start %q: %w", period.From, err))
			}

			for _, region := range period.Regions {
				// The API appends aggregate pseudo-regions (England,
				// Scotland, Wales, GB); only the 14 DNO regions are stored.
				known, ok := models.RegionByID(region.RegionID)
				if !ok {
					continue
				}

				id := region.RegionID
				name := region.ShortName
				if name == "" {
					name = known.Name
				}

				row := models.CanonicalRow{
					TS:         ts,
					RegionID:   &id,
					RegionName: &name,
					Metrics:    make(map[string]float64, len(region.GenerationMix)+1),
				}
				if region.Intensity.Forecast != nil {
					row.Metrics["intensity_forecast"] = *region.Intensity.Forecast
				}
				if region.Intensity.Index != "" {
					row.Labels = map[string]string{"intensity_index": region.Intensity.Index}
				}
				for _, mix := range region.GenerationMix {
					if mix.Perc != nil {
						row.Metrics[fuelField(mix.Fuel)] = *mix.Perc
					}
				}
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

// fuelField normalises a provider fuel name into a canonical metric name,
// e.g. "Wind" -> gen_wind.
func fuelField(fuel string) string {
	name := strings.ToLower(strings.TrimSpace(fuel))
	name = strings.ReplaceAll(name, " ", "_")
	return "gen_" + name
}

// parseCarbonTime accepts the API's minute-precision stamps ("…T00:30Z")
// as well as full RFC3339.
func parseCarbonTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02T15:04Z07:00", s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
