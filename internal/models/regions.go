package models

// Region is one of the 14 GB distribution regions used by the carbon
// intensity API. The coordinates are representative points used to query
// weather history for the region.
type Region struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

var regions = []Region{
	{ID: 1, Name: "North Scotland", Lat: 57.5, Lon: -4.5, Country: "Scotland"},
	{ID: 2, Name: "South Scotland", Lat: 55.9, Lon: -3.2, Country: "Scotland"},
	{ID: 3, Name: "North West England", Lat: 53.8, Lon: -2.6, Country: "England"},
	{ID: 4, Name: "North East England", Lat: 54.9, Lon: -1.6, Country: "England"},
	{ID: 5, Name: "South Yorkshire", Lat: 53.5, Lon: -1.5, Country: "England"},
	{ID: 6, Name: "North Wales & Merseyside", Lat: 53.2, Lon: -3.0, Country: "Wales"},
	{ID: 7, Name: "South Wales", Lat: 51.6, Lon: -3.4, Country: "Wales"},
	{ID: 8, Name: "West Midlands", Lat: 52.5, Lon: -2.0, Country: "England"},
	{ID: 9, Name: "East Midlands", Lat: 52.8, Lon: -1.0, Country: "England"},
	{ID: 10, Name: "East England", Lat: 52.2, Lon: 0.9, Country: "England"},
	{ID: 11, Name: "South West England", Lat: 50.7, Lon: -3.5, Country: "England"},
	{ID: 12, Name: "South England", Lat: 51.0, Lon: -1.3, Country: "England"},
	{ID: 13, Name: "London", Lat: 51.5, Lon: -0.1, Country: "England"},
	{ID: 14, Name: "South East England", Lat: 51.3, Lon: 0.5, Country: "England"},
}

// Regions returns the region table ordered by id.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// RegionByID looks a region up by its numeric identifier.
func RegionByID(id int) (Region, bool) {
	for _, r := range regions {
		if r.ID == id {
			return r, true
		}
	}
	return Region{}, false
}

// Countries returns the country groupings used by the region selector,
// mapping country name to region ids.
func Countries() map[string][]int {
	out := make(map[string][]int, 3)
	for _, r := range regions {
		out[r.Country] = append(out[r.Country], r.ID)
	}
	return out
}
