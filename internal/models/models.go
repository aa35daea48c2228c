package models

// WeatherRecord is the canonical weather shape every upstream payload is
// reconciled into. Pointer fields are optional: a nil means the source never
// supplied the value, which is distinct from a zero reading.
type WeatherRecord struct {
	Name      string   `json:"name"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	TempF     *float64 `json:"temp_f,omitempty"`
	TempC     *float64 `json:"temp_c,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Humidity  *float64 `json:"humidity,omitempty"`
	WindMph   *float64 `json:"wind_mph,omitempty"`
}

// Complete reports whether the record carries enough data to render on its
// own: a condition and a Fahrenheit temperature. Anything less is a partial
// record and must be surfaced with a caveat.
func (r WeatherRecord) Complete() bool {
	return r.Condition != "" && r.TempF != nil
}

// HasCoords reports whether the record carries its identity-bearing
// coordinates. Two records with the same name but different coordinates are
// different places.
func (r WeatherRecord) HasCoords() bool {
	return r.Lat != nil && r.Lon != nil
}

// Coord is the nested coordinate pair used by the raw provider shape.
type Coord struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

// NearbyMain holds the nested temperature/humidity block of the raw shape.
type NearbyMain struct {
	Temp     *float64 `json:"temp,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
}

// NearbyWind holds the nested wind block of the raw shape.
type NearbyWind struct {
	Speed *float64 `json:"speed,omitempty"`
}

// WeatherDescription is one entry of the raw shape's weather list. The
// description text arrives lowercase from this upstream.
type WeatherDescription struct {
	Description string `json:"description,omitempty"`
}

// NearbyCityEntry is a non-canonical candidate place as returned by the
// nearby lookup. It may arrive in the raw nested shape or in an
// already-cleaned flat shape; either way it must pass through the normalizer
// before being treated as a WeatherRecord.
type NearbyCityEntry struct {
	Name    string               `json:"name,omitempty"`
	City    string               `json:"city,omitempty"`
	Coord   *Coord               `json:"coord,omitempty"`
	Lat     *float64             `json:"lat,omitempty"`
	Lon     *float64             `json:"lon,omitempty"`
	Main    *NearbyMain          `json:"main,omitempty"`
	Wind    *NearbyWind          `json:"wind,omitempty"`
	Weather []WeatherDescription `json:"weather,omitempty"`

	// Fields of the already-cleaned flat shape.
	Temp      *float64 `json:"temp,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
}

// DisplayName resolves the entry's name across both shapes.
func (e NearbyCityEntry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	if e.City != "" {
		return e.City
	}
	return "Unknown"
}

// Coordinates resolves lat/lon across both shapes, flat fields first.
func (e NearbyCityEntry) Coordinates() (lat, lon *float64) {
	lat, lon = e.Lat, e.Lon
	if lat == nil && e.Coord != nil {
		lat = e.Coord.Lat
	}
	if lon == nil && e.Coord != nil {
		lon = e.Coord.Lon
	}
	return lat, lon
}

// SavedPlace is the persisted identity of a saved city. Coordinates are
// mandatory at save time so the place can be disambiguated later.
type SavedPlace struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// EnrichedPlace is a SavedPlace read back through the ledger: either carrying
// a fresh WeatherRecord or an error marker. An errored entry still renders
// (as a delete-only card); it is never dropped from the list.
type EnrichedPlace struct {
	SavedPlace
	Weather *WeatherRecord `json:"weather,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// ForecastDayDetail holds the per-day aggregates of a forecast entry.
type ForecastDayDetail struct {
	Condition    ConditionText `json:"condition"`
	MaxTempF     float64       `json:"maxtemp_f"`
	MinTempF     float64       `json:"mintemp_f"`
	ChanceOfRain int           `json:"daily_chance_of_rain"`
	ChanceOfSnow int           `json:"daily_chance_of_snow"`
}

// ConditionText wraps the upstream's nested condition text.
type ConditionText struct {
	Text string `json:"text"`
}

// ForecastDay is one calendar day of a multi-day forecast. Date is a
// YYYY-MM-DD string; lexical order on it equals calendar order.
type ForecastDay struct {
	Date string            `json:"date"`
	Day  ForecastDayDetail `json:"day"`
}
