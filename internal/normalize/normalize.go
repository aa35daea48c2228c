// Package normalize reconciles the two incompatible upstream payload shapes
// into the single canonical WeatherRecord. The rich shape (WeatherAPI-style)
// carries precomputed temp_f/temp_c and flat condition text; the raw shape
// (OpenWeather-style) nests everything and needs extraction. Downstream code
// never branches on provider shape again.
package normalize

import (
	"encoding/json"
	"errors"

	"github.com/JorgeF123/weather-dashboard/internal/condition"
	"github.com/JorgeF123/weather-dashboard/internal/models"
)

// ErrNotObject is returned when the payload is not a JSON object at all.
// Missing optional fields are never an error.
var ErrNotObject = errors.New("payload is not an object")

// payload is the superset of both provider shapes. Decoding an object into
// it never fails on absent fields; pointers stay nil.
type payload struct {
	Name      string   `json:"name"`
	City      string   `json:"city"`
	Region    string   `json:"region"`
	Country   string   `json:"country"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	TempF     *float64 `json:"temp_f"`
	TempC     *float64 `json:"temp_c"`
	Condition string   `json:"condition"`
	Humidity  *float64 `json:"humidity"`
	WindMph   *float64 `json:"wind_mph"`

	Main    *models.NearbyMain          `json:"main"`
	Wind    *models.NearbyWind          `json:"wind"`
	Weather []models.WeatherDescription `json:"weather"`
	Coord   *models.Coord               `json:"coord"`
	Sys     *struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// Normalize converts a rich or raw provider payload into a canonical
// WeatherRecord. Payloads that already expose a Fahrenheit temperature and a
// condition are treated as canonical and passed through, so normalizing an
// already-normalized record is a no-op.
func Normalize(raw json.RawMessage) (models.WeatherRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.WeatherRecord{}, ErrNotObject
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.WeatherRecord{}, ErrNotObject
	}

	if p.TempF != nil && p.Condition != "" {
		return fromCanonical(p), nil
	}
	return fromRaw(p), nil
}

// fromCanonical passes a rich payload through unchanged, deriving Celsius
// only when the source omitted it.
func fromCanonical(p payload) models.WeatherRecord {
	rec := models.WeatherRecord{
		Name:      firstNonEmpty(p.Name, p.City),
		Region:    p.Region,
		Country:   p.Country,
		Lat:       p.Lat,
		Lon:       p.Lon,
		TempF:     p.TempF,
		TempC:     p.TempC,
		Condition: p.Condition,
		Humidity:  p.Humidity,
		WindMph:   p.WindMph,
	}
	if rec.TempC == nil && rec.TempF != nil {
		rec.TempC = ptr(fahrenheitToCelsius(*rec.TempF))
	}
	return rec
}

// fromRaw extracts the canonical fields out of the nested raw shape. Absent
// nested objects default empty before field access, so nothing here panics.
func fromRaw(p payload) models.WeatherRecord {
	main := p.Main
	if main == nil {
		main = &models.NearbyMain{}
	}
	wind := p.Wind
	if wind == nil {
		wind = &models.NearbyWind{}
	}

	country := p.Country
	if p.Sys != nil && p.Sys.Country != "" {
		country = p.Sys.Country
	}

	conditionText := ""
	if len(p.Weather) > 0 && p.Weather[0].Description != "" {
		conditionText = p.Weather[0].Description
	} else if p.Condition != "" {
		conditionText = p.Condition
	}

	lat, lon := p.Lat, p.Lon
	if p.Coord != nil {
		if lat == nil {
			lat = p.Coord.Lat
		}
		if lon == nil {
			lon = p.Coord.Lon
		}
	}

	rec := models.WeatherRecord{
		Name:      firstNonEmpty(p.Name, p.City),
		Region:    p.Region,
		Country:   country,
		Lat:       lat,
		Lon:       lon,
		TempF:     main.Temp,
		Condition: conditionText,
		Humidity:  main.Humidity,
		WindMph:   wind.Speed,
	}
	if rec.TempF != nil {
		rec.TempC = ptr(fahrenheitToCelsius(*rec.TempF))
	}
	return rec
}

// Nearby converts a raw nearby-city entry into a canonical record without any
// network access. Condition text sourced from the description list is
// title-cased because this upstream reports it lowercase.
func Nearby(e models.NearbyCityEntry) models.WeatherRecord {
	lat, lon := e.Coordinates()

	conditionText := ""
	if len(e.Weather) > 0 && e.Weather[0].Description != "" {
		conditionText = condition.ToTitleCase(e.Weather[0].Description)
	} else if e.Condition != "" {
		conditionText = e.Condition
	}

	tempF := e.Temp
	var humidity *float64
	if e.Main != nil {
		if tempF == nil {
			tempF = e.Main.Temp
		}
		humidity = e.Main.Humidity
	}
	var windMph *float64
	if e.Wind != nil {
		windMph = e.Wind.Speed
	}

	rec := models.WeatherRecord{
		Name:      e.DisplayName(),
		Region:    e.Region,
		Country:   e.Country,
		Lat:       lat,
		Lon:       lon,
		TempF:     tempF,
		Condition: conditionText,
		Humidity:  humidity,
		WindMph:   windMph,
	}
	if rec.TempF != nil {
		rec.TempC = ptr(fahrenheitToCelsius(*rec.TempF))
	}
	return rec
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func ptr(f float64) *float64 {
	return &f
}
