package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityNameEmpty is returned when the city name is empty or whitespace-only after trim.
var ErrCityNameEmpty = errors.New("city name is required")

// ErrCityNameTooLong is returned when the city name length exceeds the maximum.
var ErrCityNameTooLong = errors.New("city name too long")

// ErrCityNameInvalidChars is returned when the city name contains disallowed characters.
var ErrCityNameInvalidChars = errors.New("city name contains invalid characters")

// ErrCoordsMissing is returned when a latitude or longitude is absent where required.
var ErrCoordsMissing = errors.New("coordinates are required")

// ErrLatOutOfRange is returned for latitudes outside [-90, 90].
var ErrLatOutOfRange = errors.New("latitude out of range")

// ErrLonOutOfRange is returned for longitudes outside [-180, 180].
var ErrLonOutOfRange = errors.New("longitude out of range")

// MaxCityNameLength bounds free-text city input in runes.
const MaxCityNameLength = 100

// CityName trims the input, enforces the length bound, and restricts to
// allowed characters: letters (Unicode), digits, space, comma, period,
// apostrophe, hyphen. Returns the trimmed string or an error suitable for a
// 400 response. Normalization (lowercasing, title-casing) is left to callers.
func CityName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityNameEmpty
	}
	if len(r) > MaxCityNameLength {
		return "", ErrCityNameTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityNameInvalidChars
		}
	}
	return s, nil
}

// isAllowedCityRune returns true for letters (Unicode), digits, space, comma,
// period, apostrophe, hyphen.
func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '\'', '-':
		return true
	}
	return false
}

// Coordinates range-checks a latitude/longitude pair.
func Coordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return ErrLatOutOfRange
	}
	if lon < -180 || lon > 180 {
		return ErrLonOutOfRange
	}
	return nil
}

// CoordinatePtrs validates an optional coordinate pair where both values are
// required. A nil latitude or longitude is a missing-coordinates error; a
// name-only identity cannot be disambiguated later.
func CoordinatePtrs(lat, lon *float64) error {
	if lat == nil || lon == nil {
		return ErrCoordsMissing
	}
	return Coordinates(*lat, *lon)
}

// IsValidationError reports whether err belongs to the caller-input error
// family, i.e. it should surface as a 400 rather than a provider failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrCityNameEmpty) ||
		errors.Is(err, ErrCityNameTooLong) ||
		errors.Is(err, ErrCityNameInvalidChars) ||
		errors.Is(err, ErrCoordsMissing) ||
		errors.Is(err, ErrLatOutOfRange) ||
		errors.Is(err, ErrLonOutOfRange)
}
