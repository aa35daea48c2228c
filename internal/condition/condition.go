package condition

import (
	"strings"
	"unicode"
)

// Unknown is the display text used when no condition text is available.
const Unknown = "Unknown"

// Look pairs the icon key and background key derived from condition text.
type Look struct {
	Icon       string
	Background string
}

// ToTitleCase normalizes free-form condition text to Title Case display form:
// "clear sky" -> "Clear Sky". Empty input yields Unknown. Applying it twice
// is a no-op.
func ToTitleCase(text string) string {
	if text == "" {
		return Unknown
	}
	words := strings.Split(strings.ToLower(text), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Classify maps condition text onto the closed icon/background taxonomy.
// Rules are checked in a fixed order because mixed strings ("sunny with
// clouds") match more than one category; sun/clear outranks cloud, which
// outranks rain.
func Classify(text string) Look {
	c := strings.ToLower(text)
	switch {
	case strings.Contains(c, "sun") || strings.Contains(c, "clear"):
		return Look{Icon: "sunny", Background: "bg-sunny"}
	case strings.Contains(c, "cloud"):
		return Look{Icon: "cloudy", Background: "bg-cloudy"}
	case strings.Contains(c, "rain"):
		return Look{Icon: "rain", Background: "bg-rainy"}
	default:
		return Look{Icon: "clear", Background: "bg-default"}
	}
}
