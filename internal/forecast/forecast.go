// Package forecast projects a multi-day forecast down to the fixed
// forward-looking display window: the next two calendar days after today.
package forecast

import (
	"time"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

// WindowSize is the number of future days the dashboard displays.
const WindowSize = 2

const dateLayout = "2006-01-02"

// SelectWindow filters the provider's forecast down to at most two days
// strictly after today, preserving provider order (assumed ascending by
// date; no re-sort). Today is reduced to its local calendar date: using UTC
// here would shift the boundary by up to a day for users away from UTC.
// With fewer than two future days it returns what exists; never pads.
func SelectWindow(days []models.ForecastDay, today time.Time) []models.ForecastDay {
	// Lexical comparison on YYYY-MM-DD strings equals calendar comparison.
	cutoff := today.Format(dateLayout)

	out := make([]models.ForecastDay, 0, WindowSize)
	for _, d := range days {
		if d.Date == "" || d.Date <= cutoff {
			continue
		}
		out = append(out, d)
		if len(out) == WindowSize {
			break
		}
	}
	return out
}

// FormatDisplayDate renders a YYYY-MM-DD date string as "Mon, Jan 2". The
// date is parsed anchored at local noon so that "2024-12-17" never renders as
// Dec 16 in timezones behind UTC. Returns "" for unparseable input.
func FormatDisplayDate(date string) string {
	t, err := time.ParseInLocation(dateLayout+" 15:04", date+" 12:00", time.Local)
	if err != nil {
		return ""
	}
	return t.Format("Mon, Jan 2")
}
