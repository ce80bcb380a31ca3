package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SummaryTimeLayout is the layout used for every timestamp in a summary.
// Times are rendered in UTC so output does not depend on the store's zone.
const SummaryTimeLayout = time.RFC3339

// Summary renders the trip as a multi-line text report.
// End time, duration and distance are included only once the trip is finished.
func (t Trip) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Trip %s:\n", t.ID)
	fmt.Fprintf(&b, "  Start time: %s\n", formatTime(t.StartTime))
	if len(t.Locations) > 0 {
		first := t.Locations[0]
		fmt.Fprintf(&b, "  Initial location: %s\n", FormatCoordinates(first.Longitude, first.Latitude))
	}
	b.WriteString("  Recorded locations:\n")
	for _, l := range t.Locations {
		fmt.Fprintf(&b, "    %s: %s\n", formatTime(l.Timestamp), FormatCoordinates(l.Longitude, l.Latitude))
	}
	if t.Finished() {
		fmt.Fprintf(&b, "  End time: %s\n", formatTime(*t.EndTime))
		var secs int64
		if t.DurationSeconds != nil {
			secs = *t.DurationSeconds
		}
		fmt.Fprintf(&b, "  Duration: %d seconds\n", secs)
		fmt.Fprintf(&b, "  Total distance: %.2f km\n", t.TotalDistanceKm())
	}

	return b.String()
}

// FormatCoordinates renders a "(longitude, latitude)" pair. Whole numbers keep
// a trailing ".0" so 27 prints as "27.0".
func FormatCoordinates(longitude, latitude float64) string {
	return "(" + formatDegrees(longitude) + ", " + formatDegrees(latitude) + ")"
}

func formatDegrees(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(SummaryTimeLayout)
}
