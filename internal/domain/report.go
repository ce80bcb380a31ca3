package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReportDivider separates trip summaries in a range report.
const ReportDivider = "----------------------------------------"

// RangeReport renders the summary of every trip that started in [start, end].
// An empty slice still yields a header reporting "Total trips: 0".
func RangeReport(start, end time.Time, trips []Trip) string {
	var b strings.Builder

	b.WriteString("Trip summary\n")
	fmt.Fprintf(&b, "Period: %s - %s\n", formatTime(start), formatTime(end))
	fmt.Fprintf(&b, "Total trips: %d\n", len(trips))
	for _, t := range trips {
		b.WriteString(ReportDivider + "\n")
		b.WriteString(t.Summary())
	}

	return b.String()
}
