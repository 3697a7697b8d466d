package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

func writeText(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	start, end := formatBound(r.WindowStart), formatBound(r.WindowEnd)

	fmt.Fprintf(bw, "Reviewing calendar events from %s to %s\n\n", start, end)

	writeTitles(bw, fmt.Sprintf("Skipped recurring meeting titles (more than %d occurrences):", r.Threshold), r.Skipped.HighRecurrence)
	writeTitles(bw, "Skipped meeting titles from the external skip list:", r.Skipped.ExternalList)
	writeTitles(bw, internalHeading(r), r.Skipped.Internal)

	fmt.Fprintln(bw)
	for _, e := range r.Included {
		fmt.Fprintf(bw, "Event: %s, Duration: %sm\n", e.Name, formatMinutes(e.Minutes))
	}

	fmt.Fprintf(bw, "\nReviewed %s to %s: total time spent in meetings %.2f hours\n", start, end, r.TotalHours)
	return bw.Flush()
}

func internalHeading(r *Report) string {
	if r.InternalDomain == "" {
		return "Skipped internal meeting titles (disabled, no internal domain):"
	}
	return fmt.Sprintf("Skipped internal meeting titles (@%s only):", r.InternalDomain)
}

func writeTitles(w io.Writer, heading string, titles *analysis.TitleSet) {
	fmt.Fprintln(w, heading)
	if titles == nil {
		return
	}
	for _, title := range titles.Titles() {
		fmt.Fprintf(w, " - %s\n", title)
	}
}
