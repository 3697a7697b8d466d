package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

const ellipsis = "…"

func writeTable(w io.Writer, r *Report, opts Options) error {
	fmt.Fprintf(w, "Reviewed %s to %s (calendar %s)\n", formatBound(r.WindowStart), formatBound(r.WindowEnd), r.CalendarID)

	events := newTable(w, opts)
	events.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter, AlignFooter: text.AlignRight},
	})
	events.AppendHeader(table.Row{"#", "Event", "Minutes"})
	for i, e := range r.Included {
		events.AppendRow(table.Row{i + 1, truncate(e.Name, opts.MaxTitleWidth), formatMinutes(e.Minutes)})
	}
	if len(r.Included) == 0 {
		events.AppendRow(table.Row{"-", "(no included meetings)", "0"})
	}
	events.AppendFooter(table.Row{"", "Total hours", fmt.Sprintf("%.2f", r.TotalHours)})
	_ = events.Render()

	skipped := newTable(w, opts)
	skipped.AppendHeader(table.Row{"Skipped because", "Titles"})
	appendSkipped(skipped, fmt.Sprintf("more than %d occurrences", r.Threshold), r.Skipped.HighRecurrence, opts.MaxTitleWidth)
	appendSkipped(skipped, "external skip list", r.Skipped.ExternalList, opts.MaxTitleWidth)
	internalReason := "internal (disabled)"
	if r.InternalDomain != "" {
		internalReason = "internal (@" + r.InternalDomain + " only)"
	}
	appendSkipped(skipped, internalReason, r.Skipped.Internal, opts.MaxTitleWidth)
	_ = skipped.Render()

	return nil
}

func newTable(w io.Writer, opts Options) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if opts.Color {
		tw.SetStyle(table.StyleColoredBright)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

func appendSkipped(tw table.Writer, reason string, titles *analysis.TitleSet, width int) {
	if titles == nil || titles.Len() == 0 {
		tw.AppendRow(table.Row{reason, "-"})
		return
	}
	names := titles.Titles()
	for i, name := range names {
		names[i] = truncate(name, width)
	}
	tw.AppendRow(table.Row{reason, strings.Join(names, "\n")})
}

// truncate shortens s to width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}
