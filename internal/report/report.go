// Package report renders an analysis result as text, a table, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Report is one analysis run together with the parameters that produced it.
type Report struct {
	RunID          string    `json:"run_id" yaml:"run_id"`
	GeneratedAt    time.Time `json:"generated_at" yaml:"generated_at"`
	CalendarID     string    `json:"calendar_id" yaml:"calendar_id"`
	Source         string    `json:"source" yaml:"source"`
	WindowStart    time.Time `json:"window_start" yaml:"window_start"`
	WindowEnd      time.Time `json:"window_end" yaml:"window_end"`
	Threshold      int       `json:"recurrence_threshold" yaml:"recurrence_threshold"`
	InternalDomain string    `json:"internal_domain,omitempty" yaml:"internal_domain,omitempty"`

	TotalMinutes float64                  `json:"total_minutes" yaml:"total_minutes"`
	TotalHours   float64                  `json:"total_hours" yaml:"total_hours"`
	Included     []analysis.IncludedEvent `json:"included" yaml:"included"`
	Skipped      SkippedTitles            `json:"skipped" yaml:"skipped"`
	Counts       map[string]int           `json:"event_counts" yaml:"event_counts"`
}

type SkippedTitles struct {
	HighRecurrence *analysis.TitleSet `json:"high_recurrence" yaml:"high_recurrence"`
	ExternalList   *analysis.TitleSet `json:"external_list" yaml:"external_list"`
	Internal       *analysis.TitleSet `json:"internal" yaml:"internal"`
}

// Params describes how a result was produced.
type Params struct {
	CalendarID string
	Source     string
	Window     analysis.Window
	Rules      *analysis.RuleSet
}

func New(result *analysis.Result, p Params) *Report {
	counts := make(map[string]int)
	for _, d := range []analysis.Disposition{
		analysis.Included,
		analysis.SkippedHighRecurrence,
		analysis.SkippedExternalList,
		analysis.SkippedInternal,
	} {
		counts[d.String()] = 0
	}
	for _, d := range result.Dispositions {
		counts[d.String()]++
	}

	r := &Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  time.Now().UTC(),
		CalendarID:   p.CalendarID,
		Source:       p.Source,
		WindowStart:  p.Window.Start.UTC(),
		WindowEnd:    p.Window.End.UTC(),
		TotalMinutes: result.TotalMinutes,
		TotalHours:   result.TotalHours(),
		Included:     result.Included,
		Skipped: SkippedTitles{
			HighRecurrence: result.HighRecurrence,
			ExternalList:   result.ExternalList,
			Internal:       result.Internal,
		},
		Counts: counts,
	}
	if p.Rules != nil {
		r.Threshold = p.Rules.RecurrenceThreshold
		r.InternalDomain = p.Rules.InternalDomain
	}
	return r
}

// Options control rendering.
type Options struct {
	Format Format
	// MaxTitleWidth truncates titles in table output; 0 disables it.
	MaxTitleWidth int
	Color         bool
}

// Write renders r to w.
func Write(w io.Writer, r *Report, opts Options) error {
	switch opts.Format {
	case "", FormatText:
		return writeText(w, r)
	case FormatTable:
		return writeTable(w, r, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

func formatMinutes(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

func formatBound(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
