// Package analysis classifies calendar events into included meetings and
// skip categories, and sums the time spent in the included ones.
package analysis

import (
	"fmt"
	"strings"

	"github.com/bnema/gcal-analyzer/internal/logger"
)

// Disposition is the single category assigned to an event.
type Disposition int

const (
	Included Disposition = iota
	SkippedHighRecurrence
	SkippedExternalList
	SkippedInternal
)

func (d Disposition) String() string {
	switch d {
	case Included:
		return "included"
	case SkippedHighRecurrence:
		return "skipped_high_recurrence"
	case SkippedExternalList:
		return "skipped_external_list"
	case SkippedInternal:
		return "skipped_internal"
	default:
		return "unknown"
	}
}

func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// IncludedEvent is an included event with its duration in minutes.
type IncludedEvent struct {
	Name    string  `json:"name" yaml:"name"`
	Minutes float64 `json:"minutes" yaml:"minutes"`
}

// Result is the aggregate outcome of one analysis run.
type Result struct {
	TotalMinutes float64
	// Included keeps the fetch order of the input.
	Included []IncludedEvent

	HighRecurrence *TitleSet
	ExternalList   *TitleSet
	Internal       *TitleSet

	// Dispositions[i] is the disposition of the i-th input event.
	Dispositions []Disposition
}

func newResult(n int) *Result {
	return &Result{
		Included:       []IncludedEvent{},
		HighRecurrence: NewTitleSet(),
		ExternalList:   NewTitleSet(),
		Internal:       NewTitleSet(),
		Dispositions:   make([]Disposition, 0, n),
	}
}

func (r *Result) TotalHours() float64 {
	return r.TotalMinutes / 60
}

// Skipped returns the title set for a skip disposition, or nil for Included.
func (r *Result) Skipped(d Disposition) *TitleSet {
	switch d {
	case SkippedHighRecurrence:
		return r.HighRecurrence
	case SkippedExternalList:
		return r.ExternalList
	case SkippedInternal:
		return r.Internal
	default:
		return nil
	}
}

// RecurringTitles returns the titles that occur strictly more than
// threshold times in events.
func RecurringTitles(events []Event, threshold int) map[string]bool {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Name]++
	}

	recurring := make(map[string]bool)
	for name, n := range counts {
		if n > threshold {
			recurring[name] = true
		}
	}
	return recurring
}

// IsInternal reports whether e has at least one attendee and no attendee
// email lacks domain. Attendees without an email are not checked, so an
// event whose attendees all lack emails counts as internal.
func IsInternal(e Event, domain string) bool {
	if len(e.Attendees) == 0 {
		return false
	}
	for _, a := range e.Attendees {
		if a.Email == "" {
			continue
		}
		if !strings.Contains(a.Email, domain) {
			return false
		}
	}
	return true
}

// Classify assigns e its disposition. recurring is the output of
// RecurringTitles over the whole fetched set.
func (rs *RuleSet) Classify(e Event, recurring map[string]bool) Disposition {
	switch {
	case rs.IsForcedInclusion(e.Name):
		return Included
	case recurring[e.Name]:
		return SkippedHighRecurrence
	case rs.IsExternallySkipped(e.Name):
		return SkippedExternalList
	// An empty domain would match every address.
	case rs.InternalDomain != "" && IsInternal(e, rs.InternalDomain):
		return SkippedInternal
	default:
		return Included
	}
}

// Analyze classifies every event and aggregates the included durations.
// Any malformed time on an included event aborts the run.
func Analyze(events []Event, rules *RuleSet) (*Result, error) {
	if rules == nil {
		return nil, fmt.Errorf("analyze: nil rule set")
	}

	recurring := RecurringTitles(events, rules.RecurrenceThreshold)
	result := newResult(len(events))

	for i, e := range events {
		d := rules.Classify(e, recurring)
		result.Dispositions = append(result.Dispositions, d)

		if d != Included {
			result.Skipped(d).Add(e.Name)
			continue
		}

		minutes, err := Duration(e.Start, e.End)
		if err != nil {
			return nil, fmt.Errorf("event %d (%q): %w", i, e.Name, err)
		}
		result.TotalMinutes += minutes
		result.Included = append(result.Included, IncludedEvent{Name: e.Name, Minutes: minutes})
	}

	logger.Debug("classified events",
		"total", len(events),
		"included", len(result.Included),
		"high_recurrence_titles", result.HighRecurrence.Len(),
		"external_list_titles", result.ExternalList.Len(),
		"internal_titles", result.Internal.Len(),
	)

	return result, nil
}
