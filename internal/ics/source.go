// Package ics reads meeting events from an exported iCalendar file, so a
// calendar can be analyzed without API access.
package ics

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/logger"
)

const defaultMaxOccurrences = 5000

// Source is an analysis.EventSource backed by a .ics file. Recurring events
// are expanded into single instances, like the Calendar API does with
// singleEvents=true.
type Source struct {
	Path string
	// MaxOccurrences caps the instances generated per recurring event.
	MaxOccurrences int
}

// FetchEvents returns the instances starting inside window, ordered by start.
// The file holds a single calendar, so calendarID is informational.
func (s Source) FetchEvents(ctx context.Context, calendarID string, window analysis.Window) ([]analysis.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar file: %w", err)
	}
	defer f.Close()

	vevents, err := parseCalendar(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}

	limit := s.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	instances, err := expand(vevents, window, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}

	events := make([]analysis.Event, 0, len(instances))
	for _, inst := range instances {
		events = append(events, inst.event())
	}

	logger.Info("loaded events from calendar file",
		"path", s.Path,
		"calendar_id", calendarID,
		"vevents", len(vevents),
		"event_count", len(events),
	)
	return events, nil
}

type instance struct {
	source *vevent
	start  time.Time
	end    time.Time
}

func (i instance) event() analysis.Event {
	e := analysis.Event{
		Name:      analysis.TitleOrDefault(i.source.summary),
		Attendees: i.source.attendees,
	}
	if i.source.allDay {
		e.Start = analysis.EventTime{Date: i.start.Format(time.DateOnly)}
		e.End = analysis.EventTime{Date: i.end.Format(time.DateOnly)}
	} else {
		e.Start = analysis.EventTime{DateTime: i.start.UTC().Format(time.RFC3339)}
		e.End = analysis.EventTime{DateTime: i.end.UTC().Format(time.RFC3339)}
	}
	return e
}

type instanceKey struct {
	uid   string
	start int64
}

// expand turns parsed VEVENTs into instances within window. Overrides
// (VEVENTs with RECURRENCE-ID) replace the instance they name; cancelled
// events and overrides produce nothing.
func expand(vevents []vevent, window analysis.Window, limit int) ([]instance, error) {
	replaced := make(map[instanceKey]bool)
	for i := range vevents {
		if ev := &vevents[i]; ev.recurrenceID != nil {
			replaced[instanceKey{ev.uid, ev.recurrenceID.Unix()}] = true
		}
	}

	var out []instance
	for i := range vevents {
		ev := &vevents[i]
		if ev.cancelled {
			continue
		}

		if ev.rrule == "" || ev.recurrenceID != nil {
			if window.Contains(ev.start) {
				out = append(out, instance{source: ev, start: ev.start, end: ev.end})
			}
			continue
		}

		starts, err := occurrences(ev, window, limit)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.uid, err)
		}

		length := ev.end.Sub(ev.start)
		for _, start := range starts {
			if replaced[instanceKey{ev.uid, start.Unix()}] {
				continue
			}
			out = append(out, instance{source: ev, start: start, end: start.Add(length)})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].start.Before(out[b].start)
	})
	return out, nil
}

func occurrences(ev *vevent, window analysis.Window, limit int) ([]time.Time, error) {
	rule, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", ev.rrule, err)
	}
	// Expand in the event's own zone so instances keep their wall-clock time
	// across DST changes.
	loc := ev.start.Location()
	rule.DTStart(ev.start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(loc))
	}

	var starts []time.Time
	for _, t := range set.Between(window.Start.In(loc), window.End.In(loc), true) {
		if !window.Contains(t) {
			continue
		}
		if len(starts) == limit {
			logger.Warn("recurring event truncated", "uid", ev.uid, "limit", limit)
			break
		}
		starts = append(starts, t)
	}
	return starts, nil
}
