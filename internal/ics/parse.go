package ics

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

const (
	icsDateLayout     = "20060102"
	icsDateTimeLayout = "20060102T150405"
	icsUTCLayout      = "20060102T150405Z"
	propRecurrenceID  = ical.ComponentProperty("RECURRENCE-ID")
	statusCancelled   = "CANCELLED"
	mailtoPrefix      = "mailto:"
)

// vevent is one VEVENT reduced to what the analysis needs.
type vevent struct {
	uid       string
	summary   string
	cancelled bool

	start  time.Time
	end    time.Time
	allDay bool

	attendees []analysis.Attendee

	rrule        string
	exDates      []time.Time
	recurrenceID *time.Time
}

func parseCalendar(r io.Reader) ([]vevent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var events []vevent
	for i, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, ev.uid, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (vevent, error) {
	var ev vevent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.cancelled = strings.EqualFold(strings.TrimSpace(p.Value), statusCancelled)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := parsePropertyTime(startProp)
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.start, ev.allDay = start, allDay

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if ev.end, _, err = parsePropertyTime(endProp); err != nil {
			return ev, fmt.Errorf("DTEND: %w", err)
		}
	} else if durProp := ve.GetProperty(ical.ComponentPropertyDuration); durProp != nil {
		days, d, err := parseDuration(strings.TrimSpace(durProp.Value))
		if err != nil {
			return ev, fmt.Errorf("DURATION: %w", err)
		}
		ev.end = start.AddDate(0, 0, days).Add(d)
	} else if allDay {
		ev.end = start.AddDate(0, 0, 1)
	} else {
		ev.end = start
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		ev.attendees = append(ev.attendees, analysis.Attendee{Email: attendeeEmail(p.Value)})
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, _, err := parseTimeValue(strings.TrimSpace(part), p.ICalParameters)
			if err != nil {
				return ev, fmt.Errorf("EXDATE: %w", err)
			}
			ev.exDates = append(ev.exDates, t)
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		t, _, err := parsePropertyTime(p)
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		ev.recurrenceID = &t
	}

	return ev, nil
}

func attendeeEmail(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(mailtoPrefix) && strings.EqualFold(value[:len(mailtoPrefix)], mailtoPrefix) {
		return value[len(mailtoPrefix):]
	}
	return value
}

func parsePropertyTime(p *ical.IANAProperty) (time.Time, bool, error) {
	return parseTimeValue(strings.TrimSpace(p.Value), p.ICalParameters)
}

// parseTimeValue reads DATE and DATE-TIME values. TZID times keep their
// zone so recurrences follow its DST rules. Floating times without a TZID
// are read as UTC; dates are midnight UTC.
func parseTimeValue(value string, params map[string][]string) (time.Time, bool, error) {
	if isDateValue(value, params) {
		t, err := time.Parse(icsDateLayout, value)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(icsUTCLayout, value)
		return t, false, err
	}

	loc := time.UTC
	if tzids := params[string(ical.ParameterTzid)]; len(tzids) > 0 && tzids[0] != "" {
		l, err := time.LoadLocation(tzids[0])
		if err != nil {
			return time.Time{}, false, fmt.Errorf("unknown TZID %q: %w", tzids[0], err)
		}
		loc = l
	}

	t, err := time.ParseInLocation(icsDateTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}

// parseDuration reads an RFC 5545 duration such as PT45M, P1DT2H or P2W.
// Days and weeks are nominal and returned separately from the exact part.
func parseDuration(value string) (int, time.Duration, error) {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(value, "+"), "P")
	if !ok || rest == "" {
		return 0, 0, fmt.Errorf("invalid duration %q", value)
	}

	var (
		days   int
		exact  time.Duration
		inTime bool
		digits string
	)
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			digits += string(r)
			continue
		case r == 'T' && !inTime && digits == "":
			inTime = true
			continue
		}

		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid duration %q", value)
		}
		digits = ""

		switch {
		case r == 'W' && !inTime:
			days += 7 * n
		case r == 'D' && !inTime:
			days += n
		case r == 'H' && inTime:
			exact += time.Duration(n) * time.Hour
		case r == 'M' && inTime:
			exact += time.Duration(n) * time.Minute
		case r == 'S' && inTime:
			exact += time.Duration(n) * time.Second
		default:
			return 0, 0, fmt.Errorf("invalid duration %q", value)
		}
	}
	if digits != "" {
		return 0, 0, fmt.Errorf("invalid duration %q", value)
	}
	return days, exact, nil
}

func isDateValue(value string, params map[string][]string) bool {
	if vs := params[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return len(value) == len(icsDateLayout) && !strings.Contains(value, "T")
}
