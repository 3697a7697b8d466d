package analysis

import (
	"context"
	"fmt"
	"time"
)

// UntitledEvent is the name given to events that carry no summary.
const UntitledEvent = "No Title"

// Event is a single calendar event instance as delivered by an EventSource.
// Events are read-only once fetched.
type Event struct {
	Name      string     `json:"name"`
	Start     EventTime  `json:"start"`
	End       EventTime  `json:"end"`
	Attendees []Attendee `json:"attendees,omitempty"`
}

// EventTime holds either a precise timestamp (DateTime, RFC 3339) or a
// date-only value (Date, YYYY-MM-DD) for all-day events.
type EventTime struct {
	DateTime string `json:"date_time,omitempty"`
	Date     string `json:"date,omitempty"`
}

// IsZero reports whether neither field is set.
func (t EventTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

type Attendee struct {
	Email string `json:"email,omitempty"`
}

// TitleOrDefault returns summary, or UntitledEvent when it is empty.
func TitleOrDefault(summary string) string {
	if summary == "" {
		return UntitledEvent
	}
	return summary
}

// Window is the reviewed time range: Start is inclusive, End exclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the window is non-empty.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds must both be set")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window end %s is not after start %s",
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// ParseBound parses a window bound given either as RFC 3339 or as a plain
// date (midnight UTC).
func ParseBound(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

// EventSource yields the events of one calendar whose start falls in the
// window, ordered by start time.
type EventSource interface {
	FetchEvents(ctx context.Context, calendarID string, window Window) ([]Event, error)
}
