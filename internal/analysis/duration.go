package analysis

import (
	"errors"
	"fmt"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	localTimeLayout = "2006-01-02T15:04:05"
)

// ErrMissingTime is returned when an event time has neither a timestamp nor
// a date.
var ErrMissingTime = errors.New("event time has neither dateTime nor date")

// TimeParseError reports a malformed event timestamp.
type TimeParseError struct {
	Field string
	Value string
	Err   error
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("malformed %s time %q: %v", e.Field, e.Value, e.Err)
}

func (e *TimeParseError) Unwrap() error {
	return e.Err
}

// ParseEventTime resolves an EventTime into an instant. DateTime wins over
// Date. Offsets, including the "Z" UTC marker, are honoured; a DateTime
// without an offset and a Date are both read as UTC.
func ParseEventTime(t EventTime) (time.Time, error) {
	switch {
	case t.DateTime != "":
		if ts, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return ts, nil
		}
		ts, err := time.Parse(localTimeLayout, t.DateTime)
		if err != nil {
			return time.Time{}, &TimeParseError{Value: t.DateTime, Err: err}
		}
		return ts, nil
	case t.Date != "":
		ts, err := time.Parse(dateLayout, t.Date)
		if err != nil {
			return time.Time{}, &TimeParseError{Value: t.Date, Err: err}
		}
		return ts, nil
	default:
		return time.Time{}, ErrMissingTime
	}
}

// Duration returns end - start in minutes. Fractional minutes are kept.
func Duration(start, end EventTime) (float64, error) {
	s, err := parseField("start", start)
	if err != nil {
		return 0, err
	}
	e, err := parseField("end", end)
	if err != nil {
		return 0, err
	}
	return e.Sub(s).Minutes(), nil
}

func parseField(field string, t EventTime) (time.Time, error) {
	ts, err := ParseEventTime(t)
	if err == nil {
		return ts, nil
	}
	var perr *TimeParseError
	if errors.As(err, &perr) {
		perr.Field = field
		return time.Time{}, perr
	}
	return time.Time{}, fmt.Errorf("%s: %w", field, err)
}
