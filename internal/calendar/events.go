package calendar

import (
	gcal "google.golang.org/api/calendar/v3"

	"github.com/bnema/gcal-analyzer/internal/analysis"
)

// convertEvent keeps the fields the analysis needs. Times are passed
// through verbatim; parsing happens only for events that are counted.
func convertEvent(item *gcal.Event) analysis.Event {
	event := analysis.Event{
		Name:  analysis.TitleOrDefault(item.Summary),
		Start: convertTime(item.Start),
		End:   convertTime(item.End),
	}

	for _, attendee := range item.Attendees {
		if attendee == nil {
			continue
		}
		event.Attendees = append(event.Attendees, analysis.Attendee{Email: attendee.Email})
	}

	return event
}

func convertTime(t *gcal.EventDateTime) analysis.EventTime {
	if t == nil {
		return analysis.EventTime{}
	}
	return analysis.EventTime{DateTime: t.DateTime, Date: t.Date}
}
