package calendar

import (
	gcal "google.golang.org/api/calendar/v3"
)

const (
	UserAgent = "gcal-analyzer"

	// DefaultCalendarID selects the authenticated user's own calendar.
	DefaultCalendarID = "primary"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	eventsPageSize  = 250
)

// CalendarScopes is the minimal access needed: events are only read.
var CalendarScopes = []string{gcal.CalendarReadonlyScope}
