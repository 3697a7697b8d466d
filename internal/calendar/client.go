package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/logger"
)

// Client reads events from the Google Calendar API. It implements
// analysis.EventSource.
type Client struct {
	service *gcal.Service
}

// TokenSourceProvider is implemented by providers that can refresh a
// token while a fetch is in progress.
type TokenSourceProvider interface {
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// NewClient obtains a credential from provider and builds the Calendar
// service. Extra options are applied last, so they may replace the HTTP
// client or endpoint.
func NewClient(ctx context.Context, provider CredentialProvider, opts ...option.ClientOption) (*Client, error) {
	token, err := provider.ObtainValidCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain credential: %w", err)
	}

	var src oauth2.TokenSource = oauth2.StaticTokenSource(token)
	if ts, ok := provider.(TokenSourceProvider); ok {
		src = ts.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, src)
	clientOpts := append([]option.ClientOption{
		option.WithHTTPClient(httpClient),
		option.WithUserAgent(UserAgent),
	}, opts...)

	srv, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{service: srv}, nil
}

// FetchEvents lists every single-instance event of calendarID starting in
// window, ordered by start time, following all result pages.
func (c *Client) FetchEvents(ctx context.Context, calendarID string, window analysis.Window) ([]analysis.Event, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("fetching events from calendar", "calendar_id", calendarID, "window", window.String())

	call := c.service.Events.List(calendarID).
		TimeMin(window.Start.UTC().Format(time.RFC3339)).
		TimeMax(window.End.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(eventsPageSize)

	var events []analysis.Event
	pages := 0
	err := call.Pages(ctx, func(page *gcal.Events) error {
		pages++
		for _, item := range page.Items {
			events = append(events, convertEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events for calendar %s: %w", calendarID, err)
	}

	logger.Info("fetched events from calendar", "calendar_id", calendarID, "event_count", len(events), "pages", pages)
	return events, nil
}

// ListCalendars retrieves every calendar visible to the authenticated user.
func (c *Client) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	var entries []*gcal.CalendarListEntry
	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		entries = append(entries, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	return entries, nil
}
