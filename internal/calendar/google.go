package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleClient is a wrapper around the Google Calendar API service.
type GoogleClient struct {
	service *gcal.Service
}

// GoogleChanges is the result of one incremental or windowed fetch.
type GoogleChanges struct {
	Events        []*gcal.Event
	NextSyncToken string
}

// NewGoogleClient creates a Google Calendar API client using the provided
// HTTP client. Extra options (for example option.WithEndpoint) are passed
// through to the service.
func NewGoogleClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleClient{service: service}, nil
}

// NewGoogleClientForToken creates a client that authenticates every request
// with a bearer access token obtained from the token manager.
func NewGoogleClientForToken(ctx context.Context, accessToken string, opts ...option.ClientOption) (*GoogleClient, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	return NewGoogleClient(ctx, httpClient, opts...)
}

// ListEventChanges fetches the events of a calendar. With a sync token only
// the changes since that token are returned; without one the bounded window
// is fetched ordered by start time. Recurring events are expanded.
func (c *GoogleClient) ListEventChanges(ctx context.Context, calendarID, syncToken string, window Window) (*GoogleChanges, error) {
	changes := &GoogleChanges{}
	pageToken := ""

	for {
		call := c.service.Events.List(calendarID).
			MaxResults(PageSize).
			SingleEvents(true) // Expand recurring events

		if syncToken != "" {
			// Google rejects orderBy and time bounds together with a sync token.
			call = call.SyncToken(syncToken)
		} else {
			call = call.
				OrderBy("startTime").
				TimeMin(window.Start.UTC().Format(time.RFC3339)).
				TimeMax(window.End.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Context(ctx).Do()
		if err != nil {
			return nil, googleFetchError(err)
		}

		changes.Events = append(changes.Events, events.Items...)

		if events.NextPageToken == "" {
			changes.NextSyncToken = events.NextSyncToken
			return changes, nil
		}
		pageToken = events.NextPageToken
	}
}

// ListCalendars returns the calendars visible to the account.
func (c *GoogleClient) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	var entries []*gcal.CalendarListEntry
	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		entries = append(entries, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Google: failed to list calendars: %w", err)
	}
	return entries, nil
}

func googleFetchError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusGone {
			return ErrCursorExpired
		}
		body := apiErr.Body
		if body == "" {
			body = apiErr.Message
		}
		return &FetchError{Provider: "google", StatusCode: apiErr.Code, Body: body}
	}
	return fmt.Errorf("failed to list events: %w", err)
}
