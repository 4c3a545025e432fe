package sync

import (
	"context"
	"fmt"

	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/model"
	"github.com/beekhof/lab-calendar-sync/internal/normalize"

	"google.golang.org/api/option"
)

// Change is one provider event delivered by a fetch, either as a tombstone
// or as a normalized event. Err holds a normalization failure.
type Change struct {
	ProviderEventID string
	Title           string
	Deleted         bool
	Event           *model.CalendarEvent
	Err             error
}

// ChangeSet is everything one fetch returned for a calendar, plus the
// continuation token to store. An empty Cursor leaves the old one in place.
type ChangeSet struct {
	Changes []Change
	Cursor  string
}

// Source fetches the changes of one calendar from a provider. A cursor of
// "" requests the bounded window.
type Source interface {
	Changes(ctx context.Context, conn *model.CalendarConnection, accessToken string, cal model.ConnectedCalendar, cursor string, window calclient.Window) (*ChangeSet, error)
}

// GoogleSource reads Google Calendar through the calendar/v3 API.
type GoogleSource struct {
	// Options are passed to every client, e.g. option.WithEndpoint in tests.
	Options []option.ClientOption
}

func (s *GoogleSource) Changes(ctx context.Context, conn *model.CalendarConnection, accessToken string, cal model.ConnectedCalendar, cursor string, window calclient.Window) (*ChangeSet, error) {
	client, err := calclient.NewGoogleClientForToken(ctx, accessToken, s.Options...)
	if err != nil {
		return nil, err
	}

	fetched, err := client.ListEventChanges(ctx, cal.ID, cursor, window)
	if err != nil {
		return nil, err
	}

	set := &ChangeSet{Cursor: fetched.NextSyncToken}
	for _, event := range fetched.Events {
		if event == nil {
			continue
		}
		change := Change{ProviderEventID: event.Id, Title: event.Summary}
		if event.Status == "cancelled" {
			change.Deleted = true
		} else {
			change.Event, change.Err = normalize.GoogleEvent(event, conn.UserID, conn.ID, cal.ID)
		}
		set.Changes = append(set.Changes, change)
	}
	return set, nil
}

// GraphSource reads Microsoft calendars through the Graph delta endpoint.
type GraphSource struct {
	Client *calclient.GraphClient
}

func (s *GraphSource) Changes(ctx context.Context, conn *model.CalendarConnection, accessToken string, cal model.ConnectedCalendar, cursor string, window calclient.Window) (*ChangeSet, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("graph source has no client")
	}

	fetched, err := s.Client.Delta(ctx, accessToken, cal.ID, cursor, window)
	if err != nil {
		return nil, err
	}

	zone := normalize.CalendarZone(cal.TimeZone)
	set := &ChangeSet{Cursor: fetched.DeltaLink}
	for i := range fetched.Events {
		event := &fetched.Events[i]
		change := Change{ProviderEventID: event.ID, Title: event.Subject}
		if event.Deleted() {
			change.Deleted = true
		} else {
			change.Event, change.Err = normalize.MicrosoftEvent(event, conn.UserID, conn.ID, cal.ID, zone)
		}
		set.Changes = append(set.Changes, change)
	}
	return set, nil
}

// DefaultSources returns the Google and Microsoft sources.
func DefaultSources(graph *calclient.GraphClient) map[model.Provider]Source {
	return map[model.Provider]Source{
		model.ProviderGoogle:    &GoogleSource{},
		model.ProviderMicrosoft: &GraphSource{Client: graph},
	}
}
