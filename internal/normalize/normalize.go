package normalize

import (
	"errors"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"
)

// ErrMissingTimeRange is returned when a provider event has no usable start
// or end.
var ErrMissingTimeRange = errors.New("event has no start or end time")

// UntitledEvent is the title given to events without a subject.
const UntitledEvent = "Untitled Event"

func baseEvent(provider model.Provider, userID, connectionID, calendarID, providerEventID string) *model.CalendarEvent {
	return &model.CalendarEvent{
		ID:             model.EventID(provider, connectionID, providerEventID),
		OwnerID:        userID,
		ConnectionID:   connectionID,
		CalendarSource: provider,
		CalendarID:     calendarID,
		SyncStatus:     model.SyncStatusSynced,
		IsReadOnly:     true,
	}
}

func titleOrDefault(title string) string {
	if title == "" {
		return UntitledEvent
	}
	return title
}

func parseOptionalTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
