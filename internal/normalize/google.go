package normalize

import (
	"fmt"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"google.golang.org/api/calendar/v3"
)

const dateLayout = "2006-01-02"

// GoogleEvent maps a Google Calendar event into a canonical event.
func GoogleEvent(event *calendar.Event, userID, connectionID, calendarID string) (*model.CalendarEvent, error) {
	start, allDay, err := googleTime(event.Start)
	if err != nil {
		return nil, fmt.Errorf("google event %s start: %w", event.Id, err)
	}
	end, _, err := googleTime(event.End)
	if err != nil {
		return nil, fmt.Errorf("google event %s end: %w", event.Id, err)
	}

	out := baseEvent(model.ProviderGoogle, userID, connectionID, calendarID, event.Id)
	out.Title = titleOrDefault(event.Summary)
	out.Description = event.Description
	out.Location = event.Location
	out.Start = start
	out.End = end
	out.AllDay = allDay
	out.Visibility = lookupVisibility(googleVisibility, event.Visibility)
	out.ExternalURL = event.HtmlLink
	out.IntegrationRefs.GoogleEventID = event.Id
	out.RemoteUpdatedAt = parseOptionalTime(event.Updated)

	for _, attendee := range event.Attendees {
		if attendee == nil {
			continue
		}
		out.Attendees = append(out.Attendees, model.Attendee{
			Email:    attendee.Email,
			Name:     attendee.DisplayName,
			Response: lookupResponse(googleResponseStatus, attendee.ResponseStatus),
			Role:     googleRole(attendee),
		})
	}

	if event.Reminders != nil {
		for _, override := range event.Reminders.Overrides {
			if override == nil {
				continue
			}
			out.Reminders = append(out.Reminders, model.Reminder{
				Method:        override.Method,
				MinutesBefore: override.Minutes,
			})
		}
	}

	return out, nil
}

// googleTime resolves dateTime, falling back to the all-day date.
func googleTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, ErrMissingTimeRange
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid dateTime %q: %w", edt.DateTime, err)
		}
		return t.UTC(), false, nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation(dateLayout, edt.Date, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date %q: %w", edt.Date, err)
		}
		return t, true, nil
	}
	return time.Time{}, false, ErrMissingTimeRange
}

func googleRole(attendee *calendar.EventAttendee) model.AttendeeRole {
	switch {
	case attendee.Organizer:
		return model.RoleOrganizer
	case attendee.Resource:
		return model.RoleResource
	case attendee.Optional:
		return model.RoleOptional
	}
	return model.RoleRequired
}
