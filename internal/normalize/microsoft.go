package normalize

import (
	"fmt"
	"strings"
	"time"

	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/model"
)

const graphLayout = "2006-01-02T15:04:05"

// MicrosoftEvent maps a Microsoft Graph event into a canonical event.
// Timestamps without an offset are read in the payload's timeZone, then in
// calendarZone (the calendar's declared zone), then in UTC.
func MicrosoftEvent(event *calclient.GraphEvent, userID, connectionID, calendarID string, calendarZone *time.Location) (*model.CalendarEvent, error) {
	start, err := graphTime(event.Start, calendarZone)
	if err != nil {
		return nil, fmt.Errorf("microsoft event %s start: %w", event.ID, err)
	}
	end, err := graphTime(event.End, calendarZone)
	if err != nil {
		return nil, fmt.Errorf("microsoft event %s end: %w", event.ID, err)
	}

	out := baseEvent(model.ProviderMicrosoft, userID, connectionID, calendarID, event.ID)
	out.Title = titleOrDefault(event.Subject)
	out.Description = event.BodyPreview
	if event.Body != nil && event.Body.Content != "" {
		out.Description = event.Body.Content
	}
	if event.Location != nil {
		out.Location = event.Location.DisplayName
	}
	out.Start = start
	out.End = end
	out.AllDay = event.IsAllDay
	out.Visibility = lookupVisibility(microsoftSensitivity, event.Sensitivity)
	out.ExternalURL = event.WebLink
	out.IntegrationRefs.MicrosoftEventID = event.ID
	out.RemoteUpdatedAt = parseOptionalTime(event.LastModifiedDateTime)

	for _, attendee := range event.Attendees {
		role, ok := microsoftAttendeeType[attendee.Type]
		if !ok {
			role = model.RoleRequired
		}
		out.Attendees = append(out.Attendees, model.Attendee{
			Email:    attendee.EmailAddress.Address,
			Name:     attendee.EmailAddress.Name,
			Response: lookupResponse(microsoftResponseStatus, attendee.Status.Response),
			Role:     role,
		})
	}

	// Graph does not return reminder overrides on this payload.
	return out, nil
}

func graphTime(dt *calclient.GraphDateTime, calendarZone *time.Location) (time.Time, error) {
	if dt == nil || dt.DateTime == "" {
		return time.Time{}, ErrMissingTimeRange
	}

	if hasZoneSuffix(dt.DateTime) {
		t, err := time.Parse(time.RFC3339Nano, dt.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid dateTime %q: %w", dt.DateTime, err)
		}
		return t.UTC(), nil
	}

	t, err := time.ParseInLocation(graphLayout, dt.DateTime, graphLocation(dt.TimeZone, calendarZone))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dateTime %q: %w", dt.DateTime, err)
	}
	return t.UTC(), nil
}

// hasZoneSuffix reports whether the time part carries Z or a numeric offset.
func hasZoneSuffix(value string) bool {
	i := strings.IndexByte(value, 'T')
	if i < 0 {
		return false
	}
	clock := value[i+1:]
	return strings.HasSuffix(clock, "Z") || strings.HasSuffix(clock, "z") || strings.ContainsAny(clock, "+-")
}

func graphLocation(zone string, calendarZone *time.Location) *time.Location {
	fallback := calendarZone
	if fallback == nil {
		fallback = time.UTC
	}
	switch strings.ToLower(zone) {
	case "":
		return fallback
	case "utc", "gmt", "coordinated universal time", "tzone://microsoft/utc":
		return time.UTC
	}
	if loc, err := time.LoadLocation(zone); err == nil {
		return loc
	}
	// Windows zone names ("Pacific Standard Time") are not in the tz database.
	return fallback
}

// CalendarZone loads a calendar's declared IANA zone, or returns nil.
func CalendarZone(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}
