package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_TimedEvent(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []*model.CalendarEvent{{
		ID:             "google-conn-1-evt-1",
		Title:          "Test Event",
		Location:       "Room 2",
		Start:          start,
		End:            start.Add(time.Hour),
		Visibility:     model.VisibilityPrivate,
		CalendarSource: model.ProviderGoogle,
		Attendees: []model.Attendee{
			{Email: "ada@example.org", Name: "Ada", Response: model.ResponseAccepted, Role: model.RoleOrganizer},
			{Name: "No address"},
		},
	}}

	data, err := Marshal(events, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	assert.Equal(t, ProductID, cal.Props.Get(ical.PropProductID).Value)

	vevents := cal.Events()
	require.Len(t, vevents, 1)
	ev := vevents[0]
	assert.Equal(t, "google-conn-1-evt-1@lab-calendar-sync", ev.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Test Event", ev.Props.Get(ical.PropSummary).Value)
	assert.Equal(t, "Room 2", ev.Props.Get(ical.PropLocation).Value)
	assert.Equal(t, "20240115T100000Z", ev.Props.Get(ical.PropDateTimeStart).Value)
	assert.Equal(t, "20240115T110000Z", ev.Props.Get(ical.PropDateTimeEnd).Value)
	assert.Equal(t, "PRIVATE", ev.Props.Get(ical.PropClass).Value)

	attendees := ev.Props.Values(ical.PropAttendee)
	require.Len(t, attendees, 1, "attendees without an address are skipped")
	assert.Equal(t, "mailto:ada@example.org", attendees[0].Value)
	assert.Equal(t, "ACCEPTED", attendees[0].Params.Get(ical.ParamParticipationStatus))
	assert.Equal(t, "CHAIR", attendees[0].Params.Get(ical.ParamRole))
}

func TestMarshal_AllDayEvent(t *testing.T) {
	events := []*model.CalendarEvent{{
		ID:         "microsoft-conn-2-m-1",
		Title:      "Retreat",
		Start:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		AllDay:     true,
		Visibility: model.VisibilityLab,
	}}

	data, err := Marshal(events, time.Now())
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "DTSTART;VALUE=DATE:20240301")
	assert.Contains(t, text, "DTEND;VALUE=DATE:20240303")
	assert.Contains(t, text, "CLASS:PUBLIC")
}

func TestMarshal_Empty(t *testing.T) {
	data, err := Marshal(nil, time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "BEGIN:VCALENDAR"))
	assert.NotContains(t, string(data), "BEGIN:VEVENT")
	assert.Contains(t, string(data), "TZID:UTC")

	cal, err := ical.NewDecoder(strings.NewReader(string(data))).Decode()
	require.NoError(t, err)
	assert.Empty(t, cal.Events())
}
