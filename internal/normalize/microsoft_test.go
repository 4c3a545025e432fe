package normalize

import (
	"encoding/json"
	"testing"
	"time"

	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphEvent(start, end string) *calclient.GraphEvent {
	return &calclient.GraphEvent{
		ID:      "m-1",
		Subject: "Lab meeting",
		Start:   &calclient.GraphDateTime{DateTime: start},
		End:     &calclient.GraphDateTime{DateTime: end},
	}
}

func TestMicrosoftEvent_NoSuffixIsUTC(t *testing.T) {
	got, err := MicrosoftEvent(graphEvent("2023-01-01T10:00:00", "2023-01-01T11:00:00"), "user-1", "conn-1", "cal-1", nil)
	require.NoError(t, err)

	assert.Equal(t, "microsoft-conn-1-m-1", got.ID)
	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 11, 0, 0, 0, time.UTC), got.End)
	assert.Equal(t, model.ProviderMicrosoft, got.CalendarSource)
	assert.Equal(t, "m-1", got.IntegrationRefs.MicrosoftEventID)
	assert.True(t, got.IsReadOnly)
	assert.Empty(t, got.Reminders)
}

func TestMicrosoftEvent_SuffixNotDoubled(t *testing.T) {
	got, err := MicrosoftEvent(graphEvent("2023-01-01T10:00:00.0000000Z", "2023-01-01T11:00:00+01:00"), "u", "c", "cal", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), got.End)
}

func TestMicrosoftEvent_FractionalSeconds(t *testing.T) {
	got, err := MicrosoftEvent(graphEvent("2023-01-01T10:00:00.0000000", "2023-01-01T11:30:00.0000000"), "u", "c", "cal", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 11, 30, 0, 0, time.UTC), got.End)
}

func TestMicrosoftEvent_DeclaredTimeZones(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Payload zone wins.
	event := graphEvent("2023-01-01T10:00:00", "2023-01-01T11:00:00")
	event.Start.TimeZone = "Europe/Berlin"
	event.End.TimeZone = "UTC"
	got, err := MicrosoftEvent(event, "u", "c", "cal", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 11, 0, 0, 0, time.UTC), got.End)

	// Calendar zone is the fallback, also for unknown Windows names.
	event = graphEvent("2023-01-01T10:00:00", "2023-01-01T11:00:00")
	event.End.TimeZone = "W. Europe Standard Time"
	got, err = MicrosoftEvent(event, "u", "c", "cal", berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC), got.End)
}

func TestMicrosoftEvent_MissingTimeRange(t *testing.T) {
	event := graphEvent("", "2023-01-01T11:00:00")
	_, err := MicrosoftEvent(event, "u", "c", "cal", nil)
	assert.ErrorIs(t, err, ErrMissingTimeRange)

	event = &calclient.GraphEvent{ID: "m-2", Start: &calclient.GraphDateTime{DateTime: "2023-01-01T10:00:00"}}
	_, err = MicrosoftEvent(event, "u", "c", "cal", nil)
	assert.ErrorIs(t, err, ErrMissingTimeRange)
}

func TestMicrosoftEvent_MappingTables(t *testing.T) {
	payload := `{
		"id": "m-3",
		"subject": "Review",
		"sensitivity": "normal",
		"body": {"contentType": "text", "content": "Agenda"},
		"location": {"displayName": "Room 101"},
		"start": {"dateTime": "2023-01-01T10:00:00", "timeZone": "UTC"},
		"end": {"dateTime": "2023-01-01T11:00:00", "timeZone": "UTC"},
		"attendees": [
			{"type": "required", "status": {"response": "tentativelyAccepted"}, "emailAddress": {"name": "A", "address": "a@lab.org"}},
			{"type": "optional", "status": {"response": "declined"}, "emailAddress": {"address": "b@lab.org"}},
			{"type": "resource", "status": {"response": "notResponded"}, "emailAddress": {"address": "room@lab.org"}}
		]
	}`
	var event calclient.GraphEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))

	got, err := MicrosoftEvent(&event, "u", "c", "cal", nil)
	require.NoError(t, err)

	assert.Equal(t, model.VisibilityOrganisation, got.Visibility)
	assert.Equal(t, "Agenda", got.Description)
	assert.Equal(t, "Room 101", got.Location)
	require.Len(t, got.Attendees, 3)
	assert.Equal(t, model.ResponseTentative, got.Attendees[0].Response)
	assert.Equal(t, model.RoleRequired, got.Attendees[0].Role)
	assert.Equal(t, model.ResponseDeclined, got.Attendees[1].Response)
	assert.Equal(t, model.RoleOptional, got.Attendees[1].Role)
	assert.Equal(t, model.ResponseNone, got.Attendees[2].Response)
	assert.Equal(t, model.RoleResource, got.Attendees[2].Role)
}

func TestMicrosoftSensitivityCollapse(t *testing.T) {
	cases := map[string]model.Visibility{
		"private":      model.VisibilityPrivate,
		"confidential": model.VisibilityPrivate,
		"normal":       model.VisibilityOrganisation,
		"personal":     model.VisibilityLab,
		"":             model.VisibilityLab,
	}
	for in, want := range cases {
		assert.Equal(t, want, lookupVisibility(microsoftSensitivity, in), "sensitivity %q", in)
	}
}

func TestMicrosoftEvent_Deterministic(t *testing.T) {
	event := graphEvent("2023-01-01T10:00:00", "2023-01-01T11:00:00")
	event.LastModifiedDateTime = "2022-12-31T10:00:00Z"

	first, err := MicrosoftEvent(event, "u", "c", "cal", nil)
	require.NoError(t, err)
	second, err := MicrosoftEvent(event, "u", "c", "cal", nil)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
