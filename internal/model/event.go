package model

import (
	"fmt"
	"time"
)

// AttendeeResponse is the canonical RSVP state.
type AttendeeResponse string

const (
	ResponseAccepted  AttendeeResponse = "accepted"
	ResponseDeclined  AttendeeResponse = "declined"
	ResponseTentative AttendeeResponse = "tentative"
	ResponseNone      AttendeeResponse = "none"
)

// AttendeeRole is the canonical participation role.
type AttendeeRole string

const (
	RoleRequired  AttendeeRole = "required"
	RoleOptional  AttendeeRole = "optional"
	RoleOrganizer AttendeeRole = "organizer"
	RoleResource  AttendeeRole = "resource"
)

// Visibility is the canonical audience of an event.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityLab          Visibility = "lab"
	VisibilityOrganisation Visibility = "organisation"
)

// SyncStatus is the per-event synchronisation state.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// Attendee is a canonical event participant. PersonID is a placeholder
// until the attendee is matched to a lab member.
type Attendee struct {
	PersonID string           `json:"personId"`
	Email    string           `json:"email,omitempty"`
	Name     string           `json:"name,omitempty"`
	Response AttendeeResponse `json:"response"`
	Role     AttendeeRole     `json:"role"`
}

// Reminder is a notification offset before the event start.
type Reminder struct {
	Method        string `json:"method"`
	MinutesBefore int64  `json:"minutesBefore"`
}

// IntegrationRefs holds provider-native identifiers.
type IntegrationRefs struct {
	GoogleEventID    string `json:"googleEventId,omitempty"`
	MicrosoftEventID string `json:"microsoftEventId,omitempty"`
}

// CalendarEvent is the provider-agnostic event stored and displayed by the
// application.
type CalendarEvent struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"ownerId"`
	ConnectionID    string          `json:"connectionId"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Location        string          `json:"location,omitempty"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	AllDay          bool            `json:"allDay,omitempty"`
	Attendees       []Attendee      `json:"attendees,omitempty"`
	Reminders       []Reminder      `json:"reminders,omitempty"`
	Visibility      Visibility      `json:"visibility"`
	CalendarSource  Provider        `json:"calendarSource"`
	CalendarID      string          `json:"calendarId"`
	SyncStatus      SyncStatus      `json:"syncStatus"`
	LastSyncedAt    *time.Time      `json:"lastSyncedAt,omitempty"`
	IsReadOnly      bool            `json:"isReadOnly"`
	ExternalURL     string          `json:"externalUrl,omitempty"`
	IntegrationRefs IntegrationRefs `json:"integrationRefs"`

	// RemoteUpdatedAt is the provider's last-modified time; LocalUpdatedAt
	// is set by user-facing code when the event is edited locally.
	RemoteUpdatedAt *time.Time `json:"remoteUpdatedAt,omitempty"`
	LocalUpdatedAt  *time.Time `json:"localUpdatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EventID derives the canonical event id from the provider event id. The
// derivation is deterministic so that re-syncing never duplicates events.
func EventID(provider Provider, connectionID, providerEventID string) string {
	return fmt.Sprintf("%s-%s-%s", provider, connectionID, providerEventID)
}
