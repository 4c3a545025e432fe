// Package model holds the calendar integration entities shared by the
// token manager, the normalizer, the sync orchestrator and the stores.
package model

import "time"

// Provider identifies an external calendar provider.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderMicrosoft
}

// SyncDirection controls which way events flow for a connection.
type SyncDirection string

const (
	SyncDirectionImport        SyncDirection = "import"
	SyncDirectionExport        SyncDirection = "export"
	SyncDirectionBidirectional SyncDirection = "bidirectional"
)

// ConnectionStatus is the health of an OAuth grant.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionError   ConnectionStatus = "error"
)

// ConnectedCalendar is one calendar exposed by a provider account.
// Only calendars with IsSelected set are synced.
type ConnectedCalendar struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrimary  bool   `json:"isPrimary"`
	IsSelected bool   `json:"isSelected"`
	AccessRole string `json:"accessRole,omitempty"`
	TimeZone   string `json:"timezone,omitempty"`
}

// WebhookSubscription is push-notification metadata kept on the connection.
// Sync never depends on it.
type WebhookSubscription struct {
	ID          string     `json:"id"`
	ResourceID  string     `json:"resourceId,omitempty"`
	CallbackURL string     `json:"callbackUrl,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// CalendarConnection is one OAuth grant of a user against a provider.
type CalendarConnection struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"userId"`
	Provider            Provider            `json:"provider"`
	ProviderAccountID   string              `json:"providerAccountId"`
	ProviderAccountName string              `json:"providerAccountName"`
	Calendars           []ConnectedCalendar `json:"calendars"`
	SyncEnabled         bool                `json:"syncEnabled"`
	SyncDirection       SyncDirection       `json:"syncDirection"`
	Status              ConnectionStatus    `json:"status"`
	LastSyncedAt        *time.Time          `json:"lastSyncedAt,omitempty"`
	SyncError           string              `json:"syncError,omitempty"`

	// Cursors maps a calendar id to its continuation token: the Google
	// syncToken or the Microsoft Graph deltaLink.
	Cursors map[string]string `json:"cursors,omitempty"`

	Webhook   *WebhookSubscription `json:"webhook,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// SelectedCalendars returns the calendars marked for synchronisation, in
// their stored order.
func (c *CalendarConnection) SelectedCalendars() []ConnectedCalendar {
	var selected []ConnectedCalendar
	for _, cal := range c.Calendars {
		if cal.IsSelected {
			selected = append(selected, cal)
		}
	}
	return selected
}

// Cursor returns the stored continuation token for a calendar, or "".
func (c *CalendarConnection) Cursor(calendarID string) string {
	if c.Cursors == nil {
		return ""
	}
	return c.Cursors[calendarID]
}

// ConnectionUpdate is a partial update of a connection. Nil fields are left
// untouched; Cursors are merged key by key.
type ConnectionUpdate struct {
	Status       *ConnectionStatus
	SyncError    *string
	LastSyncedAt *time.Time
	Cursors      map[string]string
}

// Apply merges the update into c.
func (u ConnectionUpdate) Apply(c *CalendarConnection) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.SyncError != nil {
		c.SyncError = *u.SyncError
	}
	if u.LastSyncedAt != nil {
		t := *u.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if len(u.Cursors) > 0 {
		if c.Cursors == nil {
			c.Cursors = make(map[string]string, len(u.Cursors))
		}
		for calendarID, cursor := range u.Cursors {
			c.Cursors[calendarID] = cursor
		}
	}
}
