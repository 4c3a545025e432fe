package model

import "time"

// SyncLogStatus is the outcome of one sync invocation.
type SyncLogStatus string

const (
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogPartial SyncLogStatus = "partial"
	SyncLogFailed  SyncLogStatus = "failed"

	// SyncLogInProgress is only found on legacy records that were written
	// before a run and finalised afterwards.
	SyncLogInProgress SyncLogStatus = "in_progress"
)

// SyncAction names what was being attempted when an error was recorded.
type SyncAction string

const (
	ActionImport SyncAction = "import"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
	ActionFetch  SyncAction = "fetch"
	ActionSync   SyncAction = "sync"
)

// SyncError is one error entry of a sync log.
type SyncError struct {
	EventID    string     `json:"eventId,omitempty"`
	EventTitle string     `json:"eventTitle,omitempty"`
	Error      string     `json:"error"`
	Action     SyncAction `json:"action"`
}

// CalendarSyncLog is the append-only audit record of one sync invocation.
type CalendarSyncLog struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	ConnectionID     string        `json:"connectionId"`
	Provider         Provider      `json:"provider,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Status           SyncLogStatus `json:"status"`
	EventsImported   int           `json:"eventsImported"`
	EventsUpdated    int           `json:"eventsUpdated"`
	EventsDeleted    int           `json:"eventsDeleted"`
	EventsExported   int           `json:"eventsExported"`
	EventsConflicted int           `json:"eventsConflicted,omitempty"`
	Errors           []SyncError   `json:"errors"`
	DurationMs       int64         `json:"duration"`
}
