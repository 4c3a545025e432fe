// Package calendar holds the provider clients used by the sync
// orchestrator: Google Calendar through the calendar/v3 API and Microsoft
// Graph through its REST delta endpoint.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// PageSize is the number of events requested per provider page.
const PageSize = 250

// Window is the bounded time range fetched on a first sync, when no
// continuation token is stored yet.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window from monthsPast months before now to
// monthsAhead months after now.
func NewWindow(now time.Time, monthsPast, monthsAhead int) Window {
	return Window{
		Start: now.AddDate(0, -monthsPast, 0),
		End:   now.AddDate(0, monthsAhead, 0),
	}
}

// ErrCursorExpired is returned when the provider no longer accepts the
// stored continuation token (HTTP 410). The caller must restart with a
// bounded window.
var ErrCursorExpired = errors.New("continuation token expired")

// FetchError is a non-2xx answer from a provider events endpoint.
type FetchError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s events request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}
