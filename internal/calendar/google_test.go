package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestGoogleClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewGoogleClient(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return client
}

func TestListEventChanges_FirstSyncUsesWindow(t *testing.T) {
	window := NewWindow(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 6, 12)

	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/calendars/cal-1/events", r.URL.Path)
		assert.Equal(t, "250", q.Get("maxResults"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2023-12-15T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2025-06-15T00:00:00Z", q.Get("timeMax"))
		assert.Empty(t, q.Get("syncToken"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"evt-1","summary":"Test Event"}],"nextSyncToken":"sync-1"}`)
	})

	changes, err := client.ListEventChanges(context.Background(), "cal-1", "", window)
	require.NoError(t, err)
	require.Len(t, changes.Events, 1)
	assert.Equal(t, "evt-1", changes.Events[0].Id)
	assert.Equal(t, "sync-1", changes.NextSyncToken)
}

func TestListEventChanges_IncrementalFollowsPages(t *testing.T) {
	calls := 0
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		assert.Equal(t, "sync-1", q.Get("syncToken"))
		assert.Empty(t, q.Get("orderBy"))
		assert.Empty(t, q.Get("timeMin"))

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"items":[{"id":"evt-1"}],"nextPageToken":"page-2"}`)
			return
		}
		assert.Equal(t, "page-2", q.Get("pageToken"))
		fmt.Fprint(w, `{"items":[{"id":"evt-2","status":"cancelled"}],"nextSyncToken":"sync-2"}`)
	})

	changes, err := client.ListEventChanges(context.Background(), "cal-1", "sync-1", Window{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, changes.Events, 2)
	assert.Equal(t, "cancelled", changes.Events[1].Status)
	assert.Equal(t, "sync-2", changes.NextSyncToken)
}

func TestListEventChanges_GoneMeansCursorExpired(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"error":{"code":410,"message":"Sync token is no longer valid, a full sync is required."}}`)
	})

	_, err := client.ListEventChanges(context.Background(), "cal-1", "stale", Window{})
	assert.ErrorIs(t, err, ErrCursorExpired)
}

func TestListEventChanges_ErrorKeepsBody(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"insufficient permissions"}}`)
	})

	_, err := client.ListEventChanges(context.Background(), "cal-1", "", Window{})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Body, "insufficient permissions")
}
