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
)

func TestGraphDelta_FirstSyncFollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/me/calendars/cal-1/events/delta":
			assert.Equal(t, "250", r.URL.Query().Get("$top"))
			assert.Equal(t,
				"start/dateTime ge '2023-12-15T00:00:00' and start/dateTime le '2025-06-15T00:00:00'",
				r.URL.Query().Get("$filter"))
			fmt.Fprintf(w, `{"value":[{"id":"m-1","subject":"Standup"}],"@odata.nextLink":"%s/page2"}`, srv.URL)
		case "/page2":
			fmt.Fprintf(w, `{"value":[{"id":"m-2","@removed":{"reason":"deleted"}}],"@odata.deltaLink":"%s/delta?token=abc"}`, srv.URL)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewGraphClient(srv.Client(), srv.URL)
	window := NewWindow(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 6, 12)

	changes, err := client.Delta(context.Background(), "token-1", "cal-1", "", window)
	require.NoError(t, err)
	require.Len(t, changes.Events, 2)
	assert.False(t, changes.Events[0].Deleted())
	assert.True(t, changes.Events[1].Deleted())
	assert.Equal(t, srv.URL+"/delta?token=abc", changes.DeltaLink)
}

func TestGraphDelta_UsesStoredLinkVerbatim(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[],"@odata.deltaLink":"next-link"}`)
	}))
	defer srv.Close()

	client := NewGraphClient(srv.Client(), srv.URL)
	changes, err := client.Delta(context.Background(), "t", "cal-1", srv.URL+"/stored?$deltatoken=xyz", Window{})
	require.NoError(t, err)
	assert.Equal(t, "$deltatoken=xyz", gotQuery)
	assert.Equal(t, "next-link", changes.DeltaLink)
}

func TestGraphDelta_Errors(t *testing.T) {
	status := http.StatusGone
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"code":"ErrorAccessDenied"}}`)
	}))
	defer srv.Close()

	client := NewGraphClient(srv.Client(), srv.URL)

	_, err := client.Delta(context.Background(), "t", "cal-1", srv.URL+"/stale", Window{})
	assert.ErrorIs(t, err, ErrCursorExpired)

	status = http.StatusForbidden
	_, err = client.Delta(context.Background(), "t", "cal-1", "", Window{})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Body, "ErrorAccessDenied")
}
