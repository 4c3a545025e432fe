package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// GraphBaseURL is the Microsoft Graph v1.0 root.
	GraphBaseURL = "https://graph.microsoft.com/v1.0"

	graphTimeFormat = "2006-01-02T15:04:05"
	maxErrorBody    = 4096
)

// GraphClient talks to the Microsoft Graph calendar endpoints.
type GraphClient struct {
	httpClient *http.Client
	baseURL    string
}

// GraphChanges is the result of one delta round.
type GraphChanges struct {
	Events    []GraphEvent
	DeltaLink string
}

// NewGraphClient creates a Graph client. An empty baseURL selects
// GraphBaseURL; a nil httpClient gets a 30 second timeout client.
func NewGraphClient(httpClient *http.Client, baseURL string) *GraphClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = GraphBaseURL
	}
	return &GraphClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Delta runs one delta round for a calendar. Without a delta link the
// bounded window is requested; with one, the link is followed verbatim.
// Pages are followed until Graph hands out the next delta link.
func (c *GraphClient) Delta(ctx context.Context, accessToken, calendarID, deltaLink string, window Window) (*GraphChanges, error) {
	next := deltaLink
	if next == "" {
		params := url.Values{}
		params.Set("$top", fmt.Sprintf("%d", PageSize))
		params.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and start/dateTime le '%s'",
			window.Start.UTC().Format(graphTimeFormat), window.End.UTC().Format(graphTimeFormat)))
		next = fmt.Sprintf("%s/me/calendars/%s/events/delta?%s", c.baseURL, url.PathEscape(calendarID), params.Encode())
	}

	changes := &GraphChanges{}
	for next != "" {
		var page graphDeltaPage
		if err := c.getJSON(ctx, accessToken, next, &page); err != nil {
			return nil, err
		}
		changes.Events = append(changes.Events, page.Value...)
		if page.DeltaLink != "" {
			changes.DeltaLink = page.DeltaLink
		}
		next = page.NextLink
	}
	return changes, nil
}

// ListCalendars returns the calendars of the signed-in user.
func (c *GraphClient) ListCalendars(ctx context.Context, accessToken string) ([]GraphCalendar, error) {
	var calendars []GraphCalendar
	next := c.baseURL + "/me/calendars"
	for next != "" {
		var page graphCalendarPage
		if err := c.getJSON(ctx, accessToken, next, &page); err != nil {
			return nil, fmt.Errorf("Microsoft: failed to list calendars: %w", err)
		}
		calendars = append(calendars, page.Value...)
		next = page.NextLink
	}
	return calendars, nil
}

// Me returns the signed-in user.
func (c *GraphClient) Me(ctx context.Context, accessToken string) (*GraphUser, error) {
	var user GraphUser
	if err := c.getJSON(ctx, accessToken, c.baseURL+"/me", &user); err != nil {
		return nil, fmt.Errorf("Microsoft: failed to get user: %w", err)
	}
	return &user, nil
}

func (c *GraphClient) getJSON(ctx context.Context, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Microsoft Graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrCursorExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{Provider: "microsoft", StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
