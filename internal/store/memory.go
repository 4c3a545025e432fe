package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/google/uuid"
)

// Memory is an in-process Repository. Values are copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	connections map[string]*model.CalendarConnection
	tokens      map[string]*model.OAuthToken
	events      map[string]*model.CalendarEvent
	logs        []*model.CalendarSyncLog
	conflicts   map[string]*model.CalendarConflict
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		connections: make(map[string]*model.CalendarConnection),
		tokens:      make(map[string]*model.OAuthToken),
		events:      make(map[string]*model.CalendarEvent),
		conflicts:   make(map[string]*model.CalendarConflict),
		now:         time.Now,
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func copyConnection(c *model.CalendarConnection) *model.CalendarConnection {
	out := *c
	out.Calendars = append([]model.ConnectedCalendar(nil), c.Calendars...)
	if c.Cursors != nil {
		out.Cursors = make(map[string]string, len(c.Cursors))
		for k, v := range c.Cursors {
			out.Cursors[k] = v
		}
	}
	if c.Webhook != nil {
		w := *c.Webhook
		out.Webhook = &w
	}
	return &out
}

func copyEvent(e *model.CalendarEvent) *model.CalendarEvent {
	out := *e
	out.Attendees = append([]model.Attendee(nil), e.Attendees...)
	out.Reminders = append([]model.Reminder(nil), e.Reminders...)
	return &out
}

func (m *Memory) CreateConnection(ctx context.Context, conn *model.CalendarConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if _, exists := m.connections[conn.ID]; exists {
		return fmt.Errorf("connection %s already exists", conn.ID)
	}
	now := m.now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	m.connections[conn.ID] = copyConnection(conn)
	return nil
}

func (m *Memory) GetConnection(ctx context.Context, id string) (*model.CalendarConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[id]
	if !ok {
		return nil, nil
	}
	return copyConnection(conn), nil
}

func (m *Memory) listConnections(keep func(*model.CalendarConnection) bool) []*model.CalendarConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.CalendarConnection
	for _, conn := range m.connections {
		if keep(conn) {
			out = append(out, copyConnection(conn))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) ListConnections(ctx context.Context, userID string) ([]*model.CalendarConnection, error) {
	return m.listConnections(func(c *model.CalendarConnection) bool { return c.UserID == userID }), nil
}

func (m *Memory) ListSyncEnabledConnections(ctx context.Context) ([]*model.CalendarConnection, error) {
	return m.listConnections(func(c *model.CalendarConnection) bool { return c.SyncEnabled }), nil
}

func (m *Memory) UpdateConnection(ctx context.Context, id string, update model.ConnectionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[id]
	if !ok {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	update.Apply(conn)
	for calendarID, token := range conn.Cursors {
		if token == "" {
			delete(conn.Cursors, calendarID)
		}
	}
	conn.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[id]; !ok {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	delete(m.connections, id)
	delete(m.tokens, id)
	for eventID, event := range m.events {
		if event.ConnectionID == id {
			delete(m.events, eventID)
		}
	}
	kept := m.logs[:0]
	for _, entry := range m.logs {
		if entry.ConnectionID != id {
			kept = append(kept, entry)
		}
	}
	m.logs = kept
	for conflictID, c := range m.conflicts {
		if c.ConnectionID == id {
			delete(m.conflicts, conflictID)
		}
	}
	return nil
}

func (m *Memory) GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok, ok := m.tokens[connectionID]
	if !ok {
		return nil, nil
	}
	out := *tok
	return &out, nil
}

func (m *Memory) UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.tokens[connectionID]
	if !ok {
		return fmt.Errorf("token of connection %s: %w", connectionID, ErrNotFound)
	}
	update.Apply(tok)
	return nil
}

func (m *Memory) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := *token
	m.tokens[token.ConnectionID] = &out
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	return copyEvent(event), nil
}

func (m *Memory) CreateEvent(ctx context.Context, event *model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[event.ID]; exists {
		return fmt.Errorf("event %s already exists", event.ID)
	}
	now := m.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	m.events[event.ID] = copyEvent(event)
	return nil
}

func (m *Memory) UpdateEvent(ctx context.Context, event *model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.events[event.ID]
	if !ok {
		return fmt.Errorf("event %s: %w", event.ID, ErrNotFound)
	}
	event.CreatedAt = stored.CreatedAt
	event.UpdatedAt = m.now().UTC()
	m.events[event.ID] = copyEvent(event)
	return nil
}

func (m *Memory) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.events, id)
	return nil
}

func (m *Memory) ListEventsByUser(ctx context.Context, userID string) ([]*model.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.CalendarEvent
	for _, event := range m.events {
		if event.OwnerID == userID {
			out = append(out, copyEvent(event))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) AppendLog(ctx context.Context, entry *model.CalendarSyncLog) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	out := *entry
	out.Errors = append([]model.SyncError{}, entry.Errors...)
	m.logs = append(m.logs, &out)
	return entry.ID, nil
}

func (m *Memory) ListLogs(ctx context.Context, connectionID string, limit int) ([]*model.CalendarSyncLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultLogLimit
	}
	var out []*model.CalendarSyncLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].ConnectionID == connectionID {
			entry := *m.logs[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}

func (m *Memory) CreateConflict(ctx context.Context, conflict *model.CalendarConflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	out := *conflict
	m.conflicts[conflict.ID] = &out
	return nil
}

func (m *Memory) GetConflict(ctx context.Context, id string) (*model.CalendarConflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conflicts[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListConflicts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.CalendarConflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.CalendarConflict
	for _, c := range m.conflicts {
		if c.UserID != userID || (unresolvedOnly && c.Resolved()) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ResolveConflict(ctx context.Context, id string, resolution model.ConflictResolution, resolvedBy string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conflicts[id]
	if !ok || c.Resolved() {
		return fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	at := resolvedAt.UTC()
	c.Resolution = resolution
	c.ResolvedAt = &at
	c.ResolvedBy = resolvedBy
	return nil
}
