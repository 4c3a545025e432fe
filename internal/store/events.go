package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
)

// Events are stored as a JSON payload next to the columns used for lookup.
type eventRow struct {
	ID        string `db:"id"`
	Payload   string `db:"payload"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *eventRow) toModel() (*model.CalendarEvent, error) {
	var event model.CalendarEvent
	if err := json.Unmarshal([]byte(r.Payload), &event); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", r.ID, err)
	}
	event.CreatedAt = fromMillis(r.CreatedAt)
	event.UpdatedAt = fromMillis(r.UpdatedAt)
	return &event, nil
}

// GetEvent returns nil, nil when the event does not exist.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT id, payload, created_at, updated_at FROM calendar_events WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	return row.toModel()
}

// CreateEvent inserts a canonical event.
func (s *Store) CreateEvent(ctx context.Context, event *model.CalendarEvent) error {
	now := s.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO calendar_events
		(id, owner_id, connection_id, calendar_id, calendar_source, start_at, end_at, sync_status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event.ID, event.OwnerID, event.ConnectionID, event.CalendarID, string(event.CalendarSource),
		millis(event.Start), millis(event.End), string(event.SyncStatus), string(payload),
		millis(event.CreatedAt), millis(event.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}
	return nil
}

// UpdateEvent replaces a stored event. CreatedAt is kept from the stored
// row.
func (s *Store) UpdateEvent(ctx context.Context, event *model.CalendarEvent) error {
	event.UpdatedAt = s.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE calendar_events SET
		owner_id = ?, connection_id = ?, calendar_id = ?, calendar_source = ?,
		start_at = ?, end_at = ?, sync_status = ?, payload = ?, updated_at = ?
		WHERE id = ?`),
		event.OwnerID, event.ConnectionID, event.CalendarID, string(event.CalendarSource),
		millis(event.Start), millis(event.End), string(event.SyncStatus), string(payload),
		millis(event.UpdatedAt), event.ID)
	if err != nil {
		return fmt.Errorf("failed to update event %s: %w", event.ID, err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("event %s: %w", event.ID, err)
	}
	return nil
}

// DeleteEvent removes an event. Deleting a missing event is not an error.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM calendar_events WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	return nil
}

// ListEventsByUser returns a user's canonical events ordered by start.
func (s *Store) ListEventsByUser(ctx context.Context, userID string) ([]*model.CalendarEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT id, payload, created_at, updated_at FROM calendar_events
		WHERE owner_id = ? ORDER BY start_at, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of user %s: %w", userID, err)
	}

	events := make([]*model.CalendarEvent, 0, len(rows))
	for i := range rows {
		event, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
