package store

import (
	"context"
	"fmt"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type logRow struct {
	ID               string `db:"id"`
	UserID           string `db:"user_id"`
	ConnectionID     string `db:"connection_id"`
	Provider         string `db:"provider"`
	StartedAt        int64  `db:"started_at"`
	Status           string `db:"status"`
	EventsImported   int    `db:"events_imported"`
	EventsUpdated    int    `db:"events_updated"`
	EventsDeleted    int    `db:"events_deleted"`
	EventsExported   int    `db:"events_exported"`
	EventsConflicted int    `db:"events_conflicted"`
	Errors           string `db:"errors"`
	DurationMs       int64  `db:"duration_ms"`
}

// DefaultLogLimit caps ListLogs when no limit is given.
const DefaultLogLimit = 50

// AppendLog writes one sync log entry and returns its id. Logs are never
// updated after being written.
func (s *Store) AppendLog(ctx context.Context, entry *model.CalendarSyncLog) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	errs := entry.Errors
	if errs == nil {
		errs = []model.SyncError{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("failed to encode sync errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO calendar_sync_logs
		(id, user_id, connection_id, provider, started_at, status, events_imported, events_updated,
		 events_deleted, events_exported, events_conflicted, errors, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.UserID, entry.ConnectionID, string(entry.Provider), millis(entry.Timestamp),
		string(entry.Status), entry.EventsImported, entry.EventsUpdated, entry.EventsDeleted,
		entry.EventsExported, entry.EventsConflicted, string(data), entry.DurationMs)
	if err != nil {
		return "", fmt.Errorf("failed to append sync log: %w", err)
	}
	return entry.ID, nil
}

// ListLogs returns the most recent logs of a connection, newest first.
func (s *Store) ListLogs(ctx context.Context, connectionID string, limit int) ([]*model.CalendarSyncLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	var rows []logRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT id, user_id, connection_id, provider, started_at, status,
		events_imported, events_updated, events_deleted, events_exported, events_conflicted, errors, duration_ms
		FROM calendar_sync_logs WHERE connection_id = ? ORDER BY started_at DESC, id LIMIT ?`), connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs of connection %s: %w", connectionID, err)
	}

	logs := make([]*model.CalendarSyncLog, 0, len(rows))
	for _, row := range rows {
		entry := &model.CalendarSyncLog{
			ID:               row.ID,
			UserID:           row.UserID,
			ConnectionID:     row.ConnectionID,
			Provider:         model.Provider(row.Provider),
			Timestamp:        fromMillis(row.StartedAt),
			Status:           model.SyncLogStatus(row.Status),
			EventsImported:   row.EventsImported,
			EventsUpdated:    row.EventsUpdated,
			EventsDeleted:    row.EventsDeleted,
			EventsExported:   row.EventsExported,
			EventsConflicted: row.EventsConflicted,
			DurationMs:       row.DurationMs,
		}
		if err := json.Unmarshal([]byte(row.Errors), &entry.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of sync log %s: %w", row.ID, err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
