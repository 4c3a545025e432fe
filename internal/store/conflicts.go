package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type conflictRow struct {
	ID             string `db:"id"`
	EventID        string `db:"event_id"`
	UserID         string `db:"user_id"`
	ConnectionID   string `db:"connection_id"`
	LocalVersion   string `db:"local_version"`
	RemoteVersion  string `db:"remote_version"`
	ConflictFields string `db:"conflict_fields"`
	DetectedAt     int64  `db:"detected_at"`
	Resolution     string `db:"resolution"`
	ResolvedAt     *int64 `db:"resolved_at"`
	ResolvedBy     string `db:"resolved_by"`
}

const conflictColumns = `id, event_id, user_id, connection_id, local_version, remote_version,
	conflict_fields, detected_at, resolution, resolved_at, resolved_by`

func (r *conflictRow) toModel() (*model.CalendarConflict, error) {
	c := &model.CalendarConflict{
		ID:           r.ID,
		EventID:      r.EventID,
		UserID:       r.UserID,
		ConnectionID: r.ConnectionID,
		DetectedAt:   fromMillis(r.DetectedAt),
		Resolution:   model.ConflictResolution(r.Resolution),
		ResolvedAt:   fromOptionalMillis(r.ResolvedAt),
		ResolvedBy:   r.ResolvedBy,
	}
	if err := json.Unmarshal([]byte(r.LocalVersion), &c.LocalVersion); err != nil {
		return nil, fmt.Errorf("failed to decode local version of conflict %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.RemoteVersion), &c.RemoteVersion); err != nil {
		return nil, fmt.Errorf("failed to decode remote version of conflict %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ConflictFields), &c.ConflictFields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of conflict %s: %w", r.ID, err)
	}
	return c, nil
}

// CreateConflict inserts a conflict record. An empty ID is assigned a UUID.
func (s *Store) CreateConflict(ctx context.Context, conflict *model.CalendarConflict) error {
	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	local, err := json.Marshal(conflict.LocalVersion)
	if err != nil {
		return fmt.Errorf("failed to encode local version: %w", err)
	}
	remote, err := json.Marshal(conflict.RemoteVersion)
	if err != nil {
		return fmt.Errorf("failed to encode remote version: %w", err)
	}
	fields, err := json.Marshal(conflict.ConflictFields)
	if err != nil {
		return fmt.Errorf("failed to encode conflict fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO calendar_conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		conflict.ID, conflict.EventID, conflict.UserID, conflict.ConnectionID,
		string(local), string(remote), string(fields), millis(conflict.DetectedAt),
		string(conflict.Resolution), optionalMillis(conflict.ResolvedAt), conflict.ResolvedBy)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

// GetConflict returns nil, nil when the conflict does not exist.
func (s *Store) GetConflict(ctx context.Context, id string) (*model.CalendarConflict, error) {
	var row conflictRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+conflictColumns+` FROM calendar_conflicts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict %s: %w", id, err)
	}
	return row.toModel()
}

// ListConflicts returns a user's conflicts, oldest first.
func (s *Store) ListConflicts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.CalendarConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM calendar_conflicts WHERE user_id = ?`
	args := []any{userID}
	if unresolvedOnly {
		query += ` AND resolution = ?`
		args = append(args, string(model.ResolutionUnset))
	}
	query += ` ORDER BY detected_at, id`

	var rows []conflictRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list conflicts of user %s: %w", userID, err)
	}

	conflicts := make([]*model.CalendarConflict, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

// ResolveConflict records a resolution. Only unresolved conflicts are
// updated; a missing or already resolved conflict yields ErrNotFound.
func (s *Store) ResolveConflict(ctx context.Context, id string, resolution model.ConflictResolution, resolvedBy string, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE calendar_conflicts SET resolution = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND resolution = ?`),
		string(resolution), millis(resolvedAt), resolvedBy, id, string(model.ResolutionUnset))
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", id, err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("conflict %s: %w", id, err)
	}
	return nil
}
