package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type connectionRow struct {
	ID                  string  `db:"id"`
	UserID              string  `db:"user_id"`
	Provider            string  `db:"provider"`
	ProviderAccountID   string  `db:"provider_account_id"`
	ProviderAccountName string  `db:"provider_account_name"`
	Calendars           string  `db:"calendars"`
	SyncEnabled         bool    `db:"sync_enabled"`
	SyncDirection       string  `db:"sync_direction"`
	Status              string  `db:"status"`
	LastSyncedAt        *int64  `db:"last_synced_at"`
	SyncError           string  `db:"sync_error"`
	Webhook             *string `db:"webhook"`
	CreatedAt           int64   `db:"created_at"`
	UpdatedAt           int64   `db:"updated_at"`
}

type cursorRow struct {
	ConnectionID string `db:"connection_id"`
	CalendarID   string `db:"calendar_id"`
	Token        string `db:"token"`
}

const connectionColumns = `id, user_id, provider, provider_account_id, provider_account_name,
	calendars, sync_enabled, sync_direction, status, last_synced_at, sync_error, webhook,
	created_at, updated_at`

func (r *connectionRow) toModel() (*model.CalendarConnection, error) {
	conn := &model.CalendarConnection{
		ID:                  r.ID,
		UserID:              r.UserID,
		Provider:            model.Provider(r.Provider),
		ProviderAccountID:   r.ProviderAccountID,
		ProviderAccountName: r.ProviderAccountName,
		SyncEnabled:         r.SyncEnabled,
		SyncDirection:       model.SyncDirection(r.SyncDirection),
		Status:              model.ConnectionStatus(r.Status),
		LastSyncedAt:        fromOptionalMillis(r.LastSyncedAt),
		SyncError:           r.SyncError,
		CreatedAt:           fromMillis(r.CreatedAt),
		UpdatedAt:           fromMillis(r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.Calendars), &conn.Calendars); err != nil {
		return nil, fmt.Errorf("failed to decode calendars of connection %s: %w", r.ID, err)
	}
	if r.Webhook != nil {
		conn.Webhook = &model.WebhookSubscription{}
		if err := json.Unmarshal([]byte(*r.Webhook), conn.Webhook); err != nil {
			return nil, fmt.Errorf("failed to decode webhook of connection %s: %w", r.ID, err)
		}
	}
	return conn, nil
}

// CreateConnection inserts a connection and its cursors. An empty ID is
// assigned a UUID.
func (s *Store) CreateConnection(ctx context.Context, conn *model.CalendarConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	calendars, err := json.Marshal(conn.Calendars)
	if err != nil {
		return fmt.Errorf("failed to encode calendars: %w", err)
	}
	if conn.Calendars == nil {
		calendars = []byte("[]")
	}
	var webhook *string
	if conn.Webhook != nil {
		data, err := json.Marshal(conn.Webhook)
		if err != nil {
			return fmt.Errorf("failed to encode webhook: %w", err)
		}
		w := string(data)
		webhook = &w
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO calendar_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		conn.ID, conn.UserID, string(conn.Provider), conn.ProviderAccountID, conn.ProviderAccountName,
		string(calendars), conn.SyncEnabled, string(conn.SyncDirection), string(conn.Status),
		optionalMillis(conn.LastSyncedAt), conn.SyncError, webhook,
		millis(conn.CreatedAt), millis(conn.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	if err := s.upsertCursors(ctx, tx, conn.ID, conn.Cursors); err != nil {
		return err
	}

	return tx.Commit()
}

// GetConnection loads a connection with its cursors.
func (s *Store) GetConnection(ctx context.Context, id string) (*model.CalendarConnection, error) {
	var row connectionRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+connectionColumns+` FROM calendar_connections WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection %s: %w", id, err)
	}

	conn, err := row.toModel()
	if err != nil {
		return nil, err
	}
	if err := s.loadCursors(ctx, []*model.CalendarConnection{conn}); err != nil {
		return nil, err
	}
	return conn, nil
}

// ListConnections returns all connections of a user, oldest first.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]*model.CalendarConnection, error) {
	return s.selectConnections(ctx, `SELECT `+connectionColumns+` FROM calendar_connections
		WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// ListSyncEnabledConnections returns every connection with sync enabled.
func (s *Store) ListSyncEnabledConnections(ctx context.Context) ([]*model.CalendarConnection, error) {
	return s.selectConnections(ctx, `SELECT `+connectionColumns+` FROM calendar_connections
		WHERE sync_enabled = ? ORDER BY created_at, id`, true)
}

func (s *Store) selectConnections(ctx context.Context, query string, args ...any) ([]*model.CalendarConnection, error) {
	var rows []connectionRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	conns := make([]*model.CalendarConnection, 0, len(rows))
	for i := range rows {
		conn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	if err := s.loadCursors(ctx, conns); err != nil {
		return nil, err
	}
	return conns, nil
}

func (s *Store) loadCursors(ctx context.Context, conns []*model.CalendarConnection) error {
	if len(conns) == 0 {
		return nil
	}
	byID := make(map[string]*model.CalendarConnection, len(conns))
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		byID[conn.ID] = conn
		ids = append(ids, conn.ID)
	}

	query, args, err := sqlx.In(`SELECT connection_id, calendar_id, token FROM calendar_sync_cursors WHERE connection_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build cursor query: %w", err)
	}
	var rows []cursorRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return fmt.Errorf("failed to load cursors: %w", err)
	}
	for _, row := range rows {
		conn := byID[row.ConnectionID]
		if conn.Cursors == nil {
			conn.Cursors = make(map[string]string)
		}
		conn.Cursors[row.CalendarID] = row.Token
	}
	return nil
}

func (s *Store) upsertCursors(ctx context.Context, tx *sqlx.Tx, connectionID string, cursors map[string]string) error {
	now := millis(s.now())
	for calendarID, token := range cursors {
		if token == "" {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM calendar_sync_cursors WHERE connection_id = ? AND calendar_id = ?`),
				connectionID, calendarID); err != nil {
				return fmt.Errorf("failed to clear cursor of calendar %s: %w", calendarID, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO calendar_sync_cursors (connection_id, calendar_id, token, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (connection_id, calendar_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`),
			connectionID, calendarID, token, now)
		if err != nil {
			return fmt.Errorf("failed to store cursor of calendar %s: %w", calendarID, err)
		}
	}
	return nil
}

// UpdateConnection applies a partial update. Cursors are merged per
// calendar; an empty cursor value removes the stored one.
func (s *Store) UpdateConnection(ctx context.Context, id string, update model.ConnectionUpdate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sets := "updated_at = ?"
	args := []any{millis(s.now())}
	if update.Status != nil {
		sets += ", status = ?"
		args = append(args, string(*update.Status))
	}
	if update.SyncError != nil {
		sets += ", sync_error = ?"
		args = append(args, *update.SyncError)
	}
	if update.LastSyncedAt != nil {
		sets += ", last_synced_at = ?"
		args = append(args, millis(*update.LastSyncedAt))
	}
	args = append(args, id)

	res, err := tx.ExecContext(ctx, s.q(`UPDATE calendar_connections SET `+sets+` WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("failed to update connection %s: %w", id, err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("connection %s: %w", id, err)
	}

	if err := s.upsertCursors(ctx, tx, id, update.Cursors); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteConnection removes a connection together with its cursors, token,
// events, sync logs and conflicts.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"calendar_sync_cursors",
		"oauth_tokens",
		"calendar_events",
		"calendar_sync_logs",
		"calendar_conflicts",
	} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE connection_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM calendar_connections WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", id, err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("connection %s: %w", id, err)
	}

	return tx.Commit()
}
