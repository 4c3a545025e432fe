// Package store persists calendar connections, tokens, canonical events,
// sync logs and conflicts. The SQL store runs on PostgreSQL or SQLite; the
// in-memory store serves tests and dry runs.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrNotFound is returned by updates and deletes of missing records.
var ErrNotFound = errors.New("record not found")

// Repository is the full persistence surface. Get methods return nil, nil
// when the record does not exist.
type Repository interface {
	CreateConnection(ctx context.Context, conn *model.CalendarConnection) error
	GetConnection(ctx context.Context, id string) (*model.CalendarConnection, error)
	ListConnections(ctx context.Context, userID string) ([]*model.CalendarConnection, error)
	ListSyncEnabledConnections(ctx context.Context) ([]*model.CalendarConnection, error)
	UpdateConnection(ctx context.Context, id string, update model.ConnectionUpdate) error
	DeleteConnection(ctx context.Context, id string) error

	GetToken(ctx context.Context, connectionID string) (*model.OAuthToken, error)
	UpdateToken(ctx context.Context, connectionID string, update model.TokenUpdate) error
	SaveToken(ctx context.Context, token *model.OAuthToken) error

	GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error)
	CreateEvent(ctx context.Context, event *model.CalendarEvent) error
	UpdateEvent(ctx context.Context, event *model.CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByUser(ctx context.Context, userID string) ([]*model.CalendarEvent, error)

	AppendLog(ctx context.Context, entry *model.CalendarSyncLog) (string, error)
	ListLogs(ctx context.Context, connectionID string, limit int) ([]*model.CalendarSyncLog, error)

	CreateConflict(ctx context.Context, conflict *model.CalendarConflict) error
	GetConflict(ctx context.Context, id string) (*model.CalendarConflict, error)
	ListConflicts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.CalendarConflict, error)
	ResolveConflict(ctx context.Context, id string, resolution model.ConflictResolution, resolvedBy string, resolvedAt time.Time) error

	Close() error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*Memory)(nil)
)

// Store is the SQL implementation of Repository.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and applies the embedded schema.
// The schema is idempotent, so Open is safe to call on every start.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func optionalMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromOptionalMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func affectedOne(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
