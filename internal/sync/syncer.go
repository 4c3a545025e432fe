// Package sync imports provider calendar changes into the canonical event
// store, one connection at a time, and records a sync log per run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/conflict"
	"github.com/beekhof/lab-calendar-sync/internal/lock"
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"golang.org/x/sync/errgroup"
)

var (
	ErrConnectionNotFound       = errors.New("calendar connection not found")
	ErrEventFetchFailed         = errors.New("event fetch failed")
	ErrEventNormalizationFailed = errors.New("event normalization failed")
	ErrEventPersistFailed       = errors.New("event persist failed")
	ErrSyncInProgress           = errors.New("a sync of this connection is already running")
	ErrUnsupportedProvider      = errors.New("unsupported calendar provider")
)

// Defaults for the first-sync window and the connection lease.
const (
	DefaultMonthsPast  = 6
	DefaultMonthsAhead = 12
	DefaultLeaseTTL    = 10 * time.Minute
)

// ConnectionStore reads and updates calendar connections.
type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (*model.CalendarConnection, error)
	ListConnections(ctx context.Context, userID string) ([]*model.CalendarConnection, error)
	UpdateConnection(ctx context.Context, id string, update model.ConnectionUpdate) error
}

// EventStore holds canonical events. GetEvent returns nil, nil when absent.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error)
	CreateEvent(ctx context.Context, event *model.CalendarEvent) error
	UpdateEvent(ctx context.Context, event *model.CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
}

// LogStore appends sync logs.
type LogStore interface {
	AppendLog(ctx context.Context, entry *model.CalendarSyncLog) (string, error)
}

// Store is everything the syncer persists to.
type Store interface {
	ConnectionStore
	EventStore
	LogStore
}

// TokenProvider returns a usable access token for a connection.
type TokenProvider interface {
	AccessToken(ctx context.Context, provider model.Provider, connectionID string) (string, error)
}

// ConflictRegistrar records concurrent edits found during a sync.
type ConflictRegistrar interface {
	Register(ctx context.Context, event *model.CalendarEvent, d *conflict.Detection) (*model.CalendarConflict, error)
}

// Options tune a Syncer. The zero value is sequential, unlocked and uses
// the default window.
type Options struct {
	Verbose bool

	// MonthsPast and MonthsAhead bound the first-sync window.
	MonthsPast  int
	MonthsAhead int

	// Concurrency > 1 syncs that many calendars of a connection at once.
	Concurrency int

	// Locker serialises runs of the same connection when set.
	Locker   lock.Locker
	LeaseTTL time.Duration

	// Conflicts is consulted for bidirectional connections when set.
	Conflicts ConflictRegistrar
}

// Syncer runs connection syncs. It holds no per-run state, so one Syncer
// may serve many concurrent runs.
type Syncer struct {
	store   Store
	tokens  TokenProvider
	sources map[model.Provider]Source
	opts    Options
	now     func() time.Time
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store Store, tokens TokenProvider, sources map[model.Provider]Source, opts Options) *Syncer {
	if opts.MonthsPast <= 0 {
		opts.MonthsPast = DefaultMonthsPast
	}
	if opts.MonthsAhead <= 0 {
		opts.MonthsAhead = DefaultMonthsAhead
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	return &Syncer{
		store:   store,
		tokens:  tokens,
		sources: sources,
		opts:    opts,
		now:     time.Now,
	}
}

func (s *Syncer) debugf(format string, args ...any) {
	if s.opts.Verbose {
		log.Printf("DEBUG: "+format, args...)
	}
}

// calendarResult is the outcome of syncing one calendar.
type calendarResult struct {
	imported, updated, deleted, conflicted int
	errors                                 []model.SyncError
}

// SyncConnection imports the changes of every selected calendar of a
// connection and appends exactly one sync log, which it returns. Failures
// are reported in the log; the error is non-nil only when the log itself
// could not be written.
func (s *Syncer) SyncConnection(ctx context.Context, userID, connectionID string) (*model.CalendarSyncLog, error) {
	start := s.now()
	entry := &model.CalendarSyncLog{
		UserID:       userID,
		ConnectionID: connectionID,
		Timestamp:    start.UTC(),
		Errors:       []model.SyncError{},
	}
	prefix := fmt.Sprintf("[%s]", connectionID)

	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return s.fail(ctx, entry, start, nil, fmt.Errorf("failed to load connection: %w", err))
	}
	if conn == nil || conn.UserID != userID {
		return s.fail(ctx, entry, start, nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID))
	}
	entry.Provider = conn.Provider

	if s.opts.Locker != nil {
		release, err := s.opts.Locker.Acquire(ctx, lock.ConnectionKey(conn.ID), s.opts.LeaseTTL)
		if errors.Is(err, lock.ErrLocked) {
			log.Printf("%s sync skipped: another run holds the lease", prefix)
			return s.fail(ctx, entry, start, nil, ErrSyncInProgress)
		}
		if err != nil {
			return s.fail(ctx, entry, start, nil, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("Warning: %s failed to release lease: %v", prefix, err)
			}
		}()
	}

	source, ok := s.sources[conn.Provider]
	if !ok {
		return s.fail(ctx, entry, start, conn, fmt.Errorf("%w: %q", ErrUnsupportedProvider, conn.Provider))
	}

	accessToken, err := s.tokens.AccessToken(ctx, conn.Provider, conn.ID)
	if err != nil {
		return s.fail(ctx, entry, start, conn, err)
	}

	calendars := conn.SelectedCalendars()
	window := calclient.NewWindow(start, s.opts.MonthsPast, s.opts.MonthsAhead)
	log.Printf("%s syncing %d calendar(s) of %s account %s", prefix, len(calendars), conn.Provider, conn.ProviderAccountName)

	results := make([]calendarResult, len(calendars))
	if s.opts.Concurrency > 1 && len(calendars) > 1 {
		// Calendars write disjoint event ids and cursor keys.
		var g errgroup.Group
		g.SetLimit(s.opts.Concurrency)
		for i, cal := range calendars {
			g.Go(func() error {
				results[i] = s.syncCalendar(ctx, conn, source, accessToken, cal, window)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, cal := range calendars {
			results[i] = s.syncCalendar(ctx, conn, source, accessToken, cal, window)
		}
	}

	for _, res := range results {
		entry.EventsImported += res.imported
		entry.EventsUpdated += res.updated
		entry.EventsDeleted += res.deleted
		entry.EventsConflicted += res.conflicted
		entry.Errors = append(entry.Errors, res.errors...)
	}

	entry.Status = model.SyncLogSuccess
	syncError := ""
	if len(entry.Errors) > 0 {
		entry.Status = model.SyncLogPartial
		syncError = fmt.Sprintf("%d error(s) during last sync", len(entry.Errors))
	}

	finished := s.now().UTC()
	status := model.ConnectionActive
	if err := s.store.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{
		Status:       &status,
		SyncError:    &syncError,
		LastSyncedAt: &finished,
	}); err != nil {
		log.Printf("Warning: %s failed to update connection status: %v", prefix, err)
	}

	return s.finish(ctx, entry, start)
}

// fail turns a run-level failure into a failed log with a single entry.
// When the connection is known its status is set to error.
func (s *Syncer) fail(ctx context.Context, entry *model.CalendarSyncLog, start time.Time, conn *model.CalendarConnection, cause error) (*model.CalendarSyncLog, error) {
	log.Printf("[%s] sync failed: %v", entry.ConnectionID, cause)

	entry.Status = model.SyncLogFailed
	entry.Errors = []model.SyncError{{Error: cause.Error(), Action: model.ActionSync}}

	if conn != nil {
		status := model.ConnectionError
		msg := cause.Error()
		if err := s.store.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{Status: &status, SyncError: &msg}); err != nil {
			log.Printf("Warning: [%s] failed to update connection status: %v", conn.ID, err)
		}
	}

	return s.finish(ctx, entry, start)
}

func (s *Syncer) finish(ctx context.Context, entry *model.CalendarSyncLog, start time.Time) (*model.CalendarSyncLog, error) {
	entry.DurationMs = s.now().Sub(start).Milliseconds()

	if _, err := s.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		return entry, fmt.Errorf("failed to append sync log: %w", err)
	}

	log.Printf("[%s] sync %s: imported=%d updated=%d deleted=%d conflicted=%d errors=%d (%dms)",
		entry.ConnectionID, entry.Status, entry.EventsImported, entry.EventsUpdated,
		entry.EventsDeleted, entry.EventsConflicted, len(entry.Errors), entry.DurationMs)
	return entry, nil
}

// syncCalendar fetches and applies the changes of one calendar. Its errors
// never escape: they are returned as log entries.
func (s *Syncer) syncCalendar(ctx context.Context, conn *model.CalendarConnection, source Source, accessToken string, cal model.ConnectedCalendar, window calclient.Window) calendarResult {
	var res calendarResult
	prefix := fmt.Sprintf("[%s/%s]", conn.ID, cal.Name)

	cursor := conn.Cursor(cal.ID)
	if cursor == "" {
		s.debugf("%s first sync, window %s to %s", prefix, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
	}

	changes, err := source.Changes(ctx, conn, accessToken, cal, cursor, window)
	if errors.Is(err, calclient.ErrCursorExpired) && cursor != "" {
		log.Printf("%s continuation token expired, restarting with the bounded window", prefix)
		if err := s.store.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{Cursors: map[string]string{cal.ID: ""}}); err != nil {
			log.Printf("Warning: %s failed to clear continuation token: %v", prefix, err)
		}
		changes, err = source.Changes(ctx, conn, accessToken, cal, "", window)
	}
	if err != nil {
		res.errors = append(res.errors, model.SyncError{
			EventTitle: cal.Name,
			Error:      fmt.Errorf("%w: calendar %s: %v", ErrEventFetchFailed, cal.Name, err).Error(),
			Action:     model.ActionFetch,
		})
		log.Printf("Warning: %s failed to fetch events: %v", prefix, err)
		return res
	}

	s.debugf("%s received %d change(s)", prefix, len(changes.Changes))
	for _, change := range changes.Changes {
		if ctx.Err() != nil {
			// Keep the old cursor so the remaining changes are fetched again.
			res.errors = append(res.errors, model.SyncError{EventTitle: cal.Name, Error: ctx.Err().Error(), Action: model.ActionSync})
			return res
		}
		s.applyChange(ctx, conn, change, &res)
	}

	if changes.Cursor == "" {
		s.debugf("%s provider returned no continuation token, keeping the stored one", prefix)
		return res
	}
	syncedAt := s.now().UTC()
	update := model.ConnectionUpdate{Cursors: map[string]string{cal.ID: changes.Cursor}, LastSyncedAt: &syncedAt}
	if err := s.store.UpdateConnection(ctx, conn.ID, update); err != nil {
		res.errors = append(res.errors, model.SyncError{
			EventTitle: cal.Name,
			Error:      fmt.Errorf("%w: failed to store continuation token: %v", ErrEventPersistFailed, err).Error(),
			Action:     model.ActionSync,
		})
	}
	return res
}

// applyChange reconciles one provider change with the event store.
func (s *Syncer) applyChange(ctx context.Context, conn *model.CalendarConnection, change Change, res *calendarResult) {
	eventID := model.EventID(conn.Provider, conn.ID, change.ProviderEventID)
	record := func(action model.SyncAction, err error) {
		log.Printf("Warning: [%s] failed to %s event %s (%s): %v", conn.ID, action, change.ProviderEventID, change.Title, err)
		res.errors = append(res.errors, model.SyncError{
			EventID:    change.ProviderEventID,
			EventTitle: change.Title,
			Error:      err.Error(),
			Action:     action,
		})
	}

	existing, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		action := model.ActionImport
		if change.Deleted {
			action = model.ActionDelete
		}
		record(action, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
		return
	}

	if change.Deleted {
		if existing == nil {
			s.debugf("[%s] removal of unknown event %s ignored", conn.ID, change.ProviderEventID)
			return
		}
		if err := s.store.DeleteEvent(ctx, eventID); err != nil {
			record(model.ActionDelete, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
			return
		}
		res.deleted++
		s.debugf("[%s] deleted event %s (%s)", conn.ID, eventID, change.Title)
		return
	}

	action := model.ActionImport
	if existing != nil {
		action = model.ActionUpdate
	}
	if change.Err != nil || change.Event == nil {
		cause := change.Err
		if cause == nil {
			cause = errors.New("no event produced")
		}
		record(action, fmt.Errorf("%w: %v", ErrEventNormalizationFailed, cause))
		return
	}

	event := change.Event
	syncedAt := s.now().UTC()
	event.LastSyncedAt = &syncedAt

	if existing == nil {
		if err := s.store.CreateEvent(ctx, event); err != nil {
			record(action, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
			return
		}
		res.imported++
		s.debugf("[%s] imported event %s (%s)", conn.ID, eventID, event.Title)
		return
	}

	if s.opts.Conflicts != nil && conn.SyncDirection == model.SyncDirectionBidirectional {
		if existing.SyncStatus == model.SyncStatusConflict {
			s.debugf("[%s] event %s has an open conflict, left untouched", conn.ID, eventID)
			return
		}
		if d := conflict.Detect(existing, event); d != nil {
			if _, err := s.opts.Conflicts.Register(ctx, existing, d); err != nil {
				record(action, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
				return
			}
			existing.SyncStatus = model.SyncStatusConflict
			if err := s.store.UpdateEvent(ctx, existing); err != nil {
				record(action, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
				return
			}
			res.conflicted++
			log.Printf("[%s] conflict registered for event %s on fields %v", conn.ID, eventID, d.Fields)
			return
		}
	}

	event.CreatedAt = existing.CreatedAt
	event.LocalUpdatedAt = existing.LocalUpdatedAt
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		record(action, fmt.Errorf("%w: %v", ErrEventPersistFailed, err))
		return
	}
	res.updated++
	s.debugf("[%s] updated event %s (%s)", conn.ID, eventID, event.Title)
}

// SyncUser runs SyncConnection for every sync-enabled connection of a
// user, sequentially. The error is non-nil when the connections could not
// be listed or a log could not be written.
func (s *Syncer) SyncUser(ctx context.Context, userID string) ([]*model.CalendarSyncLog, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections of user %s: %w", userID, err)
	}

	var logs []*model.CalendarSyncLog
	var errs []error
	for _, conn := range conns {
		if !conn.SyncEnabled {
			s.debugf("[%s] sync disabled, skipping", conn.ID)
			continue
		}
		entry, err := s.SyncConnection(ctx, userID, conn.ID)
		if entry != nil {
			logs = append(logs, entry)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return logs, errors.Join(errs...)
}
