// Package conflict detects concurrent local and remote edits of a canonical
// event and records them for manual resolution. It never merges.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"
)

var (
	ErrNotFound        = errors.New("conflict not found")
	ErrAlreadyResolved = errors.New("conflict already resolved")
)

// Detection is the outcome of comparing a stored event with an incoming
// provider version. The versions hold only the differing fields.
type Detection struct {
	Fields        []string
	LocalVersion  map[string]any
	RemoteVersion map[string]any
}

type field struct {
	name  string
	value func(e *model.CalendarEvent) any
}

// Compared fields, in the order they are reported.
var fields = []field{
	{"title", func(e *model.CalendarEvent) any { return e.Title }},
	{"description", func(e *model.CalendarEvent) any { return e.Description }},
	{"location", func(e *model.CalendarEvent) any { return e.Location }},
	{"start", func(e *model.CalendarEvent) any { return e.Start.UTC().Format(time.RFC3339) }},
	{"end", func(e *model.CalendarEvent) any { return e.End.UTC().Format(time.RFC3339) }},
	{"visibility", func(e *model.CalendarEvent) any { return string(e.Visibility) }},
	{"attendees", func(e *model.CalendarEvent) any { return attendeeKey(e.Attendees) }},
}

func attendeeKey(attendees []model.Attendee) string {
	key := ""
	for _, a := range attendees {
		key += a.Email + "=" + string(a.Response) + ";"
	}
	return key
}

func attendeeSnapshot(attendees []model.Attendee) []any {
	out := make([]any, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, map[string]any{"email": a.Email, "response": string(a.Response)})
	}
	return out
}

// Detect reports a conflict when both the local edit and the provider edit
// happened after the stored event was last synced and at least one field
// differs. It returns nil when there is nothing to register.
func Detect(stored, incoming *model.CalendarEvent) *Detection {
	if stored == nil || incoming == nil || stored.LastSyncedAt == nil {
		return nil
	}
	if stored.LocalUpdatedAt == nil || incoming.RemoteUpdatedAt == nil {
		return nil
	}
	synced := *stored.LastSyncedAt
	if !stored.LocalUpdatedAt.After(synced) || !incoming.RemoteUpdatedAt.After(synced) {
		return nil
	}

	d := &Detection{
		LocalVersion:  map[string]any{},
		RemoteVersion: map[string]any{},
	}
	for _, f := range fields {
		local, remote := f.value(stored), f.value(incoming)
		if local == remote {
			continue
		}
		d.Fields = append(d.Fields, f.name)
		if f.name == "attendees" {
			d.LocalVersion[f.name] = attendeeSnapshot(stored.Attendees)
			d.RemoteVersion[f.name] = attendeeSnapshot(incoming.Attendees)
			continue
		}
		d.LocalVersion[f.name] = local
		d.RemoteVersion[f.name] = remote
	}
	if len(d.Fields) == 0 {
		return nil
	}
	d.LocalVersion["updatedAt"] = stored.LocalUpdatedAt.UTC().Format(time.RFC3339)
	d.RemoteVersion["updatedAt"] = incoming.RemoteUpdatedAt.UTC().Format(time.RFC3339)
	return d
}

// Store is the persistence the registrar needs.
type Store interface {
	CreateConflict(ctx context.Context, conflict *model.CalendarConflict) error
	GetConflict(ctx context.Context, id string) (*model.CalendarConflict, error)
	ResolveConflict(ctx context.Context, id string, resolution model.ConflictResolution, resolvedBy string, resolvedAt time.Time) error
	GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, event *model.CalendarEvent) error
}

// Registrar records and resolves conflicts.
type Registrar struct {
	store Store
	now   func() time.Time
}

// NewRegistrar creates a registrar over store.
func NewRegistrar(store Store) *Registrar {
	return &Registrar{store: store, now: time.Now}
}

// Register stores an unresolved conflict for event.
func (r *Registrar) Register(ctx context.Context, event *model.CalendarEvent, d *Detection) (*model.CalendarConflict, error) {
	c := &model.CalendarConflict{
		EventID:        event.ID,
		UserID:         event.OwnerID,
		ConnectionID:   event.ConnectionID,
		LocalVersion:   d.LocalVersion,
		RemoteVersion:  d.RemoteVersion,
		ConflictFields: d.Fields,
		DetectedAt:     r.now().UTC(),
	}
	if err := r.store.CreateConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to register conflict for event %s: %w", event.ID, err)
	}
	return c, nil
}

// Get loads a conflict, failing with ErrNotFound when it does not exist.
func (r *Registrar) Get(ctx context.Context, id string) (*model.CalendarConflict, error) {
	c, err := r.store.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Resolve records how a conflict was settled and releases the event so
// later syncs update it again. A conflict is resolved at most once. A
// remote resolution applies the provider version to the event; every other
// resolution keeps the local one.
func (r *Registrar) Resolve(ctx context.Context, id, resolution, resolvedBy string) (*model.CalendarConflict, error) {
	res, err := model.ParseConflictResolution(resolution)
	if err != nil {
		return nil, err
	}

	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Resolved() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	}

	at := r.now().UTC()
	if err := r.store.ResolveConflict(ctx, id, res, resolvedBy, at); err != nil {
		return nil, fmt.Errorf("failed to resolve conflict %s: %w", id, err)
	}

	c.Resolution = res
	c.ResolvedAt = &at
	c.ResolvedBy = resolvedBy

	if err := r.release(ctx, c, at); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Registrar) release(ctx context.Context, c *model.CalendarConflict, at time.Time) error {
	event, err := r.store.GetEvent(ctx, c.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event %s: %w", c.EventID, err)
	}
	if event == nil {
		return nil
	}

	if c.Resolution == model.ResolutionRemote {
		if err := applyVersion(event, c.RemoteVersion); err != nil {
			return fmt.Errorf("failed to apply remote version to event %s: %w", event.ID, err)
		}
		event.LocalUpdatedAt = nil
	}
	event.SyncStatus = model.SyncStatusSynced
	event.LastSyncedAt = &at

	if err := r.store.UpdateEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to release event %s: %w", event.ID, err)
	}
	return nil
}

// applyVersion copies the fields of a recorded version onto event.
func applyVersion(event *model.CalendarEvent, version map[string]any) error {
	for name, value := range version {
		switch name {
		case "title":
			event.Title, _ = value.(string)
		case "description":
			event.Description, _ = value.(string)
		case "location":
			event.Location, _ = value.(string)
		case "visibility":
			v, _ := value.(string)
			event.Visibility = model.Visibility(v)
		case "start", "end":
			v, _ := value.(string)
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
			if name == "start" {
				event.Start = t
			} else {
				event.End = t
			}
		case "attendees":
			event.Attendees = restoreAttendees(event.Attendees, value)
		}
	}
	return nil
}

// restoreAttendees rebuilds an attendee list from a snapshot, keeping the
// names and roles of attendees already known by email.
func restoreAttendees(known []model.Attendee, snapshot any) []model.Attendee {
	items, _ := snapshot.([]any)
	byEmail := make(map[string]model.Attendee, len(known))
	for _, a := range known {
		byEmail[a.Email] = a
	}
	out := make([]model.Attendee, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		email, _ := m["email"].(string)
		response, _ := m["response"].(string)
		a, ok := byEmail[email]
		if !ok {
			a = model.Attendee{Email: email, Role: model.RoleRequired}
		}
		a.Response = model.AttendeeResponse(response)
		out = append(out, a)
	}
	return out
}
