// Package jobs schedules connection syncs on an asynq queue. The scheduler
// only enqueues; workers run independent syncs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeSyncConnection = "calendar:sync_connection"
	TypeSyncAll        = "calendar:sync_all"
)

// QueueName is the queue every calendar task goes to.
const QueueName = "calendar"

// UniqueTTL bounds how long a pending sync of one connection blocks
// another enqueue of the same connection.
const UniqueTTL = 10 * time.Minute

// SyncConnectionPayload identifies the connection to sync.
type SyncConnectionPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// NewSyncConnectionTask builds a non-retried task unique per connection.
// A failed sync is already recorded in its log; the next schedule tick
// retries it.
func NewSyncConnectionTask(userID, connectionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncConnectionPayload{UserID: userID, ConnectionID: connectionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}
	return asynq.NewTask(TypeSyncConnection, payload,
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Unique(UniqueTTL),
	), nil
}

// NewSyncAllTask builds the periodic fan-out task.
func NewSyncAllTask() *asynq.Task {
	return asynq.NewTask(TypeSyncAll, nil, asynq.Queue(QueueName), asynq.MaxRetry(0))
}

// Syncer runs one connection sync.
type Syncer interface {
	SyncConnection(ctx context.Context, userID, connectionID string) (*model.CalendarSyncLog, error)
}

// ConnectionLister lists the connections the periodic task fans out to.
type ConnectionLister interface {
	ListSyncEnabledConnections(ctx context.Context) ([]*model.CalendarConnection, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueSyncConnection enqueues one connection sync. It reports false
// when an identical task is already pending.
func EnqueueSyncConnection(ctx context.Context, enqueuer Enqueuer, userID, connectionID string) (bool, error) {
	task, err := NewSyncConnectionTask(userID, connectionID)
	if err != nil {
		return false, err
	}
	if _, err := enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue sync of connection %s: %w", connectionID, err)
	}
	return true, nil
}

// Handlers process calendar tasks.
type Handlers struct {
	syncer      Syncer
	connections ConnectionLister
	enqueuer    Enqueuer
	verbose     bool
}

// NewHandlers creates task handlers.
func NewHandlers(syncer Syncer, connections ConnectionLister, enqueuer Enqueuer, verbose bool) *Handlers {
	return &Handlers{
		syncer:      syncer,
		connections: connections,
		enqueuer:    enqueuer,
		verbose:     verbose,
	}
}

// Register installs the handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSyncConnection, h.HandleSyncConnection)
	mux.HandleFunc(TypeSyncAll, h.HandleSyncAll)
}

// HandleSyncConnection runs the sync named by the payload. Sync failures
// live in the sync log, so only a log write failure fails the task.
func (h *Handlers) HandleSyncConnection(ctx context.Context, task *asynq.Task) error {
	var payload SyncConnectionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", TypeSyncConnection, err, asynq.SkipRetry)
	}
	if payload.UserID == "" || payload.ConnectionID == "" {
		return fmt.Errorf("invalid %s payload: user and connection ids are required: %w", TypeSyncConnection, asynq.SkipRetry)
	}

	entry, err := h.syncer.SyncConnection(ctx, payload.UserID, payload.ConnectionID)
	if err != nil {
		return err
	}
	if h.verbose {
		log.Printf("DEBUG: [%s] task finished with status %s", payload.ConnectionID, entry.Status)
	}
	return nil
}

// HandleSyncAll enqueues one sync task per sync-enabled connection.
// Connections that already have a pending task are skipped.
func (h *Handlers) HandleSyncAll(ctx context.Context, task *asynq.Task) error {
	conns, err := h.connections.ListSyncEnabledConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sync-enabled connections: %w", err)
	}

	enqueued, skipped := 0, 0
	var errs []error
	for _, conn := range conns {
		ok, err := EnqueueSyncConnection(ctx, h.enqueuer, conn.UserID, conn.ID)
		if err != nil {
			log.Printf("Warning: %v", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			enqueued++
		} else {
			skipped++
		}
	}

	log.Printf("Scheduled %d connection sync(s), %d already pending", enqueued, skipped)
	return errors.Join(errs...)
}

// RegisterSchedule adds the periodic sync_all task to scheduler.
func RegisterSchedule(scheduler *asynq.Scheduler, cronspec string) (string, error) {
	id, err := scheduler.Register(cronspec, NewSyncAllTask())
	if err != nil {
		return "", fmt.Errorf("failed to register schedule %q: %w", cronspec, err)
	}
	return id, nil
}

// NewServer creates an asynq worker server for the calendar queue.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("Warning: task %s failed: %v", task.Type(), err)
		}),
	})
}
