// Package httpapi exposes connection syncs, sync logs, conflicts and an
// iCalendar feed to authenticated lab members.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/beekhof/lab-calendar-sync/internal/conflict"
	"github.com/beekhof/lab-calendar-sync/internal/ics"
	"github.com/beekhof/lab-calendar-sync/internal/model"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Syncer runs one connection sync and returns its log.
type Syncer interface {
	SyncConnection(ctx context.Context, userID, connectionID string) (*model.CalendarSyncLog, error)
}

// Store is the read side the handlers need.
type Store interface {
	GetConnection(ctx context.Context, id string) (*model.CalendarConnection, error)
	ListConnections(ctx context.Context, userID string) ([]*model.CalendarConnection, error)
	ListLogs(ctx context.Context, connectionID string, limit int) ([]*model.CalendarSyncLog, error)
	ListConflicts(ctx context.Context, userID string, unresolvedOnly bool) ([]*model.CalendarConflict, error)
	ListEventsByUser(ctx context.Context, userID string) ([]*model.CalendarEvent, error)
}

// ConflictResolver loads and resolves conflicts.
type ConflictResolver interface {
	Get(ctx context.Context, id string) (*model.CalendarConflict, error)
	Resolve(ctx context.Context, id, resolution, resolvedBy string) (*model.CalendarConflict, error)
}

// Server is the HTTP surface.
type Server struct {
	echo      *echo.Echo
	syncer    Syncer
	store     Store
	conflicts ConflictResolver
	now       func() time.Time
}

// NewServer wires the routes under /api/v1/private/calendar.
func NewServer(syncer Syncer, store Store, conflicts ConflictResolver, jwtSecret []byte) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		syncer:    syncer,
		store:     store,
		conflicts: conflicts,
		now:       time.Now,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	routes := e.Group("/api/v1/private/calendar")
	routes.Use(AuthMiddleware(jwtSecret))

	routes.GET("/connections", s.listConnections)
	routes.POST("/connections/:id/sync", s.syncConnection)
	routes.GET("/connections/:id/logs", s.listLogs)
	routes.GET("/conflicts", s.listConflicts)
	routes.POST("/conflicts/:id/resolve", s.resolveConflict)
	routes.GET("/feed.ics", s.feed)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	log.Printf("HTTP API listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// GET /api/v1/private/calendar/connections
func (s *Server) listConnections(c echo.Context) error {
	conns, err := s.store.ListConnections(c.Request().Context(), userID(c))
	if err != nil {
		log.Printf("Warning: failed to list connections: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to get connections")
	}
	if conns == nil {
		conns = []*model.CalendarConnection{}
	}
	return c.JSON(http.StatusOK, map[string]any{"connections": conns})
}

// POST /api/v1/private/calendar/connections/:id/sync
//
// Every run produces a log, including failed ones, so the log is the
// response body. Only a log that could not be stored is a server error.
func (s *Server) syncConnection(c echo.Context) error {
	entry, err := s.syncer.SyncConnection(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		log.Printf("Warning: sync of connection %s: %v", c.Param("id"), err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to record sync")
	}
	return c.JSON(http.StatusOK, entry)
}

// ownConnection loads a connection and hides connections of other users.
func (s *Server) ownConnection(c echo.Context) (*model.CalendarConnection, error) {
	conn, err := s.store.GetConnection(c.Request().Context(), c.Param("id"))
	if err != nil {
		log.Printf("Warning: failed to load connection %s: %v", c.Param("id"), err)
		return nil, errorJSON(c, http.StatusInternalServerError, "Failed to get connection")
	}
	if conn == nil || conn.UserID != userID(c) {
		return nil, errorJSON(c, http.StatusNotFound, "Connection not found")
	}
	return conn, nil
}

// GET /api/v1/private/calendar/connections/:id/logs?limit=N
func (s *Server) listLogs(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errorJSON(c, http.StatusBadRequest, "Invalid limit")
		}
		limit = n
	}

	conn, err := s.ownConnection(c)
	if conn == nil {
		return err
	}

	logs, err := s.store.ListLogs(c.Request().Context(), conn.ID, limit)
	if err != nil {
		log.Printf("Warning: failed to list logs of connection %s: %v", conn.ID, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to get sync logs")
	}
	if logs == nil {
		logs = []*model.CalendarSyncLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}

// GET /api/v1/private/calendar/conflicts?all=true
func (s *Server) listConflicts(c echo.Context) error {
	all, _ := strconv.ParseBool(c.QueryParam("all"))
	conflicts, err := s.store.ListConflicts(c.Request().Context(), userID(c), !all)
	if err != nil {
		log.Printf("Warning: failed to list conflicts: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to get conflicts")
	}
	if conflicts == nil {
		conflicts = []*model.CalendarConflict{}
	}
	return c.JSON(http.StatusOK, map[string]any{"conflicts": conflicts})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

// POST /api/v1/private/calendar/conflicts/:id/resolve
func (s *Server) resolveConflict(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if _, err := model.ParseConflictResolution(req.Resolution); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	existing, err := s.conflicts.Get(ctx, id)
	if errors.Is(err, conflict.ErrNotFound) || (err == nil && existing.UserID != userID(c)) {
		return errorJSON(c, http.StatusNotFound, "Conflict not found")
	}
	if err != nil {
		log.Printf("Warning: failed to load conflict %s: %v", id, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to get conflict")
	}

	resolved, err := s.conflicts.Resolve(ctx, id, req.Resolution, userID(c))
	switch {
	case errors.Is(err, conflict.ErrAlreadyResolved):
		return errorJSON(c, http.StatusConflict, "Conflict already resolved")
	case errors.Is(err, conflict.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "Conflict not found")
	case err != nil:
		log.Printf("Warning: failed to resolve conflict %s: %v", id, err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to resolve conflict")
	}
	return c.JSON(http.StatusOK, resolved)
}

// GET /api/v1/private/calendar/feed.ics
func (s *Server) feed(c echo.Context) error {
	events, err := s.store.ListEventsByUser(c.Request().Context(), userID(c))
	if err != nil {
		log.Printf("Warning: failed to list events: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to get events")
	}

	data, err := ics.Marshal(events, s.now())
	if err != nil {
		log.Printf("Warning: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "Failed to render feed")
	}
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", data)
}
