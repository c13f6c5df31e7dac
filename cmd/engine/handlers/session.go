package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/common/bootstrap"
	"github.com/framefold/canvas/common/session"
)

// SessionHandler exposes the conversational session store. App name and user
// come from the path, matching the agent-framework convention the store's
// keying follows; these routes are not tied to the X-User-ID canvas identity.
type SessionHandler struct {
	components *bootstrap.Components
	sessions   *session.Store
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(c *container.Container) *SessionHandler {
	return &SessionHandler{
		components: c.Components,
		sessions:   c.SessionStore,
	}
}

// CreateSession creates a session, generating the ID when none is given
// POST /api/v1/apps/:app/users/:user/sessions
func (h *SessionHandler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()
	appName := c.Param("app")
	userID := c.Param("user")

	var req struct {
		SessionID string                 `json:"sessionId"`
		State     map[string]interface{} `json:"state"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	sess, err := h.sessions.Create(ctx, appName, userID, req.SessionID, req.State)
	if err != nil {
		if errors.Is(err, session.ErrSessionAlreadyExists) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error": "session already exists",
			})
		}
		h.components.Logger.Error("failed to create session",
			"app_name", appName, "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create session",
		})
	}

	return c.JSON(http.StatusCreated, sess)
}

// GetSession returns a session, optionally filtering its events
// GET /api/v1/apps/:app/users/:user/sessions/:id?afterTimestamp=&numRecentEvents=
func (h *SessionHandler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	appName := c.Param("app")
	userID := c.Param("user")
	sessionID := c.Param("id")

	var opts session.GetOptions
	if raw := c.QueryParam("afterTimestamp"); raw != "" {
		ts, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "afterTimestamp must be a number",
			})
		}
		opts.AfterTimestamp = ts
	}
	if raw := c.QueryParam("numRecentEvents"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "numRecentEvents must be an integer",
			})
		}
		opts.NumRecentEvents = n
	}

	sess, err := h.sessions.Get(ctx, appName, userID, sessionID, opts)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "session not found",
			})
		}
		h.components.Logger.Error("failed to get session",
			"session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to get session",
		})
	}

	return c.JSON(http.StatusOK, sess)
}

// ListSessions lists session summaries for (app, user), newest first
// GET /api/v1/apps/:app/users/:user/sessions
func (h *SessionHandler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	appName := c.Param("app")
	userID := c.Param("user")

	summaries, err := h.sessions.List(ctx, appName, userID)
	if err != nil {
		h.components.Logger.Error("failed to list sessions",
			"app_name", appName, "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list sessions",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

// DeleteSession deletes a session; deleting a missing one succeeds
// DELETE /api/v1/apps/:app/users/:user/sessions/:id
func (h *SessionHandler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	appName := c.Param("app")
	userID := c.Param("user")
	sessionID := c.Param("id")

	if err := h.sessions.Delete(ctx, appName, userID, sessionID); err != nil {
		h.components.Logger.Error("failed to delete session",
			"session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to delete session",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":     sessionID,
		"status": "deleted",
	})
}

// AppendEvent appends an event to a session and folds its stateDelta
// POST /api/v1/apps/:app/users/:user/sessions/:id/events
func (h *SessionHandler) AppendEvent(c echo.Context) error {
	ctx := c.Request().Context()
	appName := c.Param("app")
	userID := c.Param("user")
	sessionID := c.Param("id")

	var event session.Event
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid event body",
		})
	}
	if event.Author == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "event author is required",
		})
	}

	// The append script needs the session identity, not its contents, so a
	// filtered Get keeps the round-trip payload small.
	sess, err := h.sessions.Get(ctx, appName, userID, sessionID, session.GetOptions{NumRecentEvents: 1})
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "session not found",
			})
		}
		h.components.Logger.Error("failed to load session for append",
			"session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to append event",
		})
	}

	appended, err := h.sessions.AppendEvent(ctx, sess, event)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "session not found",
			})
		}
		h.components.Logger.Error("failed to append event",
			"session_id", sessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to append event",
		})
	}

	return c.JSON(http.StatusCreated, appended)
}
