package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/handlers"
)

// RegisterSessionRoutes registers conversational session store routes
func RegisterSessionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewSessionHandler(c)

	sessions := e.Group("/api/v1/apps/:app/users/:user/sessions")
	{
		sessions.POST("", h.CreateSession)           // POST   .../sessions
		sessions.GET("", h.ListSessions)             // GET    .../sessions
		sessions.GET("/:id", h.GetSession)           // GET    .../sessions/{session_id}
		sessions.DELETE("/:id", h.DeleteSession)     // DELETE .../sessions/{session_id}
		sessions.POST("/:id/events", h.AppendEvent)  // POST   .../sessions/{session_id}/events
	}
}
