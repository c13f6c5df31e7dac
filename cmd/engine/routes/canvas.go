// Package routes binds handlers to paths. Username extraction runs globally
// (see main.go) so every group below can assume the auth context is set.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/handlers"
)

// RegisterCanvasRoutes registers canvas CRUD and graph mutation routes
func RegisterCanvasRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewCanvasHandler(c)

	canvases := e.Group("/api/v1/canvases")
	{
		canvases.POST("", h.CreateCanvas)        // POST /api/v1/canvases
		canvases.GET("", h.ListCanvases)         // GET /api/v1/canvases?limit=50
		canvases.GET("/:id", h.GetCanvas)        // GET /api/v1/canvases/{canvas_id}
		canvases.PATCH("/:id", h.PatchCanvas)    // PATCH /api/v1/canvases/{canvas_id}
		canvases.DELETE("/:id", h.DeleteCanvas)  // DELETE /api/v1/canvases/{canvas_id}
	}
}
