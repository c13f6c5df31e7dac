package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/handlers"
)

// RegisterRunRoutes registers run trigger and batch status routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c)

	canvases := e.Group("/api/v1/canvases")
	{
		canvases.POST("/:id/process", h.ProcessCanvas) // POST /api/v1/canvases/{canvas_id}/process
	}

	batches := e.Group("/api/v1/batches")
	{
		batches.GET("/:id", h.GetBatch) // GET /api/v1/batches/{batch_id}
	}
}
