package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/handlers"
)

// RegisterMediaRoutes registers blob serving routes. The static /temp
// segment takes routing priority over the :bucket parameter.
func RegisterMediaRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewMediaHandler(c)

	media := e.Group("/api/v1/media")
	{
		media.GET("/temp/:key", h.GetTempMedia)  // GET /api/v1/media/temp/{temp_key}
		media.GET("/:bucket/:key", h.GetMedia)   // GET /api/v1/media/{bucket}/{key}
	}
}
