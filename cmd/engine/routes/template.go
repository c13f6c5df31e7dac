package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/handlers"
)

// RegisterTemplateRoutes registers the node-template catalog route
func RegisterTemplateRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTemplateHandler(c)

	templates := e.Group("/api/v1/templates")
	{
		templates.GET("", h.ListTemplates) // GET /api/v1/templates
	}
}
