package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/common/templates"
)

// TemplateHandler serves the static node-template catalog so the canvas UI
// can render its node palette without hardcoding handle shapes.
type TemplateHandler struct {
	catalog *templates.Catalog
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(c *container.Container) *TemplateHandler {
	return &TemplateHandler{catalog: c.Catalog}
}

// ListTemplates lists every node template
// GET /api/v1/templates
func (h *TemplateHandler) ListTemplates(c echo.Context) error {
	all := h.catalog.All()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"templates": all,
		"count":     len(all),
	})
}
