// Package handlers exposes the engine's services over HTTP. Handlers parse
// and authenticate the request, delegate to a service, and map domain errors
// onto status codes; they hold no business logic of their own.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/cmd/engine/middleware"
	"github.com/framefold/canvas/cmd/engine/service"
	"github.com/framefold/canvas/common/bootstrap"
	"github.com/framefold/canvas/common/repository"
)

// CanvasHandler handles canvas CRUD and graph mutation requests
type CanvasHandler struct {
	components *bootstrap.Components
	canvases   *service.CanvasService
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(c *container.Container) *CanvasHandler {
	return &CanvasHandler{
		components: c.Components,
		canvases:   c.CanvasService,
	}
}

// CreateCanvas creates a new empty canvas
// POST /api/v1/canvases
func (h *CanvasHandler) CreateCanvas(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	canvas, err := h.canvases.CreateCanvas(ctx, username, req.Name)
	if err != nil {
		h.components.Logger.Error("failed to create canvas", "username", username, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create canvas",
		})
	}

	return c.JSON(http.StatusCreated, canvas)
}

// ListCanvases lists the caller's canvases, most recently updated first
// GET /api/v1/canvases?limit=50
func (h *CanvasHandler) ListCanvases(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "limit must be an integer",
			})
		}
	}

	canvases, err := h.canvases.ListCanvases(ctx, username, limit)
	if err != nil {
		h.components.Logger.Error("failed to list canvases", "username", username, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list canvases",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"canvases": canvases,
		"count":    len(canvases),
	})
}

// GetCanvas returns the full canvas document (nodes, edges, handles, results)
// GET /api/v1/canvases/:id
func (h *CanvasHandler) GetCanvas(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	canvasID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid canvas id",
		})
	}

	doc, err := h.canvases.GetGraph(ctx, canvasID, username)
	if err != nil {
		if errors.Is(err, repository.ErrCanvasNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "canvas not found",
			})
		}
		h.components.Logger.Error("failed to load canvas", "canvas_id", canvasID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to load canvas",
		})
	}

	return c.JSON(http.StatusOK, doc)
}

// PatchCanvas applies an RFC 6902 patch to the canvas graph, validates the
// result and persists it. Dirty marking happens inside the service.
// PATCH /api/v1/canvases/:id
func (h *CanvasHandler) PatchCanvas(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	canvasID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid canvas id",
		})
	}

	var req struct {
		Operations []map[string]interface{} `json:"operations"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if len(req.Operations) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "operations array is required and cannot be empty",
		})
	}

	h.components.Logger.Info("patching canvas",
		"canvas_id", canvasID,
		"username", username,
		"operations", len(req.Operations))

	doc, err := h.canvases.PatchGraph(ctx, canvasID, username, req.Operations)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCanvasNotFound):
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "canvas not found",
			})
		case errors.Is(err, service.ErrInvalidPatch), errors.Is(err, service.ErrInvalidGraph):
			// The error chain names the offending operation or invariant
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": err.Error(),
			})
		default:
			h.components.Logger.Error("failed to patch canvas", "canvas_id", canvasID, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"error": "failed to patch canvas",
			})
		}
	}

	return c.JSON(http.StatusOK, doc)
}

// DeleteCanvas deletes a canvas and its graph
// DELETE /api/v1/canvases/:id
func (h *CanvasHandler) DeleteCanvas(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	canvasID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid canvas id",
		})
	}

	if err := h.canvases.DeleteCanvas(ctx, canvasID, username); err != nil {
		if errors.Is(err, repository.ErrCanvasNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "canvas not found",
			})
		}
		h.components.Logger.Error("failed to delete canvas", "canvas_id", canvasID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to delete canvas",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":     canvasID,
		"status": "deleted",
	})
}
