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
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/repository"
)

// RunHandler handles run triggers and batch status requests
type RunHandler struct {
	components *bootstrap.Components
	runs       *service.RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{
		components: c.Components,
		runs:       c.RunService,
	}
}

// ProcessCanvas runs a canvas. With nodeIds the run covers only those targets
// and their upstream dependencies; without, the whole canvas. The response is
// the finished batch with its per-node task rows.
// POST /api/v1/canvases/:id/process
func (h *RunHandler) ProcessCanvas(c echo.Context) error {
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
		NodeIDs []string `json:"nodeIds"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	targets := make([]uuid.UUID, 0, len(req.NodeIDs))
	for _, raw := range req.NodeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "invalid node id: " + raw,
			})
		}
		targets = append(targets, id)
	}

	h.components.Logger.Info("run requested",
		"canvas_id", canvasID,
		"username", username,
		"targets", len(targets))

	user := models.User{
		ID:     username,
		APIKey: middleware.GetAPIKey(c),
	}

	result, err := h.runs.Process(ctx, canvasID, user, targets)
	if err != nil {
		var rateErr *service.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			c.Response().Header().Set("Retry-After", strconv.FormatInt(rateErr.RetryAfterSeconds, 10))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "run_rate_limit_exceeded",
				"message": rateErr.Error(),
				"details": map[string]interface{}{
					"tier":                rateErr.Tier,
					"limit":               rateErr.Limit,
					"current_count":       rateErr.CurrentCount,
					"retry_after_seconds": rateErr.RetryAfterSeconds,
				},
			})
		case errors.Is(err, repository.ErrCanvasNotFound):
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "canvas not found",
			})
		default:
			h.components.Logger.Error("run failed", "canvas_id", canvasID, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"error": "run failed",
			})
		}
	}

	return c.JSON(http.StatusOK, result)
}

// GetBatch returns a batch and its task rows
// GET /api/v1/batches/:id
func (h *RunHandler) GetBatch(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid batch id",
		})
	}

	result, err := h.runs.GetBatch(ctx, batchID, username)
	if err != nil {
		if errors.Is(err, repository.ErrBatchNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "batch not found",
			})
		}
		h.components.Logger.Error("failed to load batch", "batch_id", batchID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to load batch",
		})
	}

	return c.JSON(http.StatusOK, result)
}
