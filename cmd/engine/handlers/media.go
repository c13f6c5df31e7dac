package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/cmd/engine/container"
	"github.com/framefold/canvas/common/bootstrap"
	"github.com/framefold/canvas/common/storage"
)

// MediaHandler serves blobs out of storage: exported entities from their
// bucket, transient pipeline objects from the temp space while their TTL
// lasts. The canvas UI fetches node previews through these routes.
type MediaHandler struct {
	components *bootstrap.Components
	store      storage.Store
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(c *container.Container) *MediaHandler {
	return &MediaHandler{
		components: c.Components,
		store:      c.BlobStore,
	}
}

// GetMedia serves a persisted object
// GET /api/v1/media/:bucket/:key
func (h *MediaHandler) GetMedia(c echo.Context) error {
	ctx := c.Request().Context()
	bucket := c.Param("bucket")
	key := c.Param("key")

	if bucket == "" || key == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "bucket and key are required",
		})
	}

	info, err := h.store.Info(ctx, bucket, key)
	if err != nil {
		return h.blobError(c, err, "failed to load media")
	}
	data, err := h.store.Get(ctx, bucket, key)
	if err != nil {
		return h.blobError(c, err, "failed to load media")
	}

	return c.Blob(http.StatusOK, contentTypeOr(info, "application/octet-stream"), data)
}

// GetTempMedia serves a transient pipeline object. A 404 here usually means
// the TTL lapsed and the node needs a re-run.
// GET /api/v1/media/temp/:key
func (h *MediaHandler) GetTempMedia(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	if key == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "key is required",
		})
	}

	info, err := h.store.TempInfo(ctx, key)
	if err != nil {
		return h.blobError(c, err, "failed to load temp media")
	}
	data, err := h.store.GetTemp(ctx, key)
	if err != nil {
		return h.blobError(c, err, "failed to load temp media")
	}

	return c.Blob(http.StatusOK, contentTypeOr(info, "application/octet-stream"), data)
}

func (h *MediaHandler) blobError(c echo.Context, err error, msg string) error {
	if errors.Is(err, storage.ErrBlobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "media not found",
		})
	}
	h.components.Logger.Error(msg, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": msg,
	})
}

func contentTypeOr(info *storage.BlobInfo, fallback string) string {
	if info != nil && info.ContentType != "" {
		return info.ContentType
	}
	return fallback
}
