package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/events"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/storage/s3"
	"github.com/inkpress/emagazine/internal/store"
)

const downloadURLTTL = 15 * time.Minute

type EditionHandler struct {
	Store    *store.GormStore
	Objects  *s3.Store
	Producer *events.Producer
	Log      *slog.Logger
}

func (h *EditionHandler) CreateEdition(c echo.Context) error {
	var req struct {
		Title  string `json:"title"`
		Volume int    `json:"volume"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" || req.Volume <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "title and a positive volume are required")
	}

	edition := models.Edition{Title: req.Title, Volume: req.Volume}
	if err := h.Store.CreateEdition(c.Request().Context(), &edition); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create edition")
	}
	return c.JSON(http.StatusCreated, edition)
}

// UploadPDF stores the edition's PDF in the object store and records the
// object key on the edition.
func (h *EditionHandler) UploadPDF(c echo.Context) error {
	if h.Objects == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "object storage is not configured")
	}
	edition, err := h.loadEdition(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("pdf")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "pdf file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read upload")
	}
	defer src.Close()

	key := fmt.Sprintf("editions/%d.pdf", edition.ID)
	if err := h.Objects.Upload(c.Request().Context(), key, "application/pdf", src); err != nil {
		h.logger().ErrorContext(c.Request().Context(), "edition upload failed", "edition", edition.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "upload failed")
	}

	edition.PDFKey = key
	if err := h.Store.SaveEdition(c.Request().Context(), edition); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not save edition")
	}
	return c.JSON(http.StatusOK, edition)
}

// PublishEdition makes the edition visible to the public.
func (h *EditionHandler) PublishEdition(c echo.Context) error {
	identity, ok := mwauth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	edition, err := h.loadEdition(c)
	if err != nil {
		return err
	}
	if edition.PDFKey == "" {
		return echo.NewHTTPError(http.StatusConflict, "edition has no PDF yet")
	}
	if edition.Published {
		return echo.NewHTTPError(http.StatusConflict, "edition is already published")
	}

	now := time.Now().UTC()
	edition.Published = true
	edition.PublishedBy = identity.Profile.DisplayName
	edition.PublishedAt = &now
	if err := h.Store.SaveEdition(c.Request().Context(), edition); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not publish edition")
	}

	ctx, cancel := contextWithPublishTimeout(c)
	defer cancel()
	event := map[string]any{"type": "edition_published", "edition_id": edition.ID, "volume": edition.Volume}
	if err := h.Producer.PublishEvent(ctx, events.TopicEditionEvents, strconv.FormatUint(uint64(edition.ID), 10), event); err != nil {
		h.logger().ErrorContext(ctx, "kafka publish error", "type", "edition_published", "error", err)
	}

	return c.JSON(http.StatusOK, edition)
}

func (h *EditionHandler) ListEditions(c echo.Context) error {
	publishedOnly := true
	if identity, ok := mwauth.FromContext(c); ok && permission.Has(identity.Role, permission.PublishEdition) {
		publishedOnly = false
	}
	editions, err := h.Store.ListEditions(c.Request().Context(), publishedOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not list editions")
	}
	return c.JSON(http.StatusOK, echo.Map{"editions": editions})
}

// DownloadEdition hands the reader a short-lived URL for the PDF.
func (h *EditionHandler) DownloadEdition(c echo.Context) error {
	edition, err := h.loadEdition(c)
	if err != nil {
		return err
	}
	if !edition.Published || edition.PDFKey == "" {
		return echo.NewHTTPError(http.StatusNotFound, "edition not found")
	}
	if h.Objects == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "object storage is not configured")
	}
	url, err := h.Objects.PresignedGet(edition.PDFKey, downloadURLTTL)
	if err != nil {
		h.logger().ErrorContext(c.Request().Context(), "presign failed", "edition", edition.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "download unavailable")
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

func (h *EditionHandler) loadEdition(c echo.Context) (*models.Edition, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid edition id")
	}
	edition, err := h.Store.FindEdition(c.Request().Context(), uint(id))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "edition not found")
	}
	return edition, nil
}

func (h *EditionHandler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
