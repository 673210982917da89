package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/events"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/service/search"
	"github.com/inkpress/emagazine/internal/store"
	"github.com/inkpress/emagazine/internal/util"
)

var postTypes = map[string]struct{}{
	models.TypeArticle: {},
	models.TypePoem:    {},
	models.TypeArt:     {},
	models.TypeNews:    {},
}

type PostHandler struct {
	Store    *store.GormStore
	Producer *events.Producer
	ES       *elasticsearch.Client
	ESIndex  string
	Log      *slog.Logger
}

func (h *PostHandler) CreatePost(c echo.Context) error {
	identity, ok := mwauth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	var req struct {
		Type  string `json:"type"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, ok := postTypes[req.Type]; !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown post type")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	post := models.Post{
		AuthorID: identity.Profile.ID,
		Type:     req.Type,
		Title:    req.Title,
		Body:     req.Body,
		Status:   models.StatusDraft,
	}
	if err := h.Store.CreatePost(c.Request().Context(), &post); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create post")
	}

	h.publish(c, post.ID, "post_created")

	return c.JSON(http.StatusCreated, post)
}

func (h *PostHandler) UpdatePost(c echo.Context) error {
	_, post, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	if post.Status == models.StatusPublished {
		return echo.NewHTTPError(http.StatusConflict, "published posts cannot be edited")
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title != "" {
		post.Title = req.Title
	}
	post.Body = req.Body

	if err := h.Store.SavePost(c.Request().Context(), post); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not update post")
	}
	return c.JSON(http.StatusOK, post)
}

// SubmitPost moves a draft into the editors' queue.
func (h *PostHandler) SubmitPost(c echo.Context) error {
	_, post, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	if post.Status != models.StatusDraft && post.Status != models.StatusRejected {
		return echo.NewHTTPError(http.StatusConflict, "post is not submittable")
	}
	post.Status = models.StatusSubmitted
	if err := h.Store.SavePost(c.Request().Context(), post); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not submit post")
	}
	h.publish(c, post.ID, "post_submitted")
	return c.JSON(http.StatusOK, post)
}

// ApprovePost and RejectPost are editor decisions on submitted posts.
func (h *PostHandler) ApprovePost(c echo.Context) error {
	return h.review(c, models.StatusApproved, "post_approved")
}

func (h *PostHandler) RejectPost(c echo.Context) error {
	return h.review(c, models.StatusRejected, "post_rejected")
}

func (h *PostHandler) review(c echo.Context, status, eventType string) error {
	identity, ok := mwauth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}
	if post.Status != models.StatusSubmitted {
		return echo.NewHTTPError(http.StatusConflict, "post is not awaiting review")
	}
	post.Status = status
	post.ReviewedBy = identity.Profile.DisplayName
	if err := h.Store.SavePost(c.Request().Context(), post); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not update post")
	}
	h.publish(c, post.ID, eventType)
	return c.JSON(http.StatusOK, post)
}

// PublishPost makes an approved post public and indexes it for search.
func (h *PostHandler) PublishPost(c echo.Context) error {
	identity, ok := mwauth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}
	if post.Status != models.StatusApproved {
		return echo.NewHTTPError(http.StatusConflict, "only approved posts can be published")
	}

	now := time.Now().UTC()
	post.Status = models.StatusPublished
	post.PublishedBy = identity.Profile.DisplayName
	post.PublishedAt = &now
	if err := h.Store.SavePost(c.Request().Context(), post); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not publish post")
	}

	if h.ES != nil {
		if err := search.Index(c.Request().Context(), h.ES, h.ESIndex, post); err != nil {
			h.logger().ErrorContext(c.Request().Context(), "search index failed", "post", post.ID, "error", err)
		}
	}
	h.publish(c, post.ID, "post_published")

	return c.JSON(http.StatusOK, post)
}

func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}
	if post.Status == models.StatusPublished {
		return c.JSON(http.StatusOK, post)
	}
	identity, ok := mwauth.FromContext(c)
	if ok && (identity.Profile.ID == post.AuthorID || permission.Has(identity.Role, permission.ReviewPost)) {
		return c.JSON(http.StatusOK, post)
	}
	return echo.NewHTTPError(http.StatusNotFound, "post not found")
}

// ListPosts pages published posts for public readers.
func (h *PostHandler) ListPosts(c echo.Context) error {
	return h.list(c, models.StatusPublished)
}

// ListSubmissions pages the review queue. Editor only.
func (h *PostHandler) ListSubmissions(c echo.Context) error {
	return h.list(c, models.StatusSubmitted)
}

func (h *PostHandler) list(c echo.Context, status string) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, posts, err := h.Store.ListPosts(c.Request().Context(), status, offset, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not list posts")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": posts,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *PostHandler) loadPost(c echo.Context) (*models.Post, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid post id")
	}
	post, err := h.Store.FindPost(c.Request().Context(), uint(id))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	return post, nil
}

func (h *PostHandler) loadOwned(c echo.Context) (*mwauth.Identity, *models.Post, error) {
	identity, ok := mwauth.FromContext(c)
	if !ok {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	post, err := h.loadPost(c)
	if err != nil {
		return nil, nil, err
	}
	if post.AuthorID != identity.Profile.ID {
		return nil, nil, echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
	return identity, post, nil
}

func (h *PostHandler) publish(c echo.Context, postID uint, eventType string) {
	ctx, cancel := contextWithPublishTimeout(c)
	defer cancel()
	event := map[string]any{"type": eventType, "post_id": postID}
	if err := h.Producer.PublishEvent(ctx, events.TopicPostEvents, strconv.FormatUint(uint64(postID), 10), event); err != nil {
		h.logger().ErrorContext(ctx, "kafka publish error", "type", eventType, "error", err)
	}
}

func (h *PostHandler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
