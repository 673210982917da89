package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/inkpress/emagazine/internal/events"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/store"
)

func newPostHandler(t *testing.T) (*PostHandler, *gorm.DB) {
	db := initTestDB(t)
	return &PostHandler{
		Store:    store.New(db),
		Producer: events.NewProducer(nil),
	}, db
}

func identityFor(t *testing.T, db *gorm.DB, subject string, role permission.Role) *mwauth.Identity {
	t.Helper()
	profile := &models.Profile{
		SubjectID:   subject,
		DisplayName: subject,
		Role:        string(role),
	}
	require.NoError(t, db.Create(profile).Error)
	return &mwauth.Identity{Subject: subject, Role: role, Profile: profile}
}

func postContext(e *echo.Echo, method string, payload any, identity *mwauth.Identity, postID uint) (echo.Context, *httptest.ResponseRecorder) {
	req, rec := jsonRequest(method, "/", payload)
	c := e.NewContext(req, rec)
	if identity != nil {
		mwauth.SetIdentity(c, identity)
	}
	if postID != 0 {
		c.SetParamNames("id")
		c.SetParamValues(strconv.FormatUint(uint64(postID), 10))
	}
	return c, rec
}

func TestCreatePost(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	e := echo.New()

	c, rec := postContext(e, http.MethodPost, map[string]string{
		"type":  models.TypePoem,
		"title": "October",
		"body":  "Leaves.",
	}, author, 0)

	require.NoError(t, h.CreatePost(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var post models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	require.Equal(t, models.StatusDraft, post.Status)
	require.Equal(t, author.Profile.ID, post.AuthorID)
}

func TestCreatePostRejectsUnknownType(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	e := echo.New()

	c, _ := postContext(e, http.MethodPost, map[string]string{
		"type":  "screenplay",
		"title": "Nope",
	}, author, 0)

	err := h.CreatePost(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestSubmitRequiresOwnership(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	other := identityFor(t, db, "A2", permission.RoleStudent)
	e := echo.New()

	post := &models.Post{AuthorID: author.Profile.ID, Type: models.TypeArticle, Title: "Draft", Status: models.StatusDraft}
	require.NoError(t, db.Create(post).Error)

	c, _ := postContext(e, http.MethodPost, nil, other, post.ID)
	err := h.SubmitPost(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}

// Full lifecycle: draft -> submitted -> approved -> published, with
// reviewer and publisher attribution recorded along the way.
func TestPostWorkflow(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	editor := identityFor(t, db, "E1", permission.RoleEditor)
	e := echo.New()

	post := &models.Post{AuthorID: author.Profile.ID, Type: models.TypeArticle, Title: "Piece", Status: models.StatusDraft}
	require.NoError(t, db.Create(post).Error)

	c, rec := postContext(e, http.MethodPost, nil, author, post.ID)
	require.NoError(t, h.SubmitPost(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = postContext(e, http.MethodPost, nil, editor, post.ID)
	require.NoError(t, h.ApprovePost(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = postContext(e, http.MethodPost, nil, editor, post.ID)
	require.NoError(t, h.PublishPost(c))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.Store.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, stored.Status)
	require.Equal(t, "E1", stored.ReviewedBy)
	require.Equal(t, "E1", stored.PublishedBy)
	require.NotNil(t, stored.PublishedAt)
}

func TestApproveRequiresSubmittedStatus(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	editor := identityFor(t, db, "E1", permission.RoleEditor)
	e := echo.New()

	post := &models.Post{AuthorID: author.Profile.ID, Type: models.TypeArt, Title: "Sketch", Status: models.StatusDraft}
	require.NoError(t, db.Create(post).Error)

	c, _ := postContext(e, http.MethodPost, nil, editor, post.ID)
	err := h.ApprovePost(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRejectedPostCanBeResubmitted(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	editor := identityFor(t, db, "E1", permission.RoleEditor)
	e := echo.New()

	post := &models.Post{AuthorID: author.Profile.ID, Type: models.TypePoem, Title: "Verse", Status: models.StatusSubmitted}
	require.NoError(t, db.Create(post).Error)

	c, _ := postContext(e, http.MethodPost, nil, editor, post.ID)
	require.NoError(t, h.RejectPost(c))

	c, _ = postContext(e, http.MethodPost, nil, author, post.ID)
	require.NoError(t, h.SubmitPost(c))

	stored, err := h.Store.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, stored.Status)
}

func TestGetPostHidesUnpublished(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	e := echo.New()

	post := &models.Post{AuthorID: author.Profile.ID, Type: models.TypeNews, Title: "Scoop", Status: models.StatusDraft}
	require.NoError(t, db.Create(post).Error)

	// Anonymous reader: not found.
	c, _ := postContext(e, http.MethodGet, nil, nil, post.ID)
	err := h.GetPost(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)

	// The author still sees their own draft.
	c, rec := postContext(e, http.MethodGet, nil, author, post.ID)
	require.NoError(t, h.GetPost(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListPostsPagination(t *testing.T) {
	h, db := newPostHandler(t)
	author := identityFor(t, db, "A1", permission.RoleStudent)
	e := echo.New()

	for i := 0; i < 12; i++ {
		require.NoError(t, db.Create(&models.Post{
			AuthorID: author.Profile.ID,
			Type:     models.TypeArticle,
			Title:    "Post " + strconv.Itoa(i),
			Status:   models.StatusPublished,
		}).Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/?page=2&size=5", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListPosts(e.NewContext(req, rec)))

	var resp struct {
		Data []models.Post  `json:"data"`
		Meta map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 5)
	require.EqualValues(t, 12, resp.Meta["total"])
	require.Equal(t, true, resp.Meta["has_next"])
}
