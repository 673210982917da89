package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/inkpress/emagazine/internal/kv"
	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/service/token"
	"github.com/inkpress/emagazine/internal/store"
)

type fixture struct {
	mw     *Middleware
	tokens *token.Service
	db     *gorm.DB
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Profile{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := token.NewService([]byte("test-secret"), kv.NewFromClient(client))

	return &fixture{
		mw:     NewMiddleware(tokens, store.New(db), nil),
		tokens: tokens,
		db:     db,
		mr:     mr,
	}
}

func (f *fixture) addProfile(t *testing.T, subject, role string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Profile{
		UserID:      1,
		SubjectID:   subject,
		DisplayName: subject,
		Role:        role,
	}).Error)
}

func (f *fixture) issue(t *testing.T, subject, role string) string {
	t.Helper()
	signed, err := f.tokens.Issue(context.Background(), subject, role, time.Hour)
	require.NoError(t, err)
	return signed
}

func request(handler echo.HandlerFunc, mw echo.MiddlewareFunc, tokenStr string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tokenStr != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tokenStr})
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(handler)(c)
	return rec, err
}

func okHandler(c echo.Context) error {
	identity, _ := FromContext(c)
	return c.JSON(http.StatusOK, echo.Map{"subject": identity.Subject})
}

func TestAuthenticateMissingToken(t *testing.T) {
	f := newFixture(t)
	_, err := request(okHandler, f.mw.Authenticate, "")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	f := newFixture(t)
	_, err := request(okHandler, f.mw.Authenticate, "garbage")
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthenticateHappyPath(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "student")

	rec, err := request(okHandler, f.mw.Authenticate, f.issue(t, "U1", "student"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "U1")
}

func TestAuthenticateRevokedToken(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "student")
	signed := f.issue(t, "U1", "student")

	require.NoError(t, f.tokens.Revoke(context.Background(), signed))

	_, err := request(okHandler, f.mw.Authenticate, signed)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

// A structurally valid token whose account no longer exists is treated as
// invalid, not as a server error.
func TestAuthenticateDeletedAccount(t *testing.T) {
	f := newFixture(t)
	signed := f.issue(t, "GONE", "student")

	_, err := request(okHandler, f.mw.Authenticate, signed)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

// A KV outage during the blacklist check fails closed with a transient
// error, never a silent allow.
func TestAuthenticateStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "student")
	signed := f.issue(t, "U1", "student")

	f.mr.Close()

	_, err := request(okHandler, f.mw.Authenticate, signed)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusServiceUnavailable, he.Code)
}

// An editor is denied a capability only admin holds; the same request as
// admin passes.
func TestRequireCapabilityByRole(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "editor")
	f.addProfile(t, "U2", "admin")

	mw := f.mw.Require(permission.ApproveDesigns)

	_, err := request(okHandler, mw, f.issue(t, "U1", "editor"))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)

	rec, err := request(okHandler, mw, f.issue(t, "U2", "admin"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAny(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "professor")

	rec, err := request(okHandler, f.mw.RequireAny(permission.ManageUsers, permission.ReviewPost), f.issue(t, "U1", "professor"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = request(okHandler, f.mw.RequireAny(permission.ManageUsers, permission.PublishEdition), f.issue(t, "U1", "professor"))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, he.Code)
}

func TestBearerHeaderFallback(t *testing.T) {
	f := newFixture(t)
	f.addProfile(t, "U1", "student")
	signed := f.issue(t, "U1", "student")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, f.mw.Authenticate(okHandler)(c))
	require.Equal(t, http.StatusOK, rec.Code)
}
