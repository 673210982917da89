package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/service/token"
	"github.com/inkpress/emagazine/internal/store"
)

// AccessCookie carries the session token. CSRFCookie is cleared together
// with it on logout.
const (
	AccessCookie = "accessToken"
	CSRFCookie   = "XSRF-TOKEN"
)

const identityKey = "identity"

// Identity is the authenticated principal handed to route handlers.
type Identity struct {
	Subject string
	Role    permission.Role
	JTI     string
	Profile *models.Profile
}

// Middleware authenticates requests: extract token, verify, blacklist
// check, profile load, then an optional capability check. Every failure is
// terminal; responses never say why authentication failed.
type Middleware struct {
	Tokens   *token.Service
	Profiles store.ProfileStore
	Log      *slog.Logger
}

func NewMiddleware(tokens *token.Service, profiles store.ProfileStore, log *slog.Logger) *Middleware {
	return &Middleware{Tokens: tokens, Profiles: profiles, Log: log}
}

func errNotAuthenticated() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
}

func errForbidden() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusForbidden, "forbidden")
}

func errStoreUnavailable() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
}

// Authenticate requires a live, non-revoked token resolving to a profile.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := m.resolve(c)
		if err != nil {
			return err
		}
		c.Set(identityKey, identity)
		return next(c)
	}
}

// Require gates a route on a single capability.
func (m *Middleware) Require(cap permission.Capability) echo.MiddlewareFunc {
	return m.requireFn(func(role permission.Role) bool {
		return permission.Has(role, cap)
	})
}

// RequireAny gates a route on holding at least one of the capabilities.
func (m *Middleware) RequireAny(caps ...permission.Capability) echo.MiddlewareFunc {
	return m.requireFn(func(role permission.Role) bool {
		return permission.HasAny(role, caps...)
	})
}

func (m *Middleware) requireFn(allowed func(permission.Role) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := m.resolve(c)
			if err != nil {
				return err
			}
			if !allowed(identity.Role) {
				return errForbidden()
			}
			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// resolve runs the terminal-at-first-failure chain. Store errors on the
// auth path fail closed: the client gets a transient 503, never a token.
func (m *Middleware) resolve(c echo.Context) (*Identity, error) {
	tokenStr := extractToken(c)
	if tokenStr == "" {
		return nil, errNotAuthenticated()
	}

	claims, err := m.Tokens.Verify(tokenStr)
	if err != nil {
		return nil, errNotAuthenticated()
	}

	ctx := c.Request().Context()
	revoked, err := m.Tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		m.logger().ErrorContext(ctx, "blacklist check failed", "error", err)
		return nil, errStoreUnavailable()
	}
	if revoked {
		return nil, errNotAuthenticated()
	}

	profile, err := m.Profiles.FindProfileBySubjectID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Stale token for a deleted account.
			return nil, errNotAuthenticated()
		}
		m.logger().ErrorContext(ctx, "profile lookup failed", "error", err)
		return nil, errStoreUnavailable()
	}

	return &Identity{
		Subject: claims.Subject,
		Role:    permission.Role(claims.Role),
		JTI:     claims.ID,
		Profile: profile,
	}, nil
}

// extractToken reads the session cookie, falling back to a bearer header
// for API clients.
func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// SetIdentity places an identity on the request context the way the
// middleware does. Exposed for handler tests.
func SetIdentity(c echo.Context, identity *Identity) {
	c.Set(identityKey, identity)
}

// FromContext returns the identity placed by the middleware.
func FromContext(c echo.Context) (*Identity, bool) {
	identity, ok := c.Get(identityKey).(*Identity)
	return identity, ok
}

func (m *Middleware) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}
