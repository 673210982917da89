package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkpress/emagazine/internal/events"
	"github.com/inkpress/emagazine/internal/hash"
	mwauth "github.com/inkpress/emagazine/internal/middleware/auth"
	"github.com/inkpress/emagazine/internal/models"
	"github.com/inkpress/emagazine/internal/permission"
	"github.com/inkpress/emagazine/internal/service/token"
	"github.com/inkpress/emagazine/internal/store"
)

type AuthHandler struct {
	Store    *store.GormStore
	Tokens   *token.Service
	Producer *events.Producer
	TokenTTL time.Duration
	Log      *slog.Logger
}

func CreateCookie(name, value, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Department  string `json:"department"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
	}

	ctx := c.Request().Context()
	exists, err := h.Store.UserExists(ctx, req.Username, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}
	if exists {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	user := models.User{
		SubjectID:    uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         string(permission.RoleStudent),
	}
	profile := models.Profile{
		DisplayName: displayName,
		Department:  req.Department,
	}
	if err := h.Store.CreateUser(ctx, &user, &profile); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
	}

	h.publish(c, events.TopicUserEvents, user.SubjectID, map[string]any{
		"type":     "user_registered",
		"subject":  user.SubjectID,
		"username": user.Username,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	user, err := h.Store.FindUserByUsername(ctx, req.Username)
	if err != nil || !hash.CheckPassword(user.PasswordHash, req.Password) {
		// One message for both cases, no username probing.
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	exp := time.Now().Add(h.TokenTTL)
	signed, err := h.Tokens.Issue(ctx, user.SubjectID, user.Role, h.TokenTTL)
	if err != nil {
		h.logger().ErrorContext(ctx, "token issue failed", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}

	c.SetCookie(CreateCookie(mwauth.AccessCookie, signed, "/", exp))

	h.publish(c, events.TopicUserEvents, user.SubjectID, map[string]any{
		"type":     "user_logged_in",
		"subject":  user.SubjectID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": signed,
		"role":         user.Role,
	})
}

// LogOut always succeeds from the caller's point of view: revocation is
// best effort and cookie clearing is unconditional. A second logout with
// no token present still returns 200.
func (h *AuthHandler) LogOut(c echo.Context) error {
	if cookie, err := c.Cookie(mwauth.AccessCookie); err == nil && cookie.Value != "" {
		if err := h.Tokens.Revoke(c.Request().Context(), cookie.Value); err != nil {
			h.logger().WarnContext(c.Request().Context(), "token revocation failed", "error", err)
		}
	}

	c.SetCookie(DeleteCookie(mwauth.AccessCookie, "/"))
	c.SetCookie(DeleteCookie(mwauth.CSRFCookie, "/"))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Sessions lists the live sessions of a subject. Admin only (manage_users).
func (h *AuthHandler) Sessions(c echo.Context) error {
	subject := c.Param("subject")
	sessions, err := h.Tokens.Sessions(c.Request().Context(), subject)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

// RevokeSession force-logs-out a session by jti. Admin only (manage_users).
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	jti := c.Param("jti")
	if err := h.Tokens.RevokeJTI(c.Request().Context(), jti); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) publish(c echo.Context, topic, key string, event map[string]any) {
	ctx, cancel := contextWithPublishTimeout(c)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		h.logger().ErrorContext(ctx, "kafka publish error", "topic", topic, "error", err)
	}
}

func (h *AuthHandler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
