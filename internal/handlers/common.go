package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const publishTimeout = 5 * time.Second

func contextWithPublishTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), publishTimeout)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
