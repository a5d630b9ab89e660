package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency the health endpoint can probe.
type Pinger interface {
	TestConnection(ctx context.Context) error
}

// ConnectionCounter reports live socket connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	auth    Pinger
	sockets ConnectionCounter
}

var healthHandler *HealthHandler

func NewHealthHandler(auth Pinger, sockets ConnectionCounter) *HealthHandler {
	return &HealthHandler{
		auth:    auth,
		sockets: sockets,
	}
}

func SetupHealthHandler(auth Pinger, sockets ConnectionCounter) {
	healthHandler = NewHealthHandler(auth, sockets)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.sockets != nil {
		body["connections"] = h.sockets.ConnectionCount()
	}
	return c.JSON(http.StatusOK, body)
}

func (h *HealthHandler) CheckAuthHealth(c echo.Context) error {
	if h.auth == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "Auth provider does not need a remote check",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.auth.TestConnection(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Auth provider connection failed",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Auth provider connected successfully",
	})
}
