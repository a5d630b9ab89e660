package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/middleware"
)

// Setup mounts the authenticated REST API under /v1. Handlers must be
// initialised with handler.Setup first.
func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, activeMiddleware *middleware.ActiveUserMiddleware) {
	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate)
	if activeMiddleware != nil {
		v1.Use(activeMiddleware.RequireActive)
	}

	SetupChatRouter(v1)
	SetupGroupRouter(v1)
	SetupHealthRouter(e)
}
