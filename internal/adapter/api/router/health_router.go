package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/handler"
)

func SetupHealthRouter(e *echo.Echo) {
	healthHandler := handler.GetHealthHandler()
	if healthHandler == nil {
		return
	}
	e.GET("/health", healthHandler.CheckHealth)
	e.GET("/v1/health", healthHandler.CheckHealth)
	e.GET("/auth-health", healthHandler.CheckAuthHealth)
}
