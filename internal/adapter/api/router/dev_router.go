package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != "development" {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()
	if devTokenHandler == nil {
		return
	}

	e.GET("/_dev/token/:id", devTokenHandler.GenerateUserToken)
}
