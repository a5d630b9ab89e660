package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/handler"
)

// SetupWebSocketRouter mounts the socket endpoint. Authentication happens
// inside the handler since browsers pass the token as a query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, guards ...echo.MiddlewareFunc) {
	e.GET("/ws", wsHandler.HandleWebSocket, guards...)
}
