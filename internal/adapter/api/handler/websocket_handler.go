package handler

import (
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/middleware"
	"coursehub/internal/domain/repository"
	ws "coursehub/internal/infrastructure/websocket"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
	"coursehub/pkg/response"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
	userRepo       repository.UserRepository
	upgrader       gorillaws.Upgrader
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware, userRepo repository.UserRepository, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
		userRepo:       userRepo,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleWebSocket authenticates before upgrading. Browsers cannot set
// headers on a socket handshake, so the token may come as ?token=.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.Request().Header.Get("Authorization"))
	}

	identity, err := h.authMiddleware.Verify(c, token)
	if err != nil {
		return response.Error(c, err)
	}

	if h.userRepo != nil {
		user, err := h.userRepo.GetByID(c.Request().Context(), identity.UserID)
		if err != nil || !user.IsActive() {
			return response.Error(c, errors.Forbidden("Account is not allowed to chat", err))
		}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		logger.Warn("WebSocket upgrade failed for %s: %v", identity.UserID, err)
		return nil
	}

	h.wsManager.Attach(conn, identity.UserID)
	return nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
