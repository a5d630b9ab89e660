package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/handler"
)

// SetupChatRouter sets up conversation and message routes (excluding WebSocket)
func SetupChatRouter(v1 *echo.Group) {
	h := handler.GetConversationHandler()

	conversations := v1.Group("/conversations")
	conversations.GET("", h.ListConversations)
	conversations.POST("/direct", h.GetOrCreateDirect)
	conversations.GET("/:id", h.GetConversation)
	conversations.GET("/:id/messages", h.GetMessages)
	conversations.POST("/:id/messages", h.SendMessage)
	conversations.PUT("/:id/read", h.MarkRead)

	// ad hoc direct send, opens the conversation on first contact
	v1.POST("/messages", h.SendDirectMessage)
}
