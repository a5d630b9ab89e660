package handler

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/middleware"
	"coursehub/internal/domain/entity"
	"coursehub/internal/usecase"
)

var (
	conversationHandler *ConversationHandler
	groupHandler        *GroupHandler
)

func Setup(
	chatUseCase *usecase.ChatUseCase,
	groupUseCase *usecase.GroupUseCase,
) {
	conversationHandler = NewConversationHandler(chatUseCase)
	groupHandler = NewGroupHandler(groupUseCase)
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetGroupHandler() *GroupHandler {
	return groupHandler
}

func currentUserID(c echo.Context) string {
	uid, _ := c.Get(middleware.ContextUserID).(string)
	return uid
}

func currentIdentity(c echo.Context) entity.Identity {
	if id, ok := c.Get(middleware.ContextIdentity).(entity.Identity); ok {
		return id
	}
	return entity.Identity{UserID: currentUserID(c)}
}
