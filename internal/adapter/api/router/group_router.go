package router

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/adapter/api/handler"
)

func SetupGroupRouter(v1 *echo.Group) {
	h := handler.GetGroupHandler()

	groups := v1.Group("/groups")
	groups.POST("", h.CreateGroup)
	groups.GET("", h.ListGroups)
	groups.GET("/invites", h.ListInvites)
	groups.POST("/:id/invites", h.Invite)
	groups.POST("/:id/invites/respond", h.Respond)
	groups.POST("/:id/leave", h.Leave)
	groups.DELETE("/:id", h.DeleteGroup)
	groups.GET("/:id/eligible-users", h.SearchEligibleUsers)
}
