package handler

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/usecase"
	"coursehub/pkg/errors"
	"coursehub/pkg/response"
)

type GroupHandler struct {
	groupUseCase *usecase.GroupUseCase
}

func NewGroupHandler(groupUseCase *usecase.GroupUseCase) *GroupHandler {
	return &GroupHandler{
		groupUseCase: groupUseCase,
	}
}

type createGroupRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	Course string `json:"course" validate:"required"`
}

type inviteRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,required"`
}

type respondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

func (h *GroupHandler) CreateGroup(c echo.Context) error {
	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conv, err := h.groupUseCase.CreateGroup(c.Request().Context(), currentIdentity(c), usecase.CreateGroupInput{
		Name:   req.Name,
		Course: req.Course,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, conv)
}

func (h *GroupHandler) ListGroups(c echo.Context) error {
	groups, err := h.groupUseCase.ListGroups(c.Request().Context(), currentUserID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, groups)
}

func (h *GroupHandler) ListInvites(c echo.Context) error {
	invites, err := h.groupUseCase.ListPendingInvites(c.Request().Context(), currentUserID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, invites)
}

func (h *GroupHandler) Invite(c echo.Context) error {
	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.groupUseCase.Invite(c.Request().Context(), c.Param("id"), currentUserID(c), req.UserIDs)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, result)
}

func (h *GroupHandler) Respond(c echo.Context) error {
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conv, err := h.groupUseCase.Respond(c.Request().Context(), c.Param("id"), currentUserID(c), req.Action)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, conv)
}

func (h *GroupHandler) Leave(c echo.Context) error {
	if err := h.groupUseCase.Leave(c.Request().Context(), c.Param("id"), currentUserID(c)); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Left group"})
}

func (h *GroupHandler) DeleteGroup(c echo.Context) error {
	if err := h.groupUseCase.Delete(c.Request().Context(), c.Param("id"), currentUserID(c)); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"message": "Group deleted"})
}

func (h *GroupHandler) SearchEligibleUsers(c echo.Context) error {
	users, err := h.groupUseCase.SearchEligibleUsers(c.Request().Context(), c.Param("id"), currentUserID(c), c.QueryParam("q"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, users)
}
