package handler

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/labstack/echo/v4"

	"coursehub/internal/domain/service"
	"coursehub/internal/usecase"
	"coursehub/pkg/errors"
	"coursehub/pkg/response"
	"coursehub/pkg/utils"
)

type ConversationHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewConversationHandler(chatUseCase *usecase.ChatUseCase) *ConversationHandler {
	return &ConversationHandler{
		chatUseCase: chatUseCase,
	}
}

type directConversationRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type sendMessageRequest struct {
	To       string `json:"to" form:"to"`
	Content  string `json:"content" form:"content" validate:"max=5000"`
	ClientID string `json:"clientId" form:"clientId"`
}

type markReadRequest struct {
	MessageID string `json:"messageId"`
}

// ListConversations returns the caller's conversations, most recent first.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	convs, err := h.chatUseCase.ListConversations(c.Request().Context(), currentUserID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, convs)
}

// GetOrCreateDirect returns the direct conversation with another user,
// creating it on first contact.
func (h *ConversationHandler) GetOrCreateDirect(c echo.Context) error {
	var req directConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conv, err := h.chatUseCase.GetOrCreateDirect(c.Request().Context(), currentUserID(c), req.UserID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, conv)
}

func (h *ConversationHandler) GetConversation(c echo.Context) error {
	conv, err := h.chatUseCase.GetConversation(c.Request().Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, conv)
}

func (h *ConversationHandler) GetMessages(c echo.Context) error {
	params := utils.GetPaginationParams(c)

	msgs, total, params, err := h.chatUseCase.GetMessages(c.Request().Context(), currentUserID(c), c.Param("id"), params.Page, params.PageSize)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Paginated(c, msgs, total, params.Page, params.PageSize)
}

// SendMessage is the HTTP fallback for sending into an existing
// conversation. Files arrive as multipart "files" parts.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	req, files, err := bindSend(c)
	if err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatUseCase.SendWithUploads(c.Request().Context(), currentUserID(c), usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
		ClientID:       req.ClientID,
	}, files)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

// SendDirectMessage sends to a user by id, opening the direct conversation
// if there is none yet.
func (h *ConversationHandler) SendDirectMessage(c echo.Context) error {
	req, files, err := bindSend(c)
	if err != nil {
		return response.Error(c, err)
	}
	if req.To == "" {
		return response.Error(c, errors.BadRequest("to is required", nil))
	}

	msg, err := h.chatUseCase.SendWithUploads(c.Request().Context(), currentUserID(c), usecase.SendMessageInput{
		To:       req.To,
		Content:  req.Content,
		ClientID: req.ClientID,
	}, files)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	conv, err := h.chatUseCase.MarkRead(c.Request().Context(), currentUserID(c), c.Param("id"), req.MessageID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, conv)
}

// bindSend accepts either a multipart form or a JSON body.
func bindSend(c echo.Context) (sendMessageRequest, []service.UploadFile, error) {
	var req sendMessageRequest

	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := c.Bind(&req); err != nil {
			return req, nil, errors.BadRequest("Invalid request body", err)
		}
		if err := c.Validate(&req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return req, nil, errors.BadRequest("Invalid multipart form", err)
	}
	req.To = formValue(form, "to")
	req.Content = formValue(form, "content")
	req.ClientID = formValue(form, "clientId")
	if err := c.Validate(&req); err != nil {
		return req, nil, err
	}

	var files []service.UploadFile
	for _, key := range []string{"files", "files[]"} {
		for _, fh := range form.File[key] {
			files = append(files, uploadFile(fh))
		}
	}
	return req, files, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func uploadFile(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}
