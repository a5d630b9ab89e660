package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coursehub/internal/domain/entity"
)

// API is a thin client for the REST endpoints.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Page is one page of message history, oldest first.
type Page struct {
	Items      []entity.Message `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
}

func (a *API) Conversations(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := a.do(ctx, http.MethodGet, "/v1/conversations", nil, "", &out)
	return out, err
}

func (a *API) History(ctx context.Context, conversationID string, page, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out Page
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	if err := a.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFiles posts a message with attachments through the multipart
// endpoint. Exactly one of conversationID and to must be set.
func (a *API) SendFiles(ctx context.Context, conversationID, to, content, clientID string, paths []string) (*entity.Message, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{"content": content, "clientId": clientID, "to": to}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for _, p := range paths {
		if err := attach(w, p); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	path := "/v1/messages"
	if conversationID != "" {
		path = "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	}
	var msg entity.Message
	if err := a.do(ctx, http.MethodPost, path, &body, w.FormDataContentType(), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func attach(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (a *API) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if !env.Success {
		if env.Error != nil {
			return &AckError{Code: env.Error.Code, Message: env.Error.Message}
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// DevToken asks a development server to mint a token for userID.
func (a *API) DevToken(ctx context.Context, userID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := a.do(ctx, http.MethodGet, "/_dev/token/"+url.PathEscape(userID), nil, "", &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
