package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
)

// RESTClient calls the /api/chats surface with a bearer token.
type RESTClient struct {
	baseURL      string
	token        string
	http         *http.Client
	connectionID func() string
}

// RESTOption tweaks a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *RESTClient) { r.http = c }
}

// WithConnectionID makes sends carry the socket connection id so the server
// skips echoing them back to this connection.
func WithConnectionID(fn func() string) RESTOption {
	return func(r *RESTClient) { r.connectionID = fn }
}

// NewRESTClient builds a client for baseURL, e.g. http://host:8083/api/chats.
func NewRESTClient(baseURL, token string, opts ...RESTOption) *RESTClient {
	r := &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendRequest is the body of a message create.
type SendRequest struct {
	ChatID      string             `json:"chatId"`
	SenderRole  models.Role        `json:"senderRole"`
	MessageType models.MessageType `json:"messageType"`
	Content     string             `json:"content,omitempty"`
	MediaURL    string             `json:"mediaUrl,omitempty"`
}

type rawChatPage struct {
	Chats       []json.RawMessage `json:"chats"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	HasMore     bool              `json:"hasMore"`
}

// GetOrCreateChat returns the raw chat record for the pair.
func (r *RESTClient) GetOrCreateChat(ctx context.Context, userID, shopID string) (json.RawMessage, error) {
	var out json.RawMessage
	body := map[string]string{"userId": userID, "shopId": shopID}
	err := r.do(ctx, http.MethodPost, "/get-or-create", body, &out)
	return out, err
}

// ListChats returns the party's chats as raw records for NormalizeChat.
func (r *RESTClient) ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) ([]json.RawMessage, error) {
	segment := "users"
	if role == models.RoleShop {
		segment = "shops"
	}
	path := fmt.Sprintf("/%s/%s/chats?%s", segment, url.PathEscape(partyID), pageQuery(page, limit).Encode())
	var out rawChatPage
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (r *RESTClient) ListMessages(ctx context.Context, chatID string, page, limit int) (models.MessagePage, error) {
	path := fmt.Sprintf("/messages/chats/%s/messages?%s", url.PathEscape(chatID), pageQuery(page, limit).Encode())
	var out models.MessagePage
	err := r.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (r *RESTClient) SendMessage(ctx context.Context, req SendRequest) (models.Message, error) {
	var out models.Message
	err := r.do(ctx, http.MethodPost, "/messages", req, &out)
	return out, err
}

// MarkChatRead acknowledges everything addressed to role in the chat.
func (r *RESTClient) MarkChatRead(ctx context.Context, chatID string, role models.Role) error {
	body := map[string]models.Role{"role": role}
	return r.do(ctx, http.MethodPut, "/"+url.PathEscape(chatID)+"/mark-read", body, nil)
}

func (r *RESTClient) TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error) {
	var out struct {
		UnreadCount int `json:"unreadCount"`
	}
	path := fmt.Sprintf("/unread-count/%s/%s", url.PathEscape(partyID), role)
	err := r.do(ctx, http.MethodGet, path, nil, &out)
	return out.UnreadCount, err
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// do sends one request. Non-2xx responses decode the error envelope into an
// AppError; network failures become TRANSPORT_ERROR.
func (r *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal("encode request", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return apperrors.Internal("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.connectionID != nil {
		if id := r.connectionID(); id != "" {
			req.Header.Set(observability.ConnectionIDHeader, id)
		}
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return apperrors.Transport(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return apperrors.New(apperrors.CodeInternal, resp.Status, resp.StatusCode, err)
		}
		return apperrors.New(envelope.Error.Code, envelope.Error.Message, resp.StatusCode, nil)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transport("decode response", err)
	}
	return nil
}
