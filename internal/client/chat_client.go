package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
)

// CredentialKeeper refreshes the credential on demand and tops up an empty
// store before calls that need one.
type CredentialKeeper interface {
	Refresher
	EnsureCredential(ctx context.Context) domain.Credential
}

// ChatAPI is the REST half of the chat server. A counterpart of 0 selects
// the caller's own support conversation; any other id selects the admin
// conversation with that chatter.
type ChatAPI struct {
	api  *apiClient
	auth CredentialKeeper
}

func NewChatAPI(baseURL string, httpClient *http.Client, store session.Store, auth CredentialKeeper) *ChatAPI {
	return &ChatAPI{
		api:  newAPIClient(baseURL, httpClient, store),
		auth: auth,
	}
}

// BaseURL is the chat server address the socket URLs derive from.
func (c *ChatAPI) BaseURL() string {
	return c.api.baseURL
}

// Preflight negotiates the chatter identity and a short-lived chat token.
// Anonymous callers are recognised by the chat session cookie.
func (c *ChatAPI) Preflight(ctx context.Context) (domain.ChatSession, error) {
	return WithRefresh(ctx, c.auth, func(ctx context.Context) (domain.ChatSession, error) {
		var s domain.ChatSession
		err := c.api.do(ctx, request{method: http.MethodGet, path: "/api/chat/preflight", auth: true}, &s)
		return s, err
	})
}

func (c *ChatAPI) ListMessages(ctx context.Context, counterpartID int) ([]domain.Message, error) {
	c.ensureAdminCredential(ctx, counterpartID)
	return WithRefresh(ctx, c.auth, func(ctx context.Context) ([]domain.Message, error) {
		var msgs []domain.Message
		if err := c.api.do(ctx, conversationRequest("/messages", counterpartID), &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	})
}

func (c *ChatAPI) UnreadCount(ctx context.Context, counterpartID int) (int, error) {
	c.ensureAdminCredential(ctx, counterpartID)
	return WithRefresh(ctx, c.auth, func(ctx context.Context) (int, error) {
		var n int
		err := c.api.do(ctx, conversationRequest("/messages/unread", counterpartID), &n)
		return n, err
	})
}

func (c *ChatAPI) MarkAllRead(ctx context.Context, counterpartID int) error {
	c.ensureAdminCredential(ctx, counterpartID)
	return WithRefreshNoResult(ctx, c.auth, func(ctx context.Context) error {
		return c.api.do(ctx, conversationRequest("/messages/read_all", counterpartID), nil)
	})
}

// ListChatters returns the chatters that wrote to the support account.
func (c *ChatAPI) ListChatters(ctx context.Context) ([]domain.Chatter, error) {
	c.auth.EnsureCredential(ctx)
	return WithRefresh(ctx, c.auth, func(ctx context.Context) ([]domain.Chatter, error) {
		var chatters []domain.Chatter
		err := c.api.do(ctx, request{method: http.MethodGet, path: "/api/admin/clients", auth: true}, &chatters)
		if err != nil {
			return nil, err
		}
		return chatters, nil
	})
}

// ensureAdminCredential refreshes an empty store before admin calls, which
// always need a credential. Visitor calls may be anonymous and skip it.
func (c *ChatAPI) ensureAdminCredential(ctx context.Context, counterpartID int) {
	if counterpartID != 0 {
		c.auth.EnsureCredential(ctx)
	}
}

func conversationRequest(path string, counterpartID int) request {
	if counterpartID == 0 {
		return request{method: http.MethodGet, path: "/api" + path, auth: true}
	}
	return request{
		method: http.MethodGet,
		path:   "/api/admin" + path,
		query:  url.Values{"with": {escapeID(counterpartID)}},
		auth:   true,
	}
}
