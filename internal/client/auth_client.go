package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

// AuthClient talks to the auth server and owns credential refresh.
type AuthClient struct {
	api   *apiClient
	store session.Store
}

func NewAuthClient(baseURL string, httpClient *http.Client, store session.Store) *AuthClient {
	return &AuthClient{
		api:   newAPIClient(baseURL, httpClient, store),
		store: store,
	}
}

// RequestLogin starts the login/registration flow for email. The server
// mails a verification code and answers with the pending user id.
func (c *AuthClient) RequestLogin(ctx context.Context, email string) (int, error) {
	if email == "" {
		return 0, domain.ErrEmptyEmail
	}

	var userID int
	err := c.api.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/auth",
		query:  url.Values{"email": {email}},
	}, &userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// VerifyEmail exchanges the mailed code for a credential and stores it.
func (c *AuthClient) VerifyEmail(ctx context.Context, email, code string) error {
	if email == "" {
		return domain.ErrEmptyEmail
	}
	if err := domain.ValidateCode(code); err != nil {
		return err
	}

	var cred domain.Credential
	err := c.api.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/" + url.PathEscape(email) + "/verify",
		query:  url.Values{"code": {code}},
	}, &cred)
	if err != nil {
		return err
	}

	return c.store.Set(ctx, cred)
}

// GetProfile returns the caller's profile, or the profile of email when it
// is not empty (privileged callers only).
func (c *AuthClient) GetProfile(ctx context.Context, email string) (*domain.UserProfile, error) {
	c.ensureCredential(ctx)

	path := "/api/user/my_profile"
	if email != "" {
		path = "/api/user/email/" + url.PathEscape(email)
	}

	return WithRefresh(ctx, c, func(ctx context.Context) (*domain.UserProfile, error) {
		var profile domain.UserProfile
		if err := c.api.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &profile); err != nil {
			return nil, err
		}
		return &profile, nil
	})
}

func (c *AuthClient) UpdateName(ctx context.Context, name string) error {
	if name == "" {
		return domain.ErrEmptyName
	}

	return WithRefreshNoResult(ctx, c, func(ctx context.Context) error {
		return c.api.do(ctx, request{
			method: http.MethodPut,
			path:   "/api/user/name",
			body:   domain.UpdateNameRequest{Name: name},
			auth:   true,
		}, nil)
	})
}

// RefreshCredential trades the refresh cookie for a new credential.
func (c *AuthClient) RefreshCredential(ctx context.Context) error {
	l := log.Ctx(ctx)
	l.Debug().Msg("refreshing credential")

	var cred domain.Credential
	if err := c.api.do(ctx, request{method: http.MethodGet, path: "/api/tokens/refresh"}, &cred); err != nil {
		return err
	}

	return c.store.Set(ctx, cred)
}

// Logout forgets the credential and the session cookies.
func (c *AuthClient) Logout(ctx context.Context) error {
	if jar, ok := c.api.httpClient.Jar.(*Jar); ok {
		jar.Reset()
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Credential exposes the stored credential to clients that must put it in
// a URL rather than a header.
func (c *AuthClient) Credential(ctx context.Context) (domain.Credential, error) {
	return c.store.Get(ctx)
}

// EnsureCredential refreshes once when no credential is stored. A failed
// refresh is only logged; the following call will surface the problem.
func (c *AuthClient) EnsureCredential(ctx context.Context) domain.Credential {
	c.ensureCredential(ctx)
	cred, _ := c.store.Get(ctx)
	return cred
}

func (c *AuthClient) ensureCredential(ctx context.Context) {
	cred, err := c.store.Get(ctx)
	if err == nil && !cred.IsZero() {
		return
	}

	if err := c.RefreshCredential(ctx); err != nil {
		l := log.Ctx(ctx)
		var remote *domain.RemoteError
		if errors.As(err, &remote) {
			l.Debug().Err(err).Msg("no credential and refresh rejected")
			return
		}
		l.Warn().Err(err).Msg("no credential and refresh failed")
	}
}
