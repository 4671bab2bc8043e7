package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
)

// OrdersClient talks to the orders server. Authenticated calls recover from
// an expired credential through the auth client.
type OrdersClient struct {
	api   *apiClient
	store session.Store
	auth  Refresher
}

func NewOrdersClient(baseURL string, httpClient *http.Client, store session.Store, auth Refresher) *OrdersClient {
	return &OrdersClient{
		api:   newAPIClient(baseURL, httpClient, store),
		store: store,
		auth:  auth,
	}
}

// CreateOrder submits a lead and returns the pending order id. The server
// mails a verification code to email.
func (c *OrdersClient) CreateOrder(ctx context.Context, email, note string) (int, error) {
	if email == "" {
		return 0, domain.ErrEmptyEmail
	}

	var orderID int
	err := c.api.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/order",
		query:  url.Values{"email": {email}},
		body:   domain.CreateOrderRequest{Note: note},
	}, &orderID)
	if err != nil {
		return 0, err
	}
	return orderID, nil
}

// VerifyOrder confirms an order with the mailed code. When the server
// answers with a credential it is stored, which logs the user in.
func (c *OrdersClient) VerifyOrder(ctx context.Context, orderID int, email, code string) error {
	if email == "" {
		return domain.ErrEmptyEmail
	}
	if err := domain.ValidateCode(code); err != nil {
		return err
	}

	var cred domain.Credential
	err := c.api.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/order/" + escapeID(orderID) + "/verify",
		query:  url.Values{"email": {email}, "code": {code}},
	}, &cred)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	if err != nil {
		return err
	}
	if cred.IsZero() {
		return nil
	}

	return c.store.Set(ctx, cred)
}

func (c *OrdersClient) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return WithRefresh(ctx, c.auth, func(ctx context.Context) ([]domain.Order, error) {
		var orders []domain.Order
		if err := c.api.do(ctx, request{method: http.MethodGet, path: "/api/orders", auth: true}, &orders); err != nil {
			return nil, err
		}
		return orders, nil
	})
}

func (c *OrdersClient) GetOrder(ctx context.Context, orderID int) (*domain.Order, error) {
	return WithRefresh(ctx, c.auth, func(ctx context.Context) (*domain.Order, error) {
		var order domain.Order
		err := c.api.do(ctx, request{
			method: http.MethodGet,
			path:   "/api/order/" + escapeID(orderID),
			auth:   true,
		}, &order)
		if err != nil {
			return nil, err
		}
		return &order, nil
	})
}

// DeleteOrder removes an order of the caller. Deleting an order that is
// already gone fails with the server's not-found error.
func (c *OrdersClient) DeleteOrder(ctx context.Context, orderID int) error {
	return WithRefreshNoResult(ctx, c.auth, func(ctx context.Context) error {
		return c.api.do(ctx, request{
			method: http.MethodDelete,
			path:   "/api/order/" + escapeID(orderID),
			auth:   true,
		}, nil)
	})
}
