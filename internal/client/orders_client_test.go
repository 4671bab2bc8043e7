package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/fakeserver"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
)

type clients struct {
	store  session.Store
	auth   *AuthClient
	orders *OrdersClient
}

func newClients(url string) clients {
	httpClient := NewHTTPClient(0)
	store := session.NewMemoryStore()
	auth := NewAuthClient(url, httpClient, store)
	return clients{
		store:  store,
		auth:   auth,
		orders: NewOrdersClient(url, httpClient, store, auth),
	}
}

func TestCreateAndVerifyOrderLogsIn(t *testing.T) {
	_, ts := newFake(t)
	c := newClients(ts.URL)
	ctx := context.Background()

	id, err := c.orders.CreateOrder(ctx, "u@x.com", "call me after 6pm")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	cred, _ := c.store.Get(ctx)
	assert.True(t, cred.IsZero())

	require.NoError(t, c.orders.VerifyOrder(ctx, id, "u@x.com", fakeserver.DefaultCode))

	cred, _ = c.store.Get(ctx)
	assert.False(t, cred.IsZero())

	profile, err := c.auth.GetProfile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", profile.Email)
	assert.True(t, profile.IsEmailVerified)

	orders, err := c.orders.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "call me after 6pm", orders[0].Note)
	assert.Equal(t, domain.OrderStatusVerified, orders[0].Status)

	order, err := c.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orders[0], *order)
}

func TestVerifyOrderRejectsShortCode(t *testing.T) {
	srv, ts := newFake(t)
	c := newClients(ts.URL)

	err := c.orders.VerifyOrder(context.Background(), 1, "u@x.com", "12345")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Zero(t, srv.Calls(http.MethodGet, "/api/order/:id/verify"))
}

func TestVerifyOrderAcceptsEmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/order/3/verify", r.URL.Path)
		assert.Equal(t, "u@x.com", r.URL.Query().Get("email"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := newClients(ts.URL)
	require.NoError(t, c.orders.VerifyOrder(context.Background(), 3, "u@x.com", "123456"))

	cred, _ := c.store.Get(context.Background())
	assert.True(t, cred.IsZero())
}

func TestDeleteOrderTwiceIsTerminal(t *testing.T) {
	srv, ts := newFake(t)
	c := newClients(ts.URL)
	ctx := context.Background()

	id, err := c.orders.CreateOrder(ctx, "u@x.com", "")
	require.NoError(t, err)
	require.NoError(t, c.orders.VerifyOrder(ctx, id, "u@x.com", fakeserver.DefaultCode))

	require.NoError(t, c.orders.DeleteOrder(ctx, id))

	err = c.orders.DeleteOrder(ctx, id)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.Status)
	assert.Equal(t, "404", remote.Code)
	assert.Zero(t, srv.Calls(http.MethodGet, "/api/tokens/refresh"))

	orders, err := c.orders.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestListOrdersRecoversFromExpiredCredential(t *testing.T) {
	srv, ts := newFake(t)
	c := newClients(ts.URL)
	ctx := context.Background()

	id, err := c.orders.CreateOrder(ctx, "u@x.com", "")
	require.NoError(t, err)
	require.NoError(t, c.orders.VerifyOrder(ctx, id, "u@x.com", fakeserver.DefaultCode))

	srv.ExpireAccessTokens()

	orders, err := c.orders.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, 1, srv.Calls(http.MethodGet, "/api/tokens/refresh"))
	assert.Equal(t, 2, srv.Calls(http.MethodGet, "/api/orders"))
}
