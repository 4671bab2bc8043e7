package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleksandrVishniakov/versta-2024/internal/chat"
	"github.com/AleksandrVishniakov/versta-2024/internal/client"
	"github.com/AleksandrVishniakov/versta-2024/internal/config"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/fakeserver"
	"github.com/AleksandrVishniakov/versta-2024/internal/session"
)

const waitFor = 3 * time.Second

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Report(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// recorder captures hook calls.
type recorder struct {
	mu       sync.Mutex
	screens  []Screen
	messages []domain.Message
	chatters []domain.Chatter
	unread   []int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnScreen: func(s Screen) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.screens = append(r.screens, s)
		},
		OnMessage: func(m domain.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, m)
		},
		OnChatters: func(c []domain.Chatter) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chatters = c
		},
		OnUnread: func(n int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.unread = append(r.unread, n)
		},
	}
}

func (r *recorder) hasMessage(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.Text == text {
			return true
		}
	}
	return false
}

func (r *recorder) lastChatters() []domain.Chatter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatters
}

func (r *recorder) unreadSeen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.unread...)
}

type env struct {
	srv  *fakeserver.Server
	ts   *httptest.Server
	chat *chat.Client
	ctrl *Controller
	sink *recordingSink
	rec  *recorder
}

func newFake(t *testing.T) (*fakeserver.Server, *httptest.Server) {
	t.Helper()

	srv := fakeserver.New(fakeserver.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func newEnvOn(t *testing.T, srv *fakeserver.Server, ts *httptest.Server) *env {
	t.Helper()

	httpClient := client.NewHTTPClient(0)
	store := session.NewMemoryStore()
	auth := client.NewAuthClient(ts.URL, httpClient, store)
	orders := client.NewOrdersClient(ts.URL, httpClient, store, auth)
	chatClient := chat.NewClient(
		client.NewChatAPI(ts.URL, httpClient, store, auth),
		auth,
		config.WebSocketConfig{},
		config.ReconnectConfig{InitialInterval: 10 * time.Millisecond},
	)

	e := &env{srv: srv, ts: ts, chat: chatClient, sink: &recordingSink{}, rec: &recorder{}}
	e.ctrl = NewController(Options{
		Auth:             auth,
		Orders:           orders,
		Chat:             chatClient,
		Sink:             e.sink,
		Hooks:            e.rec.hooks(),
		ChattersInterval: 20 * time.Millisecond,
		UnreadInterval:   20 * time.Millisecond,
		Location:         time.UTC,
	})
	t.Cleanup(e.ctrl.Close)

	e.ctrl.Mount(context.Background())
	return e
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv, ts := newFake(t)
	return newEnvOn(t, srv, ts)
}

func (e *env) login(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.ctrl.Dispatch(ctx, IntentOpenLogin))
	require.NoError(t, e.ctrl.RequestCode(ctx, email))
	require.NoError(t, e.ctrl.ConfirmCode(ctx, fakeserver.DefaultCode))
}

func TestMountAnonymous(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, ScreenMain, e.ctrl.Screen())
	assert.False(t, e.ctrl.Identity().LoggedIn())
	require.Eventually(t, func() bool { return len(e.rec.unreadSeen()) > 0 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 0, e.rec.unreadSeen()[0])
	assert.Empty(t, e.sink.all())
}

func TestOrderFlowLogsIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.ctrl.SubmitOrder(ctx, "u@x.com", "please call")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.False(t, e.ctrl.Identity().LoggedIn())

	require.NoError(t, e.ctrl.ConfirmOrder(ctx, fakeserver.DefaultCode))
	assert.Equal(t, Identity{Email: "u@x.com", Role: domain.RoleUser}, e.ctrl.Identity())

	require.NoError(t, e.ctrl.Dispatch(ctx, IntentOpenProfile))
	assert.Equal(t, ScreenProfile, e.ctrl.Screen())

	view, err := e.ctrl.LoadProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", view.Profile.Email)
	require.Len(t, view.Orders, 1)
	assert.Equal(t, "please call", view.Orders[0].Note)
}

func TestSecondOrderUsesIdentityEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.ctrl.SubmitOrder(ctx, "u@x.com", "")
	require.NoError(t, err)
	require.NoError(t, e.ctrl.ConfirmOrder(ctx, fakeserver.DefaultCode))

	second, err := e.ctrl.SubmitOrder(ctx, "someone@else.com", "")
	require.NoError(t, err)
	assert.NotEqual(t, id, second)
	require.NoError(t, e.ctrl.ConfirmOrder(ctx, fakeserver.DefaultCode))

	_, ok := e.srv.User("someone@else.com")
	assert.False(t, ok)
}

func TestConfirmOrderWithoutPending(t *testing.T) {
	e := newEnv(t)

	err := e.ctrl.ConfirmOrder(context.Background(), fakeserver.DefaultCode)
	assert.ErrorIs(t, err, ErrNoPendingOrder)
	assert.Len(t, e.sink.all(), 1)
}

func TestLoginFlowOpensProfile(t *testing.T) {
	e := newEnv(t)
	e.login(t, "u@x.com")

	assert.Equal(t, ScreenProfile, e.ctrl.Screen())
	assert.Equal(t, "u@x.com", e.ctrl.Identity().Email)

	e.rec.mu.Lock()
	assert.Equal(t, []Screen{ScreenLogin, ScreenProfile}, e.rec.screens)
	e.rec.mu.Unlock()
}

func TestConfirmCodeNeedsRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.ctrl.Dispatch(ctx, IntentOpenLogin))
	assert.ErrorIs(t, e.ctrl.ConfirmCode(ctx, fakeserver.DefaultCode), ErrNoPendingLogin)
	assert.ErrorIs(t, e.ctrl.RequestCode(ctx, ""), domain.ErrEmptyEmail)
	assert.Len(t, e.sink.all(), 2)
}

func TestOpenProfileRequiresLogin(t *testing.T) {
	e := newEnv(t)

	err := e.ctrl.Dispatch(context.Background(), IntentOpenProfile)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, ScreenLogin, e.ctrl.Screen())
	require.NotEmpty(t, e.sink.all())
	assert.ErrorIs(t, e.sink.all()[0], domain.ErrUnauthorized)
}

func TestInvalidTransition(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.ctrl.Dispatch(context.Background(), IntentBack), ErrInvalidTransition)
	_, err := e.ctrl.LoadProfile(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ScreenMain, e.ctrl.Screen())
}

func TestAdminChatForbiddenForUsers(t *testing.T) {
	e := newEnv(t)
	e.login(t, "u@x.com")

	err := e.ctrl.Dispatch(context.Background(), IntentOpenAdminChat)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, ScreenProfile, e.ctrl.Screen())
}

func TestRenameAndDeleteOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, err := e.ctrl.SubmitOrder(ctx, "u@x.com", "")
	require.NoError(t, err)
	require.NoError(t, e.ctrl.ConfirmOrder(ctx, fakeserver.DefaultCode))
	require.NoError(t, e.ctrl.Dispatch(ctx, IntentOpenProfile))

	require.NoError(t, e.ctrl.Rename(ctx, "Ann"))
	u, _ := e.srv.User("u@x.com")
	assert.Equal(t, "Ann", u.Name)

	orders, err := e.ctrl.DeleteOrder(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = e.ctrl.DeleteOrder(ctx, id)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.Status)
}

func TestLogoutForgetsIdentity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.login(t, "u@x.com")

	require.NoError(t, e.ctrl.Dispatch(ctx, IntentLogout))
	assert.Equal(t, ScreenMain, e.ctrl.Screen())
	assert.False(t, e.ctrl.Identity().LoggedIn())

	assert.ErrorIs(t, e.ctrl.Dispatch(ctx, IntentOpenProfile), domain.ErrUnauthorized)
}

func TestSupportChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.Eventually(t, func() bool { return len(e.rec.unreadSeen()) > 0 }, waitFor, 10*time.Millisecond)

	entries, err := e.ctrl.OpenSupportChat(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, chat.StateConnected, e.chat.State())

	me := e.chat.ChatterID()
	require.Eventually(t, func() bool {
		return e.srv.Connections(me, fakeserver.SupportChatterID) == 1
	}, waitFor, 10*time.Millisecond)

	e.srv.Post(fakeserver.SupportChatterID, me, "hello from support")
	require.Eventually(t, func() bool { return e.rec.hasMessage("hello from support") }, waitFor, 10*time.Millisecond)

	require.NoError(t, e.ctrl.SendMessage(ctx, "thanks"))
	require.Eventually(t, func() bool { return e.rec.hasMessage("thanks") }, waitFor, 10*time.Millisecond)

	e.ctrl.CloseSupportChat(ctx)
	assert.Equal(t, chat.StateReady, e.chat.State())

	e.srv.Post(fakeserver.SupportChatterID, me, "are you there?")
	require.Eventually(t, func() bool {
		seen := e.rec.unreadSeen()
		return len(seen) > 0 && seen[len(seen)-1] == 2
	}, waitFor, 10*time.Millisecond)
}

func TestAdminChatFlow(t *testing.T) {
	srv, ts := newFake(t)
	srv.AddAdmin("admin@x.com")
	ctx := context.Background()

	visitor := newEnvOn(t, srv, ts)
	require.Eventually(t, func() bool { return len(visitor.rec.unreadSeen()) > 0 }, waitFor, 10*time.Millisecond)
	_, err := visitor.ctrl.OpenSupportChat(ctx)
	require.NoError(t, err)
	require.NoError(t, visitor.ctrl.SendMessage(ctx, "I need help"))
	require.Eventually(t, func() bool { return visitor.rec.hasMessage("I need help") }, waitFor, 10*time.Millisecond)
	visitorID := visitor.chat.ChatterID()

	admin := newEnvOn(t, srv, ts)
	admin.login(t, "admin@x.com")
	require.NoError(t, admin.ctrl.Dispatch(ctx, IntentOpenAdminChat))
	assert.Equal(t, ScreenAdminChat, admin.ctrl.Screen())

	require.Eventually(t, func() bool { return len(admin.rec.lastChatters()) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, visitorID, admin.rec.lastChatters()[0].ID)

	assert.ErrorIs(t, admin.ctrl.SendMessage(ctx, "nobody selected"), ErrNoChatter)

	entries, err := admin.ctrl.SelectChatter(ctx, visitorID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsDayMarker())
	assert.Equal(t, "I need help", entries[1].Message.Text)
	assert.Zero(t, srv.Unread(fakeserver.SupportChatterID, visitorID))

	require.NoError(t, admin.ctrl.SendMessage(ctx, "on my way"))
	require.Eventually(t, func() bool { return visitor.rec.hasMessage("on my way") }, waitFor, 10*time.Millisecond)

	require.NoError(t, admin.ctrl.Dispatch(ctx, IntentBack))
	assert.Equal(t, ScreenMain, admin.ctrl.Screen())
	assert.Equal(t, chat.StateReady, admin.chat.State())
	require.Eventually(t, func() bool {
		return srv.Connections(visitorID, fakeserver.SupportChatterID) == 1
	}, waitFor, 10*time.Millisecond)
}

// assertQuiet checks that route gets no more calls for several poll intervals.
func assertQuiet(t *testing.T, srv *fakeserver.Server, route string) {
	t.Helper()
	before := srv.Calls(http.MethodGet, route)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, before, srv.Calls(http.MethodGet, route), route)
}

func TestPollersStopOnTeardown(t *testing.T) {
	const (
		chattersRoute = "/api/admin/clients"
		unreadRoute   = "/api/messages/unread"
	)

	e := newEnv(t)
	e.srv.AddAdmin("admin@x.com")
	e.login(t, "admin@x.com")
	ctx := context.Background()

	require.NoError(t, e.ctrl.Dispatch(ctx, IntentOpenAdminChat))
	require.Eventually(t, func() bool { return e.srv.Calls(http.MethodGet, chattersRoute) >= 2 }, waitFor, 10*time.Millisecond)

	unreadBefore := e.srv.Calls(http.MethodGet, unreadRoute)
	require.NoError(t, e.ctrl.Dispatch(ctx, IntentBack))
	assertQuiet(t, e.srv, chattersRoute)

	require.Eventually(t, func() bool {
		return e.srv.Calls(http.MethodGet, unreadRoute) > unreadBefore
	}, waitFor, 10*time.Millisecond, "unread polling resumes on the main screen")

	e.ctrl.Close()
	assertQuiet(t, e.srv, unreadRoute)
	assertQuiet(t, e.srv, chattersRoute)
}

// stubAuth serves whatever profile the test sets.
type stubAuth struct {
	mu      sync.Mutex
	profile *domain.UserProfile
}

func (a *stubAuth) set(p *domain.UserProfile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = p
}

func (a *stubAuth) RequestLogin(context.Context, string) (int, error) { return 1, nil }

func (a *stubAuth) VerifyEmail(context.Context, string, string) error { return nil }

func (a *stubAuth) GetProfile(context.Context, string) (*domain.UserProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.profile == nil {
		return nil, &domain.RemoteError{Status: http.StatusUnauthorized, Code: "401"}
	}
	p := *a.profile
	return &p, nil
}

func (a *stubAuth) UpdateName(context.Context, string) error { return nil }

func (a *stubAuth) Logout(context.Context) error { return nil }

type nopChat struct{}

func (nopChat) Preflight(context.Context) error { return nil }
func (nopChat) Connect(context.Context, func(domain.Message), int) error { return nil }
func (nopChat) Send(string) error { return nil }
func (nopChat) Disconnect() error { return nil }
func (nopChat) Reset() error { return nil }
func (nopChat) ListMessages(context.Context, int) ([]domain.Message, error) { return nil, nil }
func (nopChat) UnreadCount(context.Context, int) (int, error) { return 0, nil }
func (nopChat) MarkAllRead(context.Context, int) error { return nil }
func (nopChat) ListChatters(context.Context) ([]domain.Chatter, error) { return nil, nil }

func TestAdminChatRechecksRoleOnEntry(t *testing.T) {
	auth := &stubAuth{}
	auth.set(&domain.UserProfile{ID: 1, Email: "a@x.com", Role: domain.RoleAdmin})

	ctrl := NewController(Options{Auth: auth, Chat: nopChat{}, Sink: &recordingSink{}})
	defer ctrl.Close()
	ctx := context.Background()

	require.NoError(t, ctrl.Dispatch(ctx, IntentOpenProfile))
	assert.Equal(t, domain.RoleAdmin, ctrl.Identity().Role)

	auth.set(&domain.UserProfile{ID: 1, Email: "a@x.com", Role: domain.RoleUser})
	assert.ErrorIs(t, ctrl.Dispatch(ctx, IntentOpenAdminChat), domain.ErrForbidden)
	assert.Equal(t, ScreenProfile, ctrl.Screen())

	auth.set(&domain.UserProfile{ID: 1, Email: "a@x.com", Role: domain.RoleAdmin})
	require.NoError(t, ctrl.Dispatch(ctx, IntentOpenAdminChat))
	assert.Equal(t, ScreenAdminChat, ctrl.Screen())
}
