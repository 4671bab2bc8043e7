// Package nav holds the screen state of the landing client and turns user
// actions into calls on the auth, orders and chat clients.
package nav

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AleksandrVishniakov/versta-2024/internal/audit"
	"github.com/AleksandrVishniakov/versta-2024/internal/chat"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

type Screen int

const (
	ScreenMain Screen = iota
	ScreenLogin
	ScreenProfile
	ScreenAdminChat
)

func (s Screen) String() string {
	switch s {
	case ScreenMain:
		return "main"
	case ScreenLogin:
		return "login"
	case ScreenProfile:
		return "profile"
	case ScreenAdminChat:
		return "admin_chat"
	default:
		return "unknown"
	}
}

type Intent int

const (
	IntentOpenLogin Intent = iota
	IntentBack
	IntentLogout
	IntentOpenProfile
	IntentOpenAdminChat
)

func (i Intent) String() string {
	switch i {
	case IntentOpenLogin:
		return "open_login"
	case IntentBack:
		return "back"
	case IntentLogout:
		return "logout"
	case IntentOpenProfile:
		return "open_profile"
	case IntentOpenAdminChat:
		return "open_admin_chat"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("action is not available on this screen")
	ErrNoPendingOrder    = errors.New("no order is waiting for confirmation")
	ErrNoPendingLogin    = errors.New("request a login code first")
	ErrNoChatter         = errors.New("select a chatter first")
)

type AuthService interface {
	RequestLogin(ctx context.Context, email string) (int, error)
	VerifyEmail(ctx context.Context, email, code string) error
	GetProfile(ctx context.Context, email string) (*domain.UserProfile, error)
	UpdateName(ctx context.Context, name string) error
	Logout(ctx context.Context) error
}

type OrdersService interface {
	CreateOrder(ctx context.Context, email, note string) (int, error)
	VerifyOrder(ctx context.Context, orderID int, email, code string) error
	ListOrders(ctx context.Context) ([]domain.Order, error)
	DeleteOrder(ctx context.Context, orderID int) error
}

type ChatService interface {
	Preflight(ctx context.Context) error
	Connect(ctx context.Context, onMessage func(domain.Message), counterpartID int) error
	Send(text string) error
	Disconnect() error
	Reset() error
	ListMessages(ctx context.Context, counterpartID int) ([]domain.Message, error)
	UnreadCount(ctx context.Context, counterpartID int) (int, error)
	MarkAllRead(ctx context.Context, counterpartID int) error
	ListChatters(ctx context.Context) ([]domain.Chatter, error)
}

// Identity is what the controller remembers about the logged-in user.
type Identity struct {
	Email string
	Role  domain.Role
}

func (i Identity) LoggedIn() bool {
	return i.Email != ""
}

// Hooks let the front end follow changes it did not ask for. Every hook is
// optional and may be called from a background goroutine.
type Hooks struct {
	OnScreen   func(Screen)
	OnMessage  func(domain.Message)
	OnChatters func([]domain.Chatter)
	OnUnread   func(int)
}

type Options struct {
	Auth   AuthService
	Orders OrdersService
	Chat   ChatService
	Sink   ErrorSink
	Hooks  Hooks

	ChattersInterval time.Duration
	UnreadInterval   time.Duration
	// Location decides where chat day markers fall; time.Local when nil.
	Location *time.Location
}

type pendingOrder struct {
	id    int
	email string
}

// Controller is the screen state machine. Identity is held in memory only
// and re-derived from the auth server on mount and after every login.
type Controller struct {
	auth   AuthService
	orders OrdersService
	chat   ChatService
	sink   ErrorSink
	hooks  Hooks
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	screen      Screen
	identity    Identity
	order       *pendingOrder
	loginEmail  string
	selected    int
	supportOpen bool
	chatters    *chat.Poller[[]domain.Chatter]
	unread      *chat.Poller[int]
	pollerCtx   context.Context
	stopPollers context.CancelFunc
}

func NewController(opts Options) *Controller {
	if opts.Sink == nil {
		opts.Sink = NewLogSink()
	}
	if opts.ChattersInterval <= 0 {
		opts.ChattersInterval = 10 * time.Second
	}
	if opts.UnreadInterval <= 0 {
		opts.UnreadInterval = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		auth:        opts.Auth,
		orders:      opts.Orders,
		chat:        opts.Chat,
		sink:        opts.Sink,
		hooks:       opts.Hooks,
		opts:        opts,
		logger:      log.L().With().Str(log.FieldComponent, "nav").Logger(),
		pollerCtx:   ctx,
		stopPollers: cancel,
	}
}

func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

func (c *Controller) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Mount derives the identity from the stored credential, if any, and starts
// watching the unread count of the support chat.
func (c *Controller) Mount(ctx context.Context) {
	if err := c.refreshIdentity(ctx); err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		c.fail(ctx, err)
	}
	c.startUnreadPoller()
	c.setScreen(ScreenMain)
}

// Close stops every background activity.
func (c *Controller) Close() {
	c.stopPollers()

	c.mu.Lock()
	chatters, unread := c.chatters, c.unread
	c.chatters, c.unread = nil, nil
	c.mu.Unlock()

	if chatters != nil {
		chatters.Stop()
	}
	if unread != nil {
		unread.Stop()
	}
	c.chat.Disconnect()
}

// Dispatch applies a navigation intent.
func (c *Controller) Dispatch(ctx context.Context, intent Intent) error {
	from := c.Screen()
	l := c.logger.With().Str(log.FieldScreen, from.String()).Str(log.FieldIntent, intent.String()).Logger()
	l.Debug().Msg("dispatch")

	var err error
	switch intent {
	case IntentOpenLogin:
		err = c.openLogin(from)
	case IntentBack:
		err = c.back(from)
	case IntentLogout:
		err = c.logout(ctx, from)
	case IntentOpenProfile:
		err = c.openProfile(ctx, from)
	case IntentOpenAdminChat:
		err = c.openAdminChat(ctx, from)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidTransition, intent)
	}

	if err != nil {
		c.fail(ctx, err)
	}
	return err
}

func (c *Controller) openLogin(from Screen) error {
	if from != ScreenMain {
		return fmt.Errorf("%w: login from %s", ErrInvalidTransition, from)
	}
	c.setScreen(ScreenLogin)
	return nil
}

func (c *Controller) back(from Screen) error {
	switch from {
	case ScreenLogin, ScreenProfile:
	case ScreenAdminChat:
		c.leaveAdminChat()
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, from)
	}

	c.mu.Lock()
	c.loginEmail = ""
	c.mu.Unlock()

	c.setScreen(ScreenMain)
	return nil
}

func (c *Controller) logout(ctx context.Context, from Screen) error {
	if from == ScreenAdminChat {
		c.leaveAdminChat()
	}

	actor := c.Identity().Email
	err := c.auth.Logout(ctx)

	c.mu.Lock()
	c.identity = Identity{}
	c.loginEmail = ""
	c.order = nil
	c.mu.Unlock()

	c.resetChat()
	c.setScreen(ScreenMain)

	if err != nil {
		return err
	}
	audit.Log(ctx, audit.ActionLogout, actor, "user logged out")
	return nil
}

func (c *Controller) openProfile(ctx context.Context, from Screen) error {
	switch from {
	case ScreenMain, ScreenProfile:
	case ScreenAdminChat:
		c.leaveAdminChat()
	default:
		return fmt.Errorf("%w: profile from %s", ErrInvalidTransition, from)
	}

	if err := c.refreshIdentity(ctx); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.setScreen(ScreenLogin)
		} else if from == ScreenAdminChat {
			c.setScreen(ScreenMain)
		}
		return err
	}

	c.setScreen(ScreenProfile)
	return nil
}

func (c *Controller) openAdminChat(ctx context.Context, from Screen) error {
	if from != ScreenMain && from != ScreenProfile {
		return fmt.Errorf("%w: admin chat from %s", ErrInvalidTransition, from)
	}

	if err := c.refreshIdentity(ctx); err != nil {
		return err
	}
	if c.Identity().Role != domain.RoleAdmin {
		return fmt.Errorf("admin chat: %w", domain.ErrForbidden)
	}

	c.closeSupportChat()
	c.stopUnreadPoller()
	if err := c.chat.Preflight(ctx); err != nil {
		c.startUnreadPoller()
		return err
	}

	p := chat.NewPoller(c.opts.ChattersInterval, c.chat.ListChatters,
		func(chatters []domain.Chatter) {
			if c.hooks.OnChatters != nil {
				c.hooks.OnChatters(chatters)
			}
		},
		c.pollFailed,
	)

	c.mu.Lock()
	c.chatters = p
	c.selected = 0
	c.mu.Unlock()

	p.Start(c.pollerCtx)
	c.setScreen(ScreenAdminChat)
	return nil
}

// leaveAdminChat stops the chatter poller and closes the open conversation.
func (c *Controller) leaveAdminChat() {
	c.mu.Lock()
	p := c.chatters
	c.chatters = nil
	c.selected = 0
	c.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	c.chat.Disconnect()
	c.startUnreadPoller()
}

// refreshIdentity re-derives email and role from the server. A failure
// forgets the identity.
func (c *Controller) refreshIdentity(ctx context.Context) error {
	profile, err := c.auth.GetProfile(ctx, "")

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.identity = Identity{}
		return err
	}

	c.identity = Identity{Email: profile.Email, Role: profile.Role}
	c.logger.Debug().
		Int(log.FieldUserID, profile.ID).
		Str(log.FieldEmail, profile.Email).
		Str(log.FieldRole, string(profile.Role)).
		Msg("identity refreshed")
	return nil
}

func (c *Controller) setScreen(s Screen) {
	c.mu.Lock()
	changed := c.screen != s
	c.screen = s
	c.mu.Unlock()

	if changed && c.hooks.OnScreen != nil {
		c.hooks.OnScreen(s)
	}
}

func (c *Controller) fail(ctx context.Context, err error) {
	c.sink.Report(ctx, err)
}

func (c *Controller) pollFailed(err error) {
	c.fail(c.pollerCtx, err)
}
