package nav

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AleksandrVishniakov/versta-2024/internal/audit"
	"github.com/AleksandrVishniakov/versta-2024/internal/chat"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
)

// ProfileView is everything the profile screen shows.
type ProfileView struct {
	Profile *domain.UserProfile
	Orders  []domain.Order
}

// report hands err to the sink and returns it.
func (c *Controller) report(ctx context.Context, err error) error {
	if err != nil {
		c.fail(ctx, err)
	}
	return err
}

func (c *Controller) requireScreen(allowed ...Screen) error {
	current := c.Screen()
	for _, s := range allowed {
		if s == current {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, current)
}

// SubmitOrder is the first step of the order form. A logged-in user always
// orders under their own email.
func (c *Controller) SubmitOrder(ctx context.Context, email, note string) (int, error) {
	if id := c.Identity(); id.LoggedIn() {
		email = id.Email
	}

	orderID, err := c.orders.CreateOrder(ctx, email, note)
	if err != nil {
		return 0, c.report(ctx, err)
	}

	c.mu.Lock()
	c.order = &pendingOrder{id: orderID, email: email}
	c.mu.Unlock()

	audit.LogTarget(ctx, audit.ActionOrderCreate, email, orderID, "order created")
	return orderID, nil
}

// ConfirmOrder verifies the pending order with the mailed code. Verifying
// logs the user in, so the identity is refreshed afterwards.
func (c *Controller) ConfirmOrder(ctx context.Context, code string) error {
	c.mu.Lock()
	pending := c.order
	c.mu.Unlock()

	if pending == nil {
		return c.report(ctx, ErrNoPendingOrder)
	}

	if err := c.orders.VerifyOrder(ctx, pending.id, pending.email, code); err != nil {
		return c.report(ctx, err)
	}

	c.mu.Lock()
	c.order = nil
	c.mu.Unlock()

	audit.LogTarget(ctx, audit.ActionOrderVerify, pending.email, pending.id, "order verified")
	return c.report(ctx, c.afterLogin(ctx))
}

// RequestCode is the first step of the login screen.
func (c *Controller) RequestCode(ctx context.Context, email string) error {
	if err := c.requireScreen(ScreenLogin); err != nil {
		return c.report(ctx, err)
	}

	if _, err := c.auth.RequestLogin(ctx, email); err != nil {
		return c.report(ctx, err)
	}

	c.mu.Lock()
	c.loginEmail = email
	c.mu.Unlock()

	audit.Log(ctx, audit.ActionLoginRequested, email, "login code requested")
	return nil
}

// ConfirmCode finishes the login and opens the profile.
func (c *Controller) ConfirmCode(ctx context.Context, code string) error {
	if err := c.requireScreen(ScreenLogin); err != nil {
		return c.report(ctx, err)
	}

	c.mu.Lock()
	email := c.loginEmail
	c.mu.Unlock()

	if email == "" {
		return c.report(ctx, ErrNoPendingLogin)
	}

	if err := c.auth.VerifyEmail(ctx, email, code); err != nil {
		audit.Log(ctx, audit.ActionLoginFailed, email, "login code rejected")
		return c.report(ctx, err)
	}
	audit.Log(ctx, audit.ActionLogin, email, "user logged in")

	c.mu.Lock()
	c.loginEmail = ""
	c.mu.Unlock()

	if err := c.afterLogin(ctx); err != nil {
		return c.report(ctx, err)
	}
	c.setScreen(ScreenProfile)
	return nil
}

// afterLogin re-derives the identity and drops the chat session negotiated
// for the previous one.
func (c *Controller) afterLogin(ctx context.Context) error {
	before := c.Identity()
	err := c.refreshIdentity(ctx)
	if c.Identity() != before {
		c.resetChat()
	}
	return err
}

// LoadProfile fetches the profile and the orders concurrently.
func (c *Controller) LoadProfile(ctx context.Context) (*ProfileView, error) {
	if err := c.requireScreen(ScreenProfile); err != nil {
		return nil, c.report(ctx, err)
	}

	var view ProfileView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := c.auth.GetProfile(gctx, "")
		if err != nil {
			return err
		}
		view.Profile = profile
		return nil
	})
	g.Go(func() error {
		orders, err := c.orders.ListOrders(gctx)
		if err != nil {
			return err
		}
		view.Orders = orders
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, c.report(ctx, err)
	}
	return &view, nil
}

func (c *Controller) Rename(ctx context.Context, name string) error {
	if err := c.requireScreen(ScreenProfile); err != nil {
		return c.report(ctx, err)
	}

	if err := c.auth.UpdateName(ctx, name); err != nil {
		return c.report(ctx, err)
	}
	audit.Log(ctx, audit.ActionRename, c.Identity().Email, "name updated")
	return nil
}

// DeleteOrder removes an order and returns the reloaded list.
func (c *Controller) DeleteOrder(ctx context.Context, orderID int) ([]domain.Order, error) {
	if err := c.requireScreen(ScreenProfile); err != nil {
		return nil, c.report(ctx, err)
	}

	if err := c.orders.DeleteOrder(ctx, orderID); err != nil {
		return nil, c.report(ctx, err)
	}
	audit.LogTarget(ctx, audit.ActionOrderDelete, c.Identity().Email, orderID, "order deleted")

	orders, err := c.orders.ListOrders(ctx)
	if err != nil {
		return nil, c.report(ctx, err)
	}
	return orders, nil
}

// SelectChatter opens the admin conversation with chatterID: its unread
// messages are marked read, its history is returned and the channel is
// switched to it.
func (c *Controller) SelectChatter(ctx context.Context, chatterID int) ([]chat.Entry, error) {
	if err := c.requireScreen(ScreenAdminChat); err != nil {
		return nil, c.report(ctx, err)
	}

	if err := c.chat.MarkAllRead(ctx, chatterID); err != nil {
		return nil, c.report(ctx, err)
	}

	history, err := c.chat.ListMessages(ctx, chatterID)
	if err != nil {
		return nil, c.report(ctx, err)
	}

	if err := c.chat.Connect(ctx, c.deliver, chatterID); err != nil {
		return nil, c.report(ctx, err)
	}

	c.mu.Lock()
	c.selected = chatterID
	c.mu.Unlock()

	audit.LogTarget(ctx, audit.ActionChatConnect, c.Identity().Email, chatterID, "admin conversation opened")
	return chat.Timeline(history, c.opts.Location), nil
}

// SendMessage writes to whichever conversation is open. Without one the
// message is dropped.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	onAdmin := c.screen == ScreenAdminChat
	selected := c.selected
	c.mu.Unlock()

	if onAdmin && selected == 0 {
		return c.report(ctx, ErrNoChatter)
	}
	return c.report(ctx, c.chat.Send(text))
}

// OpenSupportChat opens the visitor's own conversation with support and
// returns its history.
func (c *Controller) OpenSupportChat(ctx context.Context) ([]chat.Entry, error) {
	if err := c.requireScreen(ScreenMain, ScreenProfile); err != nil {
		return nil, c.report(ctx, err)
	}

	history, err := c.chat.ListMessages(ctx, 0)
	if err != nil {
		return nil, c.report(ctx, err)
	}

	c.stopUnreadPoller()
	if err := c.chat.Connect(ctx, c.deliver, 0); err != nil {
		c.startUnreadPoller()
		return nil, c.report(ctx, err)
	}

	c.mu.Lock()
	c.supportOpen = true
	c.mu.Unlock()
	audit.Log(ctx, audit.ActionChatConnect, c.Identity().Email, "support chat opened")

	if err := c.chat.MarkAllRead(ctx, 0); err != nil {
		c.fail(ctx, err)
	} else if c.hooks.OnUnread != nil {
		c.hooks.OnUnread(0)
	}

	return chat.Timeline(history, c.opts.Location), nil
}

func (c *Controller) CloseSupportChat(ctx context.Context) {
	if c.closeSupportChat() {
		audit.Log(ctx, audit.ActionChatDisconnect, c.Identity().Email, "support chat closed")
	}
	c.startUnreadPoller()
}

// closeSupportChat reports whether the support chat was open.
func (c *Controller) closeSupportChat() bool {
	c.mu.Lock()
	open := c.supportOpen
	c.supportOpen = false
	c.mu.Unlock()

	if open {
		c.chat.Disconnect()
	}
	return open
}

func (c *Controller) resetChat() {
	c.closeSupportChat()
	c.chat.Reset()
	if c.Screen() != ScreenAdminChat {
		c.startUnreadPoller()
	}
}

func (c *Controller) deliver(msg domain.Message) {
	if c.hooks.OnMessage != nil {
		c.hooks.OnMessage(msg)
	}
}

// startUnreadPoller watches the support chat unread count while the chat is
// closed.
func (c *Controller) startUnreadPoller() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unread != nil || c.supportOpen || c.pollerCtx.Err() != nil {
		return
	}

	c.unread = chat.NewPoller(c.opts.UnreadInterval,
		func(ctx context.Context) (int, error) {
			return c.chat.UnreadCount(ctx, 0)
		},
		func(n int) {
			if c.hooks.OnUnread != nil {
				c.hooks.OnUnread(n)
			}
		},
		c.pollFailed,
	)
	c.unread.Start(c.pollerCtx)
}

func (c *Controller) stopUnreadPoller() {
	c.mu.Lock()
	p := c.unread
	c.unread = nil
	c.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}
