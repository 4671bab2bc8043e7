// Package chat drives the support chat: the chatter session negotiated by
// preflight, the socket channel with its reconnect loop, and the helpers the
// screens poll with.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AleksandrVishniakov/versta-2024/internal/client"
	"github.com/AleksandrVishniakov/versta-2024/internal/config"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Auth is what the chat client needs from the auth client.
type Auth = client.CredentialKeeper

var errChatTokenExpired = errors.New("chat token expired")

// Client is one chat participant. Connect and Disconnect are serialised;
// inbound messages are delivered to the callback one at a time, in arrival
// order, from the channel's reader goroutine.
type Client struct {
	api       *client.ChatAPI
	auth      Auth
	dialer    *websocket.Dialer
	ws        config.WebSocketConfig
	reconnect config.ReconnectConfig
	logger    zerolog.Logger

	lifecycle sync.Mutex // serialises Connect and Disconnect

	mu      sync.Mutex
	state   State
	session domain.ChatSession
	ch      *channel
}

func NewClient(api *client.ChatAPI, auth Auth, ws config.WebSocketConfig, reconnect config.ReconnectConfig) *Client {
	ws = withSocketDefaults(ws)
	return &Client{
		api:  api,
		auth: auth,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: ws.HandshakeTimeout,
		},
		ws:        ws,
		reconnect: reconnect,
		logger:    log.L().With().Str(log.FieldComponent, "chat").Logger(),
	}
}

func withSocketDefaults(ws config.WebSocketConfig) config.WebSocketConfig {
	if ws.HandshakeTimeout <= 0 {
		ws.HandshakeTimeout = 10 * time.Second
	}
	if ws.PingInterval <= 0 {
		ws.PingInterval = 30 * time.Second
	}
	if ws.PongWait <= ws.PingInterval {
		ws.PongWait = 2 * ws.PingInterval
	}
	if ws.WriteWait <= 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.MaxMessageSize <= 0 {
		ws.MaxMessageSize = 64 << 10
	}
	return ws
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ChatterID is the identity negotiated by the last successful preflight.
func (c *Client) ChatterID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ChatterID
}

// Preflight negotiates a chatter identity and chat token.
func (c *Client) Preflight(ctx context.Context) error {
	s, err := c.api.Preflight(ctx)
	if err != nil {
		return fmt.Errorf("chat preflight: %w", err)
	}

	c.mu.Lock()
	c.session = s
	if c.state == StateUninitialized {
		c.state = StateReady
	}
	c.mu.Unlock()

	c.logger.Debug().Int(log.FieldChatterID, s.ChatterID).Msg("chat session negotiated")
	return nil
}

// Connect opens the channel to counterpartID, or to the support chat when it
// is 0. Any channel already open is closed first and its reader has stopped
// by the time the new one is dialled.
func (c *Client) Connect(ctx context.Context, onMessage func(domain.Message), counterpartID int) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.closeChannel()

	c.mu.Lock()
	needsPreflight := c.session.IsZero()
	c.state = StateConnecting
	c.mu.Unlock()

	if needsPreflight {
		if err := c.Preflight(ctx); err != nil {
			c.settle()
			return err
		}
	}

	conn, err := c.dial(ctx, counterpartID)
	if errors.Is(err, errChatTokenExpired) {
		if err = c.Preflight(ctx); err == nil {
			conn, err = c.dial(ctx, counterpartID)
		}
	}
	if err != nil {
		c.settle()
		return err
	}

	ch := newChannel(conn, counterpartID, onMessage)

	c.mu.Lock()
	c.ch = ch
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info().
		Int(log.FieldChatterID, c.ChatterID()).
		Int(log.FieldCounterpart, counterpartID).
		Msg("chat channel open")

	go c.run(ch)
	return nil
}

// Send writes text to the open channel. Without one it does nothing.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	ch := c.ch
	connected := c.state == StateConnected
	c.mu.Unlock()

	if ch == nil || !connected {
		c.logger.Debug().Msg("send dropped, chat channel is not open")
		return nil
	}

	if err := ch.write(text, c.ws.WriteWait); err != nil {
		c.logger.Warn().Err(err).Msg("chat send failed")
		return fmt.Errorf("%w: %v", domain.ErrChannel, err)
	}
	return nil
}

// Disconnect closes the channel and stops any reconnection in progress.
func (c *Client) Disconnect() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.closeChannel() {
		c.logger.Info().Msg("chat channel closed")
	}
	c.settle()
	return nil
}

// Reset closes the channel and forgets the negotiated session, so the next
// Connect runs preflight for whoever is logged in by then.
func (c *Client) Reset() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.closeChannel()

	c.mu.Lock()
	c.session = domain.ChatSession{}
	c.state = StateUninitialized
	c.mu.Unlock()
	return nil
}

func (c *Client) ListMessages(ctx context.Context, counterpartID int) ([]domain.Message, error) {
	return c.api.ListMessages(ctx, counterpartID)
}

func (c *Client) UnreadCount(ctx context.Context, counterpartID int) (int, error) {
	return c.api.UnreadCount(ctx, counterpartID)
}

func (c *Client) MarkAllRead(ctx context.Context, counterpartID int) error {
	return c.api.MarkAllRead(ctx, counterpartID)
}

func (c *Client) ListChatters(ctx context.Context) ([]domain.Chatter, error) {
	return c.api.ListChatters(ctx)
}

// closeChannel detaches the current channel, stops it and waits for its
// goroutine. It reports whether there was one.
func (c *Client) closeChannel() bool {
	c.mu.Lock()
	ch := c.ch
	c.ch = nil
	c.mu.Unlock()

	if ch == nil {
		return false
	}
	ch.close(c.ws.WriteWait)
	<-ch.done
	return true
}

// settle moves a client without an open channel to its resting state.
func (c *Client) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return
	}
	if c.session.IsZero() {
		c.state = StateUninitialized
	} else {
		c.state = StateReady
	}
}

// setStateFor changes the state only while ch is still the current channel.
func (c *Client) setStateFor(ch *channel, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == ch {
		c.state = s
	}
}

func (c *Client) socketURL(ctx context.Context, counterpartID int) (string, error) {
	u, err := url.Parse(c.api.BaseURL())
	if err != nil {
		return "", fmt.Errorf("invalid chat server address: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	c.mu.Lock()
	token := c.session.ChatToken
	c.mu.Unlock()

	q := url.Values{"t": {token}}
	base := strings.TrimRight(u.Path, "/")
	u.Path = base + "/api/chat"
	if counterpartID != 0 {
		u.Path = base + "/api/admin/chat"
		q.Set("with", strconv.Itoa(counterpartID))
		q.Set("jwt", string(c.auth.EnsureCredential(ctx)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, counterpartID int) (*websocket.Conn, error) {
	target, err := c.socketURL(ctx, counterpartID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusPreconditionRequired:
				return nil, errChatTokenExpired
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %w", domain.ErrChannel, &domain.RemoteError{
					Status: resp.StatusCode,
					Code:   strconv.Itoa(resp.StatusCode),
				})
			}
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrChannel, err)
	}

	conn.SetReadLimit(c.ws.MaxMessageSize)
	return conn, nil
}

// run reads the channel until it is closed, reconnecting when the socket
// breaks underneath.
func (c *Client) run(ch *channel) {
	defer close(ch.done)

	for {
		err := c.readLoop(ch)
		if ch.stopped() {
			return
		}

		c.logger.Warn().Err(err).
			Int(log.FieldCounterpart, ch.counterpart).
			Str(log.FieldChatState, StateConnecting.String()).
			Msg("chat channel lost")
		c.setStateFor(ch, StateConnecting)

		conn, err := c.redial(ch)
		if err != nil {
			if !ch.stopped() {
				c.logger.Error().Err(err).Msg("chat reconnect gave up")
				c.mu.Lock()
				if c.ch == ch {
					c.ch = nil
				}
				c.mu.Unlock()
				c.settle()
			}
			return
		}

		if !ch.swap(conn) {
			return
		}
		c.setStateFor(ch, StateConnected)
		c.logger.Info().Int(log.FieldCounterpart, ch.counterpart).Msg("chat channel restored")
	}
}

// readLoop owns conn and closes it on return; a failed read leaves the
// socket open otherwise.
func (c *Client) readLoop(ch *channel) error {
	conn := ch.current()
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)

	conn.SetReadDeadline(time.Now().Add(c.ws.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.ws.PongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.ws.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.ws.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go c.keepAlive(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrChannel, err)
		}

		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("malformed chat frame skipped")
			continue
		}
		if ch.onMessage != nil {
			ch.onMessage(msg)
		}
	}
}

func (c *Client) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.ws.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.ws.WriteWait)); err != nil {
				return
			}
		}
	}
}

// redial runs preflight and dial under exponential backoff until it
// succeeds, the attempts run out or the channel is closed. Only a 403 stops
// it early; a 401 is retried since the next preflight refreshes the
// credential.
func (c *Client) redial(ch *channel) (*websocket.Conn, error) {
	var conn *websocket.Conn
	attempt := 0

	op := func() error {
		attempt++
		if err := c.Preflight(ch.ctx); err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				return backoff.Permanent(err)
			}
			return err
		}

		var err error
		conn, err = c.dial(ch.ctx, ch.counterpart)
		if errors.Is(err, domain.ErrForbidden) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debug().Err(err).Int(log.FieldAttempt, attempt).Dur("retry_in", next).Msg("chat reconnect failed")
	}

	if err := backoff.RetryNotify(op, c.newBackOff(ch.ctx), notify); err != nil {
		return nil, err
	}

	if ch.stopped() {
		conn.Close()
		return nil, ch.ctx.Err()
	}
	return conn, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if c.reconnect.InitialInterval > 0 {
		eb.InitialInterval = c.reconnect.InitialInterval
	}
	if c.reconnect.MaxInterval > 0 {
		eb.MaxInterval = c.reconnect.MaxInterval
	}
	if c.reconnect.Multiplier > 0 {
		eb.Multiplier = c.reconnect.Multiplier
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if c.reconnect.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.reconnect.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}
