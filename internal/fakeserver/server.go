// Package fakeserver is an in-process stand-in for the auth, orders and
// chat servers. It implements the HTTP and socket contract the clients rely
// on and exposes hooks that tests use to expire credentials or drop sockets.
package fakeserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/jwt"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
	"github.com/AleksandrVishniakov/versta-2024/pkg/middleware"
)

const (
	refreshCookieKey     = "refreshToken"
	chatSessionCookieKey = "chatSession"

	// SupportChatterID is the chatter every admin speaks as.
	SupportChatterID = 1

	DefaultCode = "123456"
)

type Options struct {
	// Code is the verification code "mailed" for every request.
	Code            string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Logger          zerolog.Logger
}

type order struct {
	domain.Order
	email string
	code  string
}

type chatter struct {
	domain.Chatter
}

type Server struct {
	opts     Options
	tokens   *jwt.Manager
	auth     *middleware.AuthMiddleware
	hub      *Hub
	upgrader websocket.Upgrader

	users             map[string]*domain.UserProfile // email -> user
	admins            map[string]bool
	codes             map[string]string // email -> pending login code
	orders            map[int]*order
	chatters          map[int]*chatter
	chattersByUser    map[int]int
	chattersBySession map[string]int
	chatTokens        map[string]int
	messages          []domain.Message
	calls             map[string]int

	nextUserID    int
	nextOrderID   int
	nextChatterID int
	nextMessageID int

	cancel context.CancelFunc
	mu     sync.Mutex
}

func New(opts Options) *Server {
	if opts.Code == "" {
		opts.Code = DefaultCode
	}
	if opts.AccessTokenTTL == 0 {
		opts.AccessTokenTTL = 15 * time.Minute
	}
	if opts.RefreshTokenTTL == 0 {
		opts.RefreshTokenTTL = 24 * time.Hour
	}

	tokens := jwt.NewManager([]byte(uuid.New().String()), opts.AccessTokenTTL, opts.RefreshTokenTTL, "landing-fakeserver")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		tokens: tokens,
		auth:   middleware.NewAuthMiddleware(tokens),
		hub:    NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		users:             make(map[string]*domain.UserProfile),
		admins:            make(map[string]bool),
		codes:             make(map[string]string),
		orders:            make(map[int]*order),
		chatters:          make(map[int]*chatter),
		chattersByUser:    make(map[int]int),
		chattersBySession: make(map[string]int),
		chatTokens:        make(map[string]int),
		calls:             make(map[string]int),
		nextUserID:        1,
		nextOrderID:       1,
		nextChatterID:     SupportChatterID + 1,
		nextMessageID:     1,
		cancel:            cancel,
	}
	s.chatters[SupportChatterID] = &chatter{Chatter: domain.Chatter{ID: SupportChatterID}}

	go s.hub.Run(ctx)

	return s
}

// Handler returns the gin engine serving every route of the three servers.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), log.GinMiddleware(s.opts.Logger), s.countCalls())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	{
		// auth server
		api.GET("/auth", s.requestLogin)
		api.GET("/:email/verify", s.verifyEmail)
		api.GET("/tokens/refresh", s.refreshTokens)
		api.GET("/user/my_profile", s.auth.RequireAuth(), s.myProfile)
		api.GET("/user/email/:email", s.auth.RequireAuth(), middleware.RequireAdmin(), s.profileByEmail)
		api.PUT("/user/name", s.auth.RequireAuth(), s.updateName)

		// orders server
		api.POST("/order", s.createOrder)
		api.GET("/order/:id/verify", s.verifyOrder)
		api.GET("/orders", s.auth.RequireAuth(), s.listOrders)
		api.GET("/order/:id", s.auth.RequireAuth(), s.getOrder)
		api.DELETE("/order/:id", s.auth.RequireAuth(), s.deleteOrder)

		// chat server
		api.GET("/chat/preflight", s.auth.OptionalAuth(), s.preflight)
		api.GET("/chat", s.connectChat)
		api.GET("/messages", s.auth.OptionalAuth(), s.listMessages)
		api.GET("/messages/unread", s.auth.OptionalAuth(), s.unreadCount)
		api.GET("/messages/read_all", s.auth.OptionalAuth(), s.readAll)

		admin := api.Group("/admin")
		admin.GET("/chat", s.connectAdminChat)
		admin.Use(s.auth.RequireAuth(), middleware.RequireAdmin())
		{
			admin.GET("/clients", s.listChatters)
			admin.GET("/messages", s.adminMessages)
			admin.GET("/messages/unread", s.adminUnreadCount)
			admin.GET("/messages/read_all", s.adminReadAll)
		}
	}
}

// Close stops the socket hub and drops every connection.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) countCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := callKey(c.Request.Method, c.FullPath())
		s.mu.Lock()
		s.calls[key]++
		s.mu.Unlock()
		c.Next()
	}
}

func callKey(method, route string) string {
	return method + " " + route
}

// Calls reports how many requests hit a route, e.g. Calls("GET", "/api/tokens/refresh").
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[callKey(method, route)]
}

// AddAdmin registers email as an admin, creating the user when needed.
func (s *Server) AddAdmin(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[email] = true
	if u, ok := s.users[email]; ok {
		u.Role = domain.RoleAdmin
	}
}

// ExpireAccessTokens makes every issued access token fail with 401.
func (s *Server) ExpireAccessTokens() {
	s.tokens.ExpireAccessTokens()
}

// ExpireChatTokens forgets every chat token so sockets need a new preflight.
func (s *Server) ExpireChatTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatTokens = make(map[string]int)
}

// DropConnections closes every open socket.
func (s *Server) DropConnections() {
	s.hub.DropAll()
}

// Connections returns the number of sockets attached to the conversation of a and b.
func (s *Server) Connections(a, b int) int {
	return s.hub.Count(a, b)
}

// User returns a copy of the stored user.
func (s *Server) User(email string) (domain.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return domain.UserProfile{}, false
	}
	return *u, true
}

// Post stores a message from one chatter to another and delivers it to
// every socket of the conversation, as if it came through a socket.
func (s *Server) Post(senderID, receiverID int, text string) domain.Message {
	msg := s.storeMessage(senderID, receiverID, text)
	s.deliver(msg)
	return msg
}

// upsertUser must be called with s.mu held.
func (s *Server) upsertUser(email string) *domain.UserProfile {
	if u, ok := s.users[email]; ok {
		return u
	}

	role := domain.RoleUser
	if s.admins[email] {
		role = domain.RoleAdmin
	}

	u := &domain.UserProfile{
		ID:        s.nextUserID,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.nextUserID++
	s.users[email] = u
	return u
}

// chatterForUser must be called with s.mu held.
func (s *Server) chatterForUser(u *domain.UserProfile) int {
	if u.Role == domain.RoleAdmin {
		return SupportChatterID
	}
	if id, ok := s.chattersByUser[u.ID]; ok {
		return id
	}
	id := s.newChatter()
	s.chatters[id].UserID = u.ID
	s.chattersByUser[u.ID] = id
	return id
}

// chatterForSession must be called with s.mu held.
func (s *Server) chatterForSession(session string) int {
	if id, ok := s.chattersBySession[session]; ok {
		return id
	}
	id := s.newChatter()
	s.chatters[id].TempSession = session
	s.chattersBySession[session] = id
	return id
}

func (s *Server) newChatter() int {
	id := s.nextChatterID
	s.nextChatterID++
	s.chatters[id] = &chatter{Chatter: domain.Chatter{ID: id}}
	return id
}

func (s *Server) storeMessage(senderID, receiverID int, text string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		ID:           s.nextMessageID,
		Text:         text,
		SenderID:     senderID,
		ReceiverID:   receiverID,
		ReadBySender: true,
		CreatedAt:    time.Now().UTC(),
	}
	s.nextMessageID++
	s.messages = append(s.messages, msg)
	return msg
}

// conversation must be called with s.mu held.
func (s *Server) conversation(a, b int) []domain.Message {
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out
}

// unread counts messages sent by from to to that to has not read.
// Must be called with s.mu held.
func (s *Server) unread(to, from int) int {
	n := 0
	for _, m := range s.messages {
		if m.SenderID == from && m.ReceiverID == to && !m.ReadByReceiver {
			n++
		}
	}
	return n
}

// markRead must be called with s.mu held.
func (s *Server) markRead(to, from int) {
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == from && m.ReceiverID == to {
			m.ReadByReceiver = true
		}
	}
}

// senders lists the chatters that wrote to id, ordered by chatter id.
// Must be called with s.mu held.
func (s *Server) senders(id int) []domain.Chatter {
	seen := make(map[int]bool)
	out := make([]domain.Chatter, 0)
	for _, m := range s.messages {
		other := 0
		switch id {
		case m.ReceiverID:
			other = m.SenderID
		case m.SenderID:
			other = m.ReceiverID
		default:
			continue
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if ch, ok := s.chatters[other]; ok {
			c := ch.Chatter
			c.UnreadCount = s.unread(id, other)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("fakeserver(users=%d orders=%d chatters=%d messages=%d)",
		len(s.users), len(s.orders), len(s.chatters), len(s.messages))
}
