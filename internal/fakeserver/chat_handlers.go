package fakeserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
	"github.com/AleksandrVishniakov/versta-2024/pkg/middleware"
	"github.com/AleksandrVishniakov/versta-2024/pkg/response"
)

const chatSessionMaxAge = 5 * 24 * time.Hour

// chatter resolves the chatter behind a request: the authenticated user's
// chatter, or the anonymous one tied to the chatSession cookie, which is
// created on first use.
func (s *Server) chatter(c *gin.Context) int {
	if claims := middleware.GetClaims(c); claims != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		u := s.upsertUser(claims.Email)
		return s.chatterForUser(u)
	}

	session, err := c.Cookie(chatSessionCookieKey)
	if err != nil || session == "" {
		session = uuid.New().String()
	}

	s.mu.Lock()
	id := s.chatterForSession(session)
	s.mu.Unlock()

	c.SetCookie(chatSessionCookieKey, session, int(chatSessionMaxAge.Seconds()), "/", "", false, true)
	return id
}

func (s *Server) preflight(c *gin.Context) {
	id := s.chatter(c)
	token := uuid.New().String()

	s.mu.Lock()
	s.chatTokens[token] = id
	s.mu.Unlock()

	response.JSON(c, domain.ChatSession{ChatterID: id, ChatToken: token})
}

// chatTokenOwner answers 428 for unknown chat tokens so the client runs
// preflight again.
func (s *Server) chatTokenOwner(c *gin.Context) (int, bool) {
	token := c.Query("t")
	if token == "" {
		response.BadRequest(c, "empty chat token parameter")
		return 0, false
	}

	s.mu.Lock()
	id, ok := s.chatTokens[token]
	s.mu.Unlock()

	if !ok {
		response.Error(c, http.StatusPreconditionRequired, "chat token expired")
		return 0, false
	}
	return id, true
}

func (s *Server) connectChat(c *gin.Context) {
	id, ok := s.chatTokenOwner(c)
	if !ok {
		return
	}
	s.serveSocket(c, id, SupportChatterID)
}

func (s *Server) connectAdminChat(c *gin.Context) {
	token := c.Query("jwt")
	if token == "" {
		response.Unauthorized(c, "no jwt token provided")
		return
	}
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	if claims.Status != middleware.StatusAdmin {
		response.Forbidden(c, "admin only")
		return
	}

	with, ok := response.IntQuery(c, "with")
	if !ok {
		return
	}
	id, ok := s.chatTokenOwner(c)
	if !ok {
		return
	}
	s.serveSocket(c, id, with)
}

func (s *Server) serveSocket(c *gin.Context, chatterID, counterpartID int) {
	l := log.Ctx(c.Request.Context())

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(uuid.New().String(), chatterID, conversationKey(chatterID, counterpartID), s.hub, conn)
	s.hub.Register(client)

	l.Debug().
		Int(log.FieldChatterID, chatterID).
		Int(log.FieldCounterpart, counterpartID).
		Msg("chat socket attached")

	go client.WritePump()
	go client.ReadPump(func(wc *wsClient, data []byte) {
		s.Post(wc.ChatterID, counterpartID, string(data))
	})
}

func (s *Server) deliver(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.hub.Broadcast(conversationKey(msg.SenderID, msg.ReceiverID), data)
}

func (s *Server) listMessages(c *gin.Context) {
	s.messagesWith(c, s.chatter(c), SupportChatterID)
}

func (s *Server) unreadCount(c *gin.Context) {
	s.unreadWith(c, s.chatter(c), SupportChatterID)
}

func (s *Server) readAll(c *gin.Context) {
	s.readAllWith(c, s.chatter(c), SupportChatterID)
}

func (s *Server) listChatters(c *gin.Context) {
	s.mu.Lock()
	out := s.senders(SupportChatterID)
	s.mu.Unlock()

	response.JSON(c, out)
}

func (s *Server) adminMessages(c *gin.Context) {
	if with, ok := response.IntQuery(c, "with"); ok {
		s.messagesWith(c, SupportChatterID, with)
	}
}

func (s *Server) adminUnreadCount(c *gin.Context) {
	if with, ok := response.IntQuery(c, "with"); ok {
		s.unreadWith(c, SupportChatterID, with)
	}
}

func (s *Server) adminReadAll(c *gin.Context) {
	if with, ok := response.IntQuery(c, "with"); ok {
		s.readAllWith(c, SupportChatterID, with)
	}
}

func (s *Server) messagesWith(c *gin.Context, me, other int) {
	s.mu.Lock()
	out := s.conversation(me, other)
	s.mu.Unlock()

	response.JSON(c, out)
}

func (s *Server) unreadWith(c *gin.Context, me, other int) {
	s.mu.Lock()
	n := s.unread(me, other)
	s.mu.Unlock()

	response.JSON(c, n)
}

func (s *Server) readAllWith(c *gin.Context, me, other int) {
	s.mu.Lock()
	s.markRead(me, other)
	s.mu.Unlock()

	c.Status(http.StatusOK)
}

// Unread reports how many messages from one chatter the other has not read.
func (s *Server) Unread(to, from int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread(to, from)
}

// ChatterOf returns the chatter id of a registered user.
func (s *Server) ChatterOf(email string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return 0, false
	}
	if u.Role == domain.RoleAdmin {
		return SupportChatterID, true
	}
	id, ok := s.chattersByUser[u.ID]
	return id, ok
}
