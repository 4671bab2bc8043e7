package fakeserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/jwt"
	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
	"github.com/AleksandrVishniakov/versta-2024/pkg/middleware"
	"github.com/AleksandrVishniakov/versta-2024/pkg/response"
)

func (s *Server) requestLogin(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email is required")
		return
	}

	s.mu.Lock()
	u := s.upsertUser(email)
	s.codes[email] = s.opts.Code
	id := u.ID
	s.mu.Unlock()

	l := log.Ctx(c.Request.Context())
	l.Debug().Str(log.FieldEmail, email).Msg("login code issued")
	response.JSON(c, id)
}

func (s *Server) verifyEmail(c *gin.Context) {
	email := c.Param("email")
	code := c.Query("code")

	s.mu.Lock()
	pending, ok := s.codes[email]
	u, exists := s.users[email]
	if !ok || !exists || pending != code {
		s.mu.Unlock()
		response.BadRequest(c, "invalid verification code")
		return
	}
	delete(s.codes, email)
	u.IsEmailVerified = true
	user := *u
	s.mu.Unlock()

	s.issueTokens(c, user)
}

func (s *Server) refreshTokens(c *gin.Context) {
	refresh, err := c.Cookie(refreshCookieKey)
	if err != nil || refresh == "" {
		response.Unauthorized(c, "missing refresh token")
		return
	}

	claims, err := s.tokens.ValidateToken(refresh)
	if err != nil || claims.Type != jwt.TypeRefresh {
		response.Unauthorized(c, "invalid refresh token")
		return
	}

	user, ok := s.User(claims.Email)
	if !ok {
		response.Unauthorized(c, "unknown user")
		return
	}

	s.issueTokens(c, user)
}

// issueTokens sets the refresh cookie and answers with the access token
// as a bare JSON string.
func (s *Server) issueTokens(c *gin.Context, u domain.UserProfile) {
	access, refresh, err := s.tokens.GenerateTokenPair(u.ID, u.Email, string(u.Role))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.SetCookie(refreshCookieKey, refresh, int(s.opts.RefreshTokenTTL.Seconds()), "/", "", false, true)
	response.JSON(c, access)
}

func (s *Server) myProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)

	u, ok := s.User(claims.Email)
	if !ok {
		response.NotFound(c, "user not found")
		return
	}
	response.JSON(c, u)
}

func (s *Server) profileByEmail(c *gin.Context) {
	u, ok := s.User(c.Param("email"))
	if !ok {
		response.NotFound(c, "user not found")
		return
	}
	response.JSON(c, u)
}

func (s *Server) updateName(c *gin.Context) {
	var req domain.UpdateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	claims := middleware.GetClaims(c)

	s.mu.Lock()
	u, ok := s.users[claims.Email]
	if ok {
		u.Name = req.Name
	}
	s.mu.Unlock()

	if !ok {
		response.NotFound(c, "user not found")
		return
	}
	c.Status(http.StatusOK)
}
