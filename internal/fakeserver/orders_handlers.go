package fakeserver

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/pkg/middleware"
	"github.com/AleksandrVishniakov/versta-2024/pkg/response"
)

func (s *Server) createOrder(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email is required")
		return
	}

	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	s.mu.Lock()
	u := s.upsertUser(email)
	o := &order{
		Order: domain.Order{
			ID:     s.nextOrderID,
			UserID: u.ID,
			Note:   req.Note,
			Status: domain.OrderStatusCreated,
		},
		email: email,
		code:  s.opts.Code,
	}
	s.nextOrderID++
	s.orders[o.ID] = o
	s.mu.Unlock()

	response.JSON(c, o.ID)
}

func (s *Server) verifyOrder(c *gin.Context) {
	id, ok := response.IntParam(c, "id")
	if !ok {
		return
	}
	email := c.Query("email")
	code := c.Query("code")

	s.mu.Lock()
	o, exists := s.orders[id]
	if !exists || o.email != email {
		s.mu.Unlock()
		response.NotFound(c, "order not found")
		return
	}
	if o.code != code {
		s.mu.Unlock()
		response.BadRequest(c, "invalid verification code")
		return
	}
	o.Status = domain.OrderStatusVerified
	u := s.users[email]
	u.IsEmailVerified = true
	user := *u
	s.mu.Unlock()

	s.issueTokens(c, user)
}

func (s *Server) listOrders(c *gin.Context) {
	claims := middleware.GetClaims(c)

	s.mu.Lock()
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.UserID == claims.UserID {
			out = append(out, o.Order)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	response.JSON(c, out)
}

// ownedOrder must be called with s.mu held.
func (s *Server) ownedOrder(c *gin.Context, id int) (*order, bool) {
	claims := middleware.GetClaims(c)
	o, ok := s.orders[id]
	if !ok || o.UserID != claims.UserID {
		return nil, false
	}
	return o, true
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := response.IntParam(c, "id")
	if !ok {
		return
	}

	s.mu.Lock()
	o, ok := s.ownedOrder(c, id)
	var out domain.Order
	if ok {
		out = o.Order
	}
	s.mu.Unlock()

	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	response.JSON(c, out)
}

func (s *Server) deleteOrder(c *gin.Context) {
	id, ok := response.IntParam(c, "id")
	if !ok {
		return
	}

	s.mu.Lock()
	_, ok = s.ownedOrder(c, id)
	if ok {
		delete(s.orders, id)
	}
	s.mu.Unlock()

	if !ok {
		response.NotFound(c, "order not found")
		return
	}
	c.Status(http.StatusOK)
}
