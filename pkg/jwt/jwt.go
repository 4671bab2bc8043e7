package jwt

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID int    `json:"userId"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Type   string `json:"type"` // "access" or "refresh"
	// Generation ties access tokens to the manager's current generation;
	// bumping it expires every access token issued before.
	Generation int `json:"gen,omitempty"`
}

// Manager issues and validates HS256 token pairs.
type Manager struct {
	secret          []byte
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string

	generation int
	mu         sync.RWMutex
}

// NewManager creates a new JWT manager.
func NewManager(secret []byte, accessDuration, refreshDuration time.Duration, issuer string) *Manager {
	return &Manager{
		secret:          secret,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
		issuer:          issuer,
	}
}

// GenerateTokenPair creates access and refresh tokens.
func (m *Manager) GenerateTokenPair(userID int, email, status string) (accessToken, refreshToken string, err error) {
	now := time.Now()

	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	accessToken, err = m.signToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessDuration)),
		},
		UserID:     userID,
		Email:      email,
		Status:     status,
		Type:       TypeAccess,
		Generation: gen,
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err = m.signToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshDuration)),
		},
		UserID: userID,
		Email:  email,
		Status: status,
		Type:   TypeRefresh,
	})
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type == TypeAccess {
		m.mu.RLock()
		stale := claims.Generation != m.generation
		m.mu.RUnlock()
		if stale {
			return nil, ErrExpiredToken
		}
	}

	return claims, nil
}

// ValidateAccessToken validates a token and requires it to be an access token.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens creates new token pair from a valid refresh token.
func (m *Manager) RefreshTokens(refreshTokenString string) (accessToken, refreshToken string, err error) {
	claims, err := m.ValidateToken(refreshTokenString)
	if err != nil {
		return "", "", err
	}

	if claims.Type != TypeRefresh {
		return "", "", ErrInvalidToken
	}

	return m.GenerateTokenPair(claims.UserID, claims.Email, claims.Status)
}

// ExpireAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (m *Manager) ExpireAccessTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
}

func (m *Manager) signToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}
