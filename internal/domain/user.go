package domain

import "time"

// Credential is the opaque bearer token attached to authenticated calls.
type Credential string

func (c Credential) IsZero() bool {
	return c == ""
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserProfile is a snapshot of the authenticated user.
type UserProfile struct {
	ID              int       `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            Role      `json:"status"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (u *UserProfile) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type UpdateNameRequest struct {
	Name string `json:"name"`
}
