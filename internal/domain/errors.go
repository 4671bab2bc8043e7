package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrChannel       = errors.New("chat channel failure")
	ErrNotConnected  = errors.New("chat channel is not open")
	ErrNoChatSession = errors.New("chat session is not negotiated")
	ErrInvalidCode   = errors.New("verification code must be 6 characters")
	ErrEmptyEmail    = errors.New("empty email")
	ErrEmptyName     = errors.New("empty name")
)

// VerificationCodeLength is the length of the one-time codes sent by email.
const VerificationCodeLength = 6

// RemoteError is a non-success response of one of the remote servers.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Code, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports a 401 response as ErrUnauthorized and a 403 one as ErrForbidden.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// ValidateCode checks a one-time verification code before it is sent.
func ValidateCode(code string) error {
	if len(code) != VerificationCodeLength {
		return ErrInvalidCode
	}
	return nil
}
