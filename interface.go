// Package notatapp is a Go client for the NotatApp auth service.
package notatapp

import (
	"context"
	"time"
)

// Auth is the login lifecycle as seen from a client application
type Auth interface {
	Register(ctx context.Context, email, password, phone string) error

	// Login checks the password and starts a second-factor flow
	Login(ctx context.Context, email, password string, channel Channel) (*LoginFlow, error)

	// Verify completes the flow; the refresh session is kept in the cookie jar
	Verify(ctx context.Context, flow *LoginFlow, code string) (*AccessToken, error)

	Refresh(ctx context.Context) (*AccessToken, error)
	Logout(ctx context.Context, access *AccessToken) error
	Me(ctx context.Context, access *AccessToken) (*Identity, error)
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// LoginFlow identifies a pending second-factor challenge
type LoginFlow struct {
	FlowID  string  `json:"flowId"`
	Channel Channel `json:"channel"`
	Message string  `json:"message"`
	// Code is only set by servers running with the dev bypass
	Code string `json:"code,omitempty"`
}

type AccessToken struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// Expired reports whether the token should be refreshed before use at now
func (t *AccessToken) Expired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
