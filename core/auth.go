package core

import (
	"fmt"
	"strings"
	"time"
)

// Channel is the out-of-band route a one-time code travels through
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel normalizes a client supplied channel name.
// An empty value selects email.
func ParseChannel(raw string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ChannelEmail):
		return ChannelEmail, nil
	case string(ChannelSMS):
		return ChannelSMS, nil
	default:
		return "", fmt.Errorf("%w: unsupported channel %q", ErrValidation, raw)
	}
}

// Credential is the auth-relevant state of a registered account
type Credential struct {
	ID             string     // Subject identifier, also used as the flow id
	Email          string     // Normalized login email
	Phone          string     // Optional SMS destination
	PasswordHash   string     // Opaque to the auth flow
	FailedAttempts int        // Consecutive failed password checks
	LockoutUntil   *time.Time // Set while password login is suspended
	CreatedAt      time.Time
}

// Destination returns where a code for the given channel is delivered
func (c *Credential) Destination(channel Channel) (string, error) {
	switch channel {
	case ChannelEmail:
		if strings.TrimSpace(c.Email) == "" {
			return "", fmt.Errorf("%w: no email on file", ErrValidation)
		}
		return c.Email, nil
	case ChannelSMS:
		if strings.TrimSpace(c.Phone) == "" {
			return "", fmt.Errorf("%w: no phone on file", ErrValidation)
		}
		return c.Phone, nil
	default:
		return "", fmt.Errorf("%w: unsupported channel %q", ErrValidation, channel)
	}
}

// NewCredential carries the registration input handed to a CredentialStore
type NewCredential struct {
	Email    string
	Password string
	Phone    string
}

// Challenge is an in-flight second-factor verification attempt
type Challenge struct {
	SubjectID string    // Credential the code was issued for
	Channel   Channel   // Channel the code was delivered through
	Code      string    // One-time code
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Expired reports whether the challenge is no longer usable at now
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Session is the single active refresh grant of a credential
type Session struct {
	SubjectID string    // Owner of the session
	Token     string    // Opaque refresh token value
	ExpiresAt time.Time // Hard end of the refresh capability
}

// Expired reports whether the session is no longer usable at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AccessClaims is the verified content of an access token
type AccessClaims struct {
	ID        string    // Token identifier
	SubjectID string    // Credential the token was minted for
	Email     string    // Email at issuance time
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token stops being accepted
}
