package ports

import (
	"context"
	"time"

	"github.com/MishC/NotatApp/core"
)

// CredentialStore owns account records, password hashing and the lockout policy.
// Lookups return core.ErrNotFound for unknown accounts.
type CredentialStore interface {
	Create(ctx context.Context, in core.NewCredential) (*core.Credential, error)
	FindByEmail(ctx context.Context, email string) (*core.Credential, error)
	FindByID(ctx context.Context, id string) (*core.Credential, error)
	VerifyPassword(ctx context.Context, id, plaintext string) (bool, error)
	IsLockedOut(ctx context.Context, id string) (bool, error)
	RecordFailedAttempt(ctx context.Context, id string) error
	ResetFailedAttempts(ctx context.Context, id string) error
}

// SessionStore keeps at most one refresh session per subject
type SessionStore interface {
	// Save overwrites any previous session of the subject
	Save(ctx context.Context, subjectID, token string, expiresAt time.Time) error
	// FindBySessionToken returns nil when no session holds the token
	FindBySessionToken(ctx context.Context, token string) (*core.Session, error)
	// Clear is idempotent
	Clear(ctx context.Context, subjectID string) error
}

// ChallengeStore persists one-time codes keyed by subject and channel
type ChallengeStore interface {
	// Put replaces any challenge for the same subject and channel
	Put(ctx context.Context, challenge core.Challenge) error
	// Get returns nil when nothing live is stored
	Get(ctx context.Context, subjectID string, channel core.Channel) (*core.Challenge, error)
	// Consume deletes the challenge only while it is still the one stored under its
	// subject and channel, and reports whether this call removed it
	Consume(ctx context.Context, challenge core.Challenge) (bool, error)
}
