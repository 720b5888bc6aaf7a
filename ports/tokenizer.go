package ports

import (
	"time"

	"github.com/MishC/NotatApp/core"
)

// Tokenizer mints and verifies the credentials handed to clients
type Tokenizer interface {
	// Access token operations
	IssueAccessToken(subjectID, email string) (token string, expiresAt time.Time, err error)
	ParseAccessToken(token string) (core.AccessClaims, error)

	// Refresh tokens are opaque lookup keys, never parsed
	IssueRefreshToken() (string, error)
}
