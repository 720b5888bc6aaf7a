package notatapp

import (
	"errors"
	"fmt"

	"github.com/MishC/NotatApp/core"
)

// APIError is a non-2xx answer from the auth service
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notatapp: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notatapp: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap lets callers match server errors with errors.Is against core sentinels
func (e *APIError) Unwrap() error {
	if err, ok := errorCodes[e.Code]; ok {
		return err
	}
	return core.ErrInternal
}

var errorCodes = map[string]error{
	"duplicate_account":   core.ErrDuplicateAccount,
	"validation_failed":   core.ErrValidation,
	"invalid_credentials": core.ErrInvalidCredentials,
	"account_locked":      core.ErrAccountLocked,
	"rate_limited":        core.ErrRateLimited,
	"invalid_code":        core.ErrInvalidOrExpiredCode,
	"unauthenticated":     core.ErrUnauthenticated,
	"delivery_failure":    core.ErrDeliveryFailure,
}

// ErrNoSession is returned when Verify has not yet stored a refresh session
var ErrNoSession = errors.New("notatapp: no refresh session")
