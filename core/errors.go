package core

import "errors"

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while password login is suspended for an account
	ErrAccountLocked        = errors.New("account locked")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrDuplicateAccount     = errors.New("account already exists")
	// ErrValidation marks malformed input; wrapped errors carry the detail
	ErrValidation      = errors.New("validation failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDeliveryFailure means the code was issued but could not be sent
	ErrDeliveryFailure = errors.New("code delivery failed")
	ErrInternal        = errors.New("internal failure")
	// ErrNotFound is used by stores; the flow never surfaces it to callers
	ErrNotFound = errors.New("not found")
)
