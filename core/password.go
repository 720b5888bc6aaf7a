package core

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return trimmed, nil
}

// NormalizePhone strips formatting from an optional phone number.
// The result is either empty or a leading '+' followed by 8 to 15 digits.
func NormalizePhone(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "", nil
	}
	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: invalid phone number", ErrValidation)
		}
	}
	out := b.String()
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	if digits := len(out) - 1; digits < 8 || digits > 15 {
		return "", fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	return out, nil
}

// ValidatePassword enforces the registration password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be <= %d characters", ErrValidation, maxPasswordLength)
	}

	var (
		hasUpper bool
		hasLower bool
		hasDigit bool
		hasPunct bool
	)

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasPunct = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasPunct {
		return fmt.Errorf("%w: password must include upper, lower, digit, and symbol", ErrValidation)
	}
	return nil
}
