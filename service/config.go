package service

import (
	"fmt"
	"time"
)

// ThrottleScope selects how login attempts are grouped into throttle windows
type ThrottleScope string

const (
	// ThrottleGlobal counts every login attempt against one shared window
	ThrottleGlobal ThrottleScope = "global"
	// ThrottleClient counts attempts per client IP
	ThrottleClient ThrottleScope = "client"
)

const (
	DefaultAccessTTL    = 15 * time.Minute
	DefaultSessionTTL   = 7 * 24 * time.Hour
	DefaultChallengeTTL = 5 * time.Minute
	DefaultFixedDevCode = "123456"
)

// Config is the behavior of the auth flow, fixed at construction
type Config struct {
	AccessTTL    time.Duration // Must match the tokenizer's access TTL
	SessionTTL   time.Duration
	ChallengeTTL time.Duration

	// EnforceSecondFactor false issues FixedDevCode instead of a random code.
	// Non-production only.
	EnforceSecondFactor bool
	FixedDevCode        string
	// ExposeCode returns the issued code in the login result
	ExposeCode bool

	// RotateOnRefresh replaces the refresh token value on every refresh.
	// The session expiry is never extended.
	RotateOnRefresh bool

	ThrottleScope ThrottleScope
}

// DefaultConfig returns the production behavior
func DefaultConfig() Config {
	return Config{
		AccessTTL:           DefaultAccessTTL,
		SessionTTL:          DefaultSessionTTL,
		ChallengeTTL:        DefaultChallengeTTL,
		EnforceSecondFactor: true,
		FixedDevCode:        DefaultFixedDevCode,
		ThrottleScope:       ThrottleClient,
	}
}

// Validate checks the config for inconsistencies
func (c Config) Validate() error {
	if c.AccessTTL <= 0 || c.SessionTTL <= 0 || c.ChallengeTTL <= 0 {
		return fmt.Errorf("ttls must be positive")
	}
	if c.AccessTTL >= c.SessionTTL {
		return fmt.Errorf("access ttl (%s) must be shorter than session ttl (%s)", c.AccessTTL, c.SessionTTL)
	}
	if !c.EnforceSecondFactor && c.FixedDevCode == "" {
		return fmt.Errorf("fixed dev code is required when the second factor is not enforced")
	}
	switch c.ThrottleScope {
	case ThrottleGlobal, ThrottleClient:
	default:
		return fmt.Errorf("unknown throttle scope %q", c.ThrottleScope)
	}
	return nil
}

// throttleKey maps a login attempt to its throttle window
func (c Config) throttleKey(clientIP string) string {
	if c.ThrottleScope == ThrottleClient && clientIP != "" {
		return "login:ip:" + clientIP
	}
	return "login"
}
