// Package throttle counts login requests in fixed windows.
package throttle

import "time"

const (
	// DefaultLimit is the number of requests admitted per window
	DefaultLimit = 5
	// DefaultWindow is the fixed window length
	DefaultWindow = time.Minute
)

// Config holds fixed-window tuning parameters.
type Config struct {
	Limit  int
	Window time.Duration
}

// WithDefaults fills zero fields
func (c Config) WithDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}
