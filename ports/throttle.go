package ports

import "context"

// Throttle is a fixed-window request counter
type Throttle interface {
	// Allow counts one request against key and reports whether it fits the window
	Allow(ctx context.Context, key string) (bool, error)
}
