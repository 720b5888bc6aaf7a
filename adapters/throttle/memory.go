package throttle

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryThrottle is a process-local fixed-window counter
type MemoryThrottle struct {
	cfg     Config
	windows map[string]*window
	mu      sync.Mutex
	nowFn   func() time.Time
}

// NewMemoryThrottle creates an in-memory throttle
func NewMemoryThrottle(cfg Config) *MemoryThrottle {
	return &MemoryThrottle{
		cfg:     cfg.WithDefaults(),
		windows: make(map[string]*window),
		nowFn:   time.Now,
	}
}

// SetClock overrides the time source
func (t *MemoryThrottle) SetClock(nowFn func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFn = nowFn
}

func (t *MemoryThrottle) Allow(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	w, ok := t.windows[key]
	if !ok || !now.Before(w.start.Add(t.cfg.Window)) {
		w = &window{start: now}
		t.windows[key] = w
	}
	w.count++

	// drop stale windows so per-client keys do not accumulate
	if len(t.windows) > 1024 {
		for k, other := range t.windows {
			if !now.Before(other.start.Add(t.cfg.Window)) {
				delete(t.windows, k)
			}
		}
	}

	return w.count <= t.cfg.Limit, nil
}
