package httpclient

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// defaultThrottleWindow is the cool-down during which a repeat of the
// same error (status + URL) is not logged again.
const defaultThrottleWindow = 30 * time.Second

// logThrottle deduplicates diagnostic logging of identical repeated
// errors.
type logThrottle struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	window time.Duration
	last   map[string]time.Time
}

func newLogThrottle(clock clockwork.Clock, window time.Duration) *logThrottle {
	return &logThrottle{
		clock:  clock,
		window: window,
		last:   make(map[string]time.Time),
	}
}

// allow reports whether this error key may be logged now, and if so
// records the log time.
func (t *logThrottle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[key] = now
	return true
}
