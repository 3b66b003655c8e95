package session

import (
	"sync"
	"time"
)

// throttleTable tracks destinations a session has already messaged. The
// first send to an unseen destination is delayed once; later sends to the
// same destination pass through immediately.
type throttleTable struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newThrottleTable() *throttleTable {
	return &throttleTable{seen: make(map[string]struct{})}
}

// FirstContact marks the destination and reports whether this is the first
// send to it within the session lifetime.
func (t *throttleTable) FirstContact(destination string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[destination]; ok {
		return false
	}
	t.seen[destination] = struct{}{}
	return true
}

// callTable deduplicates ringing events per caller for a cool-down window.
type callTable struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	active   map[string]time.Time
}

func newCallTable(cooldown time.Duration, now func() time.Time) *callTable {
	if now == nil {
		now = time.Now
	}
	return &callTable{
		cooldown: cooldown,
		now:      now,
		active:   make(map[string]time.Time),
	}
}

// ShouldHandle reports whether a ringing event from the caller is new. A
// repeat within the cool-down window is suppressed; entries expire on their
// own once the window passes.
func (c *callTable) ShouldHandle(caller string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if at, ok := c.active[caller]; ok && now.Sub(at) < c.cooldown {
		return false
	}
	for key, at := range c.active {
		if now.Sub(at) >= c.cooldown {
			delete(c.active, key)
		}
	}
	c.active[caller] = now
	return true
}
