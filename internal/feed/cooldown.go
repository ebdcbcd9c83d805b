package feed

import (
	"sync"
	"time"
)

// Cooldown suspends feed calls for a fixed period after a rate-limit signal.
// The poll loop owns it; status readers may query it concurrently.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	until  time.Time
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period}
}

// Trip starts a cooldown at now and returns when it ends.
func (c *Cooldown) Trip(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = now.Add(c.period)
	return c.until
}

// Ready reports whether calls may proceed at now.
func (c *Cooldown) Ready(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !now.Before(c.until)
}

// Until returns the end of the current or last cooldown, zero if never tripped.
func (c *Cooldown) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}
