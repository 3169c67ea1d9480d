package infrastructure

import (
	"sync"
	"time"
)

// RateLimiter enforces at most one accepted message per sender per window.
// A rejected call does not update the sender's timestamp, so a burst of
// rejected messages does not postpone recovery.
type RateLimiter struct {
	mu          sync.Mutex
	lastMessage map[string]time.Time
	window      time.Duration
	cleanupTick time.Duration

	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time // injectable for tests
}

// NewRateLimiter creates a per-sender limiter with the given window. Call
// Stop when the limiter is no longer needed.
func NewRateLimiter(window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		lastMessage: make(map[string]time.Time),
		window:      window,
		cleanupTick: 5 * time.Minute,
		done:        make(chan struct{}),
		now:         time.Now,
	}

	go rl.cleanup()

	return rl
}

// Stop terminates the background cleanup goroutine. Safe to call more than
// once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// IsLimited reports whether userID is inside its rate window. When the
// sender is not limited the current time is recorded as its last accepted
// message.
func (rl *RateLimiter) IsLimited(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.lastMessage[userID]; ok && now.Sub(last) < rl.window {
		return true
	}

	rl.lastMessage[userID] = now
	return false
}

// ActiveUsers returns the number of senders currently tracked.
func (rl *RateLimiter) ActiveUsers() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.lastMessage)
}

// Reset drops the state for a single sender.
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.lastMessage, userID)
}

// cleanup removes stale entries periodically so the map stays bounded.
// Runs until Stop is called.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for userID, last := range rl.lastMessage {
				if now.Sub(last) > 10*time.Minute {
					delete(rl.lastMessage, userID)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}
