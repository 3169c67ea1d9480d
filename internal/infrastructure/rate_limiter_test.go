package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterFirstMessagePasses(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)
	t.Cleanup(rl.Stop)

	require.False(t, rl.IsLimited("628111"))
	require.True(t, rl.IsLimited("628111"))
}

func TestRateLimiterIndependentSenders(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)
	t.Cleanup(rl.Stop)

	require.False(t, rl.IsLimited("628111"))
	require.False(t, rl.IsLimited("628222"))
	require.True(t, rl.IsLimited("628111"))
	require.True(t, rl.IsLimited("628222"))
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)
	t.Cleanup(rl.Stop)

	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	require.False(t, rl.IsLimited("628111"))

	current = current.Add(4 * time.Second)
	require.True(t, rl.IsLimited("628111"))

	current = current.Add(2 * time.Second)
	require.False(t, rl.IsLimited("628111"))
}

func TestRateLimiterRejectionDoesNotExtendWindow(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)
	t.Cleanup(rl.Stop)

	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	require.False(t, rl.IsLimited("628111"))

	// Spamming inside the window must not push recovery further out.
	for i := 0; i < 10; i++ {
		current = current.Add(400 * time.Millisecond)
		require.True(t, rl.IsLimited("628111"))
	}

	current = current.Add(2 * time.Second) // 6s after the accepted message
	require.False(t, rl.IsLimited("628111"))
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)
	t.Cleanup(rl.Stop)

	require.False(t, rl.IsLimited("628111"))
	require.Equal(t, 1, rl.ActiveUsers())

	rl.Reset("628111")
	require.Equal(t, 0, rl.ActiveUsers())
	require.False(t, rl.IsLimited("628111"))
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(5 * time.Second)

	rl.Stop()
	rl.Stop()

	// Stopping only ends the cleanup goroutine; the limiter keeps working.
	require.False(t, rl.IsLimited("628111"))
	require.True(t, rl.IsLimited("628111"))
}
