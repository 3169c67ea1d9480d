package http

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidPhoneNumber(t *testing.T) {
	valid := []string{"6281234567890", "1234567890", "628111222333444"}
	for _, n := range valid {
		require.True(t, ValidPhoneNumber(n), "expected valid: %s", n)
	}

	invalid := []string{"", "123456789", "+6281234567890", "62812345678901234", "62-8123", "orange"}
	for _, n := range invalid {
		require.False(t, ValidPhoneNumber(n), "expected invalid: %s", n)
	}
}

func TestValidUsername(t *testing.T) {
	require.True(t, ValidUsername("admin"))
	require.True(t, ValidUsername("bot_admin-2"))
	require.False(t, ValidUsername(""))
	require.False(t, ValidUsername("user name"))
	require.False(t, ValidUsername("admin@site"))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "hello", SanitizeString("hel\x00lo"))
	require.Equal(t, "halo", SanitizeString("halo"))
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "abc", TruncateString("abc", 10))
	require.Equal(t, "abc", TruncateString("abcdef", 3))
}
