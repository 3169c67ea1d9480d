package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxMessageLength  = 4096 // Cloud API text body limit
	MaxRecipients     = 50   // per broadcast request
	MaxUsernameLength = 50
)

var phonePattern = regexp.MustCompile(`^\d{10,15}$`)

// ValidPhoneNumber checks a recipient number (digits only, 10-15 chars,
// international format without the plus).
func ValidPhoneNumber(s string) bool {
	return phonePattern.MatchString(s)
}

// ValidUsername checks a login username (alphanumeric + underscore + hyphen)
func ValidUsername(s string) bool {
	if s == "" || len(s) > MaxUsernameLength {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, s)
	return matched
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString safely truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
