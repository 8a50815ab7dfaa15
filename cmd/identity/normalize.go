package identity

import (
	"strings"
	"unicode/utf8"
)

// Username length bounds in characters (runes).
const (
	MinUsernameLen = 3
	MaxUsernameLen = 20
)

// NormalizeUsername trims surrounding whitespace. Usernames stay case-sensitive.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// ValidUsernameLength reports whether a normalized username is 3-20 runes.
func ValidUsernameLength(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= MinUsernameLen && n <= MaxUsernameLen
}
