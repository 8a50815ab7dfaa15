package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// commonChatPasswords are rejected outright when RejectVeryWeak is set.
var commonChatPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {},
	"qwerty": {}, "qwerty123": {}, "abc123": {}, "letmein": {},
	"welcome": {}, "hello123": {}, "iloveyou": {},
	"chat123": {}, "chatroom": {}, "lobby123": {},
}

// Validate applies the registration policy. Lengths count runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && guessable(password):
		return ErrWeakPassword
	}
	return nil
}

// guessable catches the handful of shapes seen in throwaway chat accounts:
// one repeated character, short all-digit PINs, keyboard runs like "123456"
// or "abcdef", and a small denylist.
func guessable(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return true
	}
	if _, ok := commonChatPasswords[s]; ok {
		return true
	}
	if singleRune(s) || stepRun(s) {
		return true
	}
	return utf8.RuneCountInString(s) < 8 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

func singleRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}

// stepRun reports whether every rune is one above the previous ("12345", "abcdef").
func stepRun(s string) bool {
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	prev := rune(-1)
	for _, r := range s {
		if prev >= 0 && r != prev+1 {
			return false
		}
		prev = r
	}
	return true
}
