// Package digest holds the hex digest primitives shared by password hashing
// and credential fingerprints in logs.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// EqualHex compares two hex digests in constant time, ignoring case.
func EqualHex(a, b string) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Fingerprint returns a short, non-reversible tag for s, safe to log.
func Fingerprint(s string) string {
	return SHA256Hex(s)[:12]
}
