package phiguard

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"unicode/utf8"
)

// DigestSize is the length of a hex digest string.
const DigestSize = sha256.Size * 2

// Digest returns the SHA-256 of b as 64 lowercase hex characters.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestString returns Digest of the UTF-8 bytes of s.
//
// If s is not valid UTF-8 the digest of the empty input is returned instead.
// Callers hashing arbitrary bytes should use Digest.
func DigestString(s string) string {
	if !utf8.ValidString(s) {
		return Digest(nil)
	}
	return Digest([]byte(s))
}

// Verify reports whether b hashes to expected.
func Verify(b []byte, expected string) bool {
	if len(expected) != DigestSize {
		return false
	}
	actual := Digest(b)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
