package phiguard

import "fmt"

// Sealed payload layout: nonce(12) || ciphertext(N) || tag(16).
// The same framing is used for every supported algorithm.
const (
	// nonceSize is the nonce size for AES-GCM and ChaCha20-Poly1305 (12 bytes).
	nonceSize = 12

	// tagSize is the authentication tag size (16 bytes).
	tagSize = 16

	// Overhead is the number of bytes a sealed payload adds to its plaintext.
	Overhead = nonceSize + tagSize

	// MaxPayloadSize is the largest plaintext accepted for encryption (1 GiB).
	MaxPayloadSize = 1 << 30
)

// splitSealed returns the nonce and the ciphertext+tag body of a sealed payload.
// The returned slices alias sealed.
func splitSealed(sealed []byte) (nonce, body []byte, err error) {
	if len(sealed) < Overhead {
		return nil, nil, fmt.Errorf("%w: sealed payload too short (%d bytes)", ErrAuthenticationFailed, len(sealed))
	}
	return sealed[:nonceSize], sealed[nonceSize:], nil
}
