package phiguard

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies the AEAD used to seal payloads.
type Algorithm string

const (
	// AlgorithmAES256GCM is AES-256 in Galois/Counter Mode. It is the default.
	AlgorithmAES256GCM Algorithm = "aes-256-gcm"

	// AlgorithmChaCha20Poly1305 is ChaCha20-Poly1305 (RFC 8439).
	AlgorithmChaCha20Poly1305 Algorithm = "chacha20-poly1305"
)

// ParseAlgorithm parses an algorithm name, case-insensitively.
// An empty name selects AlgorithmAES256GCM.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", AlgorithmAES256GCM:
		return AlgorithmAES256GCM, nil
	case AlgorithmChaCha20Poly1305:
		return AlgorithmChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("phiguard: unsupported algorithm %q", name)
	}
}

// Cipher performs authenticated encryption and decryption of byte and string payloads.
// It holds no key state and is safe for concurrent use.
type Cipher struct {
	alg    Algorithm
	random io.Reader
}

// NewCipher creates a Cipher for the given algorithm.
func NewCipher(alg Algorithm) (*Cipher, error) {
	alg, err := ParseAlgorithm(string(alg))
	if err != nil {
		return nil, err
	}
	return &Cipher{alg: alg, random: rand.Reader}, nil
}

// Algorithm returns the AEAD algorithm used by c.
func (c *Cipher) Algorithm() Algorithm {
	return c.alg
}

// aead builds the AEAD for key. The key material is only held in unprotected
// memory for the duration of this call.
func (c *Cipher) aead(key *Key) (cipher.AEAD, error) {
	buf, err := key.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	switch c.alg {
	case AlgorithmChaCha20Poly1305:
		aead, err := chacha20poly1305.New(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("phiguard: failed to create ChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		block, err := aes.NewCipher(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("phiguard: failed to create AES cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("phiguard: failed to create GCM: %w", err)
		}
		return aead, nil
	}
}

// EncryptBytes seals plaintext with key, returning nonce || ciphertext || tag.
//
// Plaintexts larger than MaxPayloadSize are rejected with ErrPayloadTooLarge
// before the key is touched. A fresh random nonce is drawn for every call.
// Empty plaintext produces a valid Overhead-byte payload.
func (c *Cipher) EncryptBytes(plaintext []byte, key *Key) ([]byte, error) {
	if len(plaintext) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(plaintext), MaxPayloadSize)
	}

	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, nonceSize, Overhead+len(plaintext))
	if _, err := io.ReadFull(c.random, out); err != nil {
		return nil, fmt.Errorf("phiguard: failed to generate nonce: %w", err)
	}
	return aead.Seal(out, out[:nonceSize], plaintext, nil), nil
}

// DecryptBytes opens a payload produced by EncryptBytes.
//
// The tag is verified before any plaintext is released. Any modification of
// the nonce, ciphertext or tag, a truncated payload, or the wrong key fails
// with ErrAuthenticationFailed and a nil result.
func (c *Cipher) DecryptBytes(sealed []byte, key *Key) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}

	nonce, body, err := splitSealed(sealed)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: tag mismatch", ErrAuthenticationFailed)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// EncryptString seals the UTF-8 bytes of text and returns a base64 token.
// The empty string is encrypted like any other value and yields a non-empty token.
// Text that is not valid UTF-8 fails with ErrEncodingFailure, since
// DecryptString could never return it.
func (c *Cipher) EncryptString(text string, key *Key) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrEncodingFailure)
	}
	sealed, err := c.EncryptBytes([]byte(text), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
//
// An empty token returns "" without invoking the cipher. Note this is not the
// inverse of EncryptString(""), which yields a non-empty token.
func (c *Cipher) DecryptString(token string, key *Key) (string, error) {
	if token == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: malformed base64 token", ErrEncodingFailure)
	}

	plaintext, err := c.DecryptBytes(sealed, key)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		clear(plaintext)
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrEncodingFailure)
	}
	return string(plaintext), nil
}
