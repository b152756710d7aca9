package phiguard

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKey is returned when no key is available for an operation.
	ErrMissingKey = errors.New("phiguard: missing key")

	// ErrPayloadTooLarge is returned when a plaintext exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("phiguard: payload too large")

	// ErrAuthenticationFailed is returned when a sealed payload fails authentication
	// (wrong key, tampered or truncated data).
	ErrAuthenticationFailed = errors.New("phiguard: authentication failed")

	// ErrEncodingFailure is returned for malformed base64 tokens or non-UTF-8 plaintext.
	ErrEncodingFailure = errors.New("phiguard: encoding failure")

	// ErrVaultFailure is returned when the key store denies or fails a put, get or delete.
	ErrVaultFailure = errors.New("phiguard: vault failure")

	// ErrKeyNotPersisted is returned alongside a usable key when the key was
	// generated but could not be written to the key store.
	ErrKeyNotPersisted = errors.New("phiguard: key not persisted")

	// ErrInvalidKeySize is returned when key material is not 32 bytes (256 bits).
	ErrInvalidKeySize = errors.New("phiguard: invalid key size, must be 32 bytes")
)

// IsMissingKey returns true if the error is or wraps ErrMissingKey.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}

// IsPayloadTooLarge returns true if the error is or wraps ErrPayloadTooLarge.
func IsPayloadTooLarge(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge)
}

// IsAuthenticationFailed returns true if the error is or wraps ErrAuthenticationFailed.
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsEncodingFailure returns true if the error is or wraps ErrEncodingFailure.
func IsEncodingFailure(err error) bool {
	return errors.Is(err, ErrEncodingFailure)
}

// IsVaultFailure returns true if the error is or wraps ErrVaultFailure.
func IsVaultFailure(err error) bool {
	return errors.Is(err, ErrVaultFailure)
}

// IsKeyNotPersisted returns true if the error is or wraps ErrKeyNotPersisted.
func IsKeyNotPersisted(err error) bool {
	return errors.Is(err, ErrKeyNotPersisted)
}

// IsInvalidKeySize returns true if the error is or wraps ErrInvalidKeySize.
func IsInvalidKeySize(err error) bool {
	return errors.Is(err, ErrInvalidKeySize)
}

// errorKind names the taxonomy entry of err for logs and metrics.
// It never includes the wrapped message.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsMissingKey(err):
		return "missing_key"
	case IsPayloadTooLarge(err):
		return "payload_too_large"
	case IsAuthenticationFailed(err):
		return "authentication_failure"
	case IsEncodingFailure(err):
		return "encoding_failure"
	case IsKeyNotPersisted(err):
		return "key_not_persisted"
	case IsVaultFailure(err):
		return "vault_failure"
	case IsInvalidKeySize(err):
		return "invalid_key_size"
	default:
		return "unknown"
	}
}

// ProtectionError is the error handed to callers of Manager operations.
// Its message is deliberately generic; the underlying kind remains reachable
// through errors.Is and errors.As.
type ProtectionError struct {
	Op  string
	Err error
}

func (e *ProtectionError) Error() string {
	return "phiguard: data protection error"
}

func (e *ProtectionError) Unwrap() error {
	return e.Err
}

// FieldError reports which record field failed during Protect or Unprotect.
type FieldError struct {
	Op    string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("phiguard: data protection error: field %q", e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
