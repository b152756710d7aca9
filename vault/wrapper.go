// Package vault wraps phiguard key records with the HashiCorp Vault Transit secrets engine.
//
// The durable key record is encrypted via the Transit encrypt endpoint before
// it reaches the underlying KeyStore; the stored value is Vault's ciphertext
// string (e.g. "vault:v1:base64data").
//
// Usage:
//
//	client := myTransitClient{...}
//	wrapper, err := vault.New(client, "phiguard")
//	store, err := phiguard.NewWrappedKeyStore(fileStore, wrapper)
package vault

import (
	"context"
	"fmt"

	"github.com/rbaliyan/phiguard"
)

// Client abstracts the Vault Transit encrypt and decrypt operations.
// This allows injecting a mock for testing or wrapping any Vault client library.
type Client interface {
	// TransitEncrypt encrypts plaintext using the named Transit key and
	// returns Vault's ciphertext string.
	TransitEncrypt(ctx context.Context, keyName string, plaintext []byte) (string, error)

	// TransitDecrypt decrypts ciphertext using the named Transit key.
	TransitDecrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error)
}

// Wrapper is a phiguard.KeyWrapper backed by a Transit key.
type Wrapper struct {
	client         Client
	transitKeyName string
}

// New creates a Wrapper using the Transit key transitKeyName.
func New(client Client, transitKeyName string) (*Wrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("vault: client is nil")
	}
	if transitKeyName == "" {
		return nil, fmt.Errorf("vault: transit key name is required")
	}
	return &Wrapper{client: client, transitKeyName: transitKeyName}, nil
}

// NewKeyStore returns inner wrapped with a Transit-backed Wrapper.
func NewKeyStore(inner phiguard.KeyStore, client Client, transitKeyName string) (*phiguard.WrappedKeyStore, error) {
	w, err := New(client, transitKeyName)
	if err != nil {
		return nil, err
	}
	return phiguard.NewWrappedKeyStore(inner, w)
}

// WrapKey encrypts key with Transit.
func (w *Wrapper) WrapKey(ctx context.Context, id phiguard.KeyRecordID, key []byte) ([]byte, error) {
	ciphertext, err := w.client.TransitEncrypt(ctx, w.transitKeyName, key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt key record %s: %w", id, err)
	}
	return []byte(ciphertext), nil
}

// UnwrapKey decrypts a record produced by WrapKey.
func (w *Wrapper) UnwrapKey(ctx context.Context, id phiguard.KeyRecordID, wrapped []byte) ([]byte, error) {
	plaintext, err := w.client.TransitDecrypt(ctx, w.transitKeyName, string(wrapped))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to decrypt key record %s: %w", id, err)
	}
	return plaintext, nil
}

// Compile-time interface check.
var _ phiguard.KeyWrapper = (*Wrapper)(nil)
