package phiguard

import (
	"context"
	"fmt"
)

// KeyWrapper encrypts key records before they reach durable storage,
// typically with a cloud KMS or HSM-held key.
type KeyWrapper interface {
	// WrapKey returns the wrapped form of key. id may be bound to the result
	// as associated data where the backend supports it.
	WrapKey(ctx context.Context, id KeyRecordID, key []byte) ([]byte, error)

	// UnwrapKey reverses WrapKey.
	UnwrapKey(ctx context.Context, id KeyRecordID, wrapped []byte) ([]byte, error)
}

// WrappedKeyStore is a KeyStore that stores only wrapped key material in an inner KeyStore.
// It is safe for concurrent use if the inner store and wrapper are.
type WrappedKeyStore struct {
	inner   KeyStore
	wrapper KeyWrapper
}

// NewWrappedKeyStore creates a KeyStore that wraps records with wrapper before
// storing them in inner. Returns an error if inner or wrapper is nil.
func NewWrappedKeyStore(inner KeyStore, wrapper KeyWrapper) (*WrappedKeyStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("phiguard: NewWrappedKeyStore inner store is nil")
	}
	if wrapper == nil {
		return nil, fmt.Errorf("phiguard: NewWrappedKeyStore wrapper is nil")
	}
	return &WrappedKeyStore{inner: inner, wrapper: wrapper}, nil
}

// Put wraps key and stores the result.
func (s *WrappedKeyStore) Put(ctx context.Context, id KeyRecordID, key []byte) error {
	wrapped, err := s.wrapper.WrapKey(ctx, id, key)
	if err != nil {
		return fmt.Errorf("phiguard: failed to wrap key record %s: %w", id, err)
	}
	return s.inner.Put(ctx, id, wrapped)
}

// Get loads and unwraps the stored record. An unwrap failure is an error,
// not an absent record, so a transient KMS outage never triggers key regeneration.
func (s *WrappedKeyStore) Get(ctx context.Context, id KeyRecordID) ([]byte, bool, error) {
	wrapped, ok, err := s.inner.Get(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	key, err := s.wrapper.UnwrapKey(ctx, id, wrapped)
	if err != nil {
		return nil, false, fmt.Errorf("phiguard: failed to unwrap key record %s: %w", id, err)
	}
	return key, true, nil
}

// Delete removes the record from the inner store.
func (s *WrappedKeyStore) Delete(ctx context.Context, id KeyRecordID) error {
	return s.inner.Delete(ctx, id)
}

// Compile-time interface check.
var _ KeyStore = (*WrappedKeyStore)(nil)
