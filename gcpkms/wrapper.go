// Package gcpkms wraps phiguard key records with Google Cloud KMS.
//
// The durable key record is encrypted with a Cloud KMS CryptoKey before it
// reaches the underlying KeyStore. The record ID is bound to the ciphertext
// as additional authenticated data.
//
// Usage:
//
//	client, err := kms.NewKeyManagementClient(ctx)
//	wrapper, err := gcpkms.New(client, "projects/p/locations/global/keyRings/r/cryptoKeys/k")
//	store, err := phiguard.NewWrappedKeyStore(fileStore, wrapper)
package gcpkms

import (
	"context"
	"fmt"

	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/rbaliyan/phiguard"
)

// Client is the subset of the GCP Cloud KMS API used by this wrapper.
type Client interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
}

// Wrapper is a phiguard.KeyWrapper backed by a Cloud KMS CryptoKey.
type Wrapper struct {
	client       Client
	resourceName string // projects/*/locations/*/keyRings/*/cryptoKeys/*
}

// New creates a Wrapper for the CryptoKey resourceName.
func New(client Client, resourceName string) (*Wrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("gcpkms: client is nil")
	}
	if resourceName == "" {
		return nil, fmt.Errorf("gcpkms: resource name is required")
	}
	return &Wrapper{client: client, resourceName: resourceName}, nil
}

// NewKeyStore returns inner wrapped with a Cloud KMS-backed Wrapper.
func NewKeyStore(inner phiguard.KeyStore, client Client, resourceName string) (*phiguard.WrappedKeyStore, error) {
	w, err := New(client, resourceName)
	if err != nil {
		return nil, err
	}
	return phiguard.NewWrappedKeyStore(inner, w)
}

func aad(id phiguard.KeyRecordID) []byte {
	return []byte(id.String())
}

// WrapKey encrypts key with Cloud KMS.
func (w *Wrapper) WrapKey(ctx context.Context, id phiguard.KeyRecordID, key []byte) ([]byte, error) {
	resp, err := w.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                        w.resourceName,
		Plaintext:                   key,
		AdditionalAuthenticatedData: aad(id),
	})
	if err != nil {
		return nil, fmt.Errorf("gcpkms: failed to encrypt key record %s: %w", id, err)
	}
	return resp.Ciphertext, nil
}

// UnwrapKey decrypts a record produced by WrapKey.
func (w *Wrapper) UnwrapKey(ctx context.Context, id phiguard.KeyRecordID, wrapped []byte) ([]byte, error) {
	resp, err := w.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                        w.resourceName,
		Ciphertext:                  wrapped,
		AdditionalAuthenticatedData: aad(id),
	})
	if err != nil {
		return nil, fmt.Errorf("gcpkms: failed to decrypt key record %s: %w", id, err)
	}
	return resp.Plaintext, nil
}

// Compile-time interface check.
var _ phiguard.KeyWrapper = (*Wrapper)(nil)
