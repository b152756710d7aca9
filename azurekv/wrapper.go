// Package azurekv wraps phiguard key records with Azure Key Vault.
//
// The durable key record is wrapped with WrapKey before it reaches the
// underlying KeyStore and unwrapped with UnwrapKey on load.
//
// Usage:
//
//	cred, err := azidentity.NewDefaultAzureCredential(nil)
//	client, err := azkeys.NewClient("https://my-vault.vault.azure.net/", cred, nil)
//
//	wrapper, err := azurekv.New(client, "phiguard-kek", "")
//	store, err := phiguard.NewWrappedKeyStore(fileStore, wrapper)
package azurekv

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/rbaliyan/phiguard"
)

// Client is the subset of the Azure Key Vault API used by this wrapper.
type Client interface {
	WrapKey(ctx context.Context, keyName string, keyVersion string, parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, keyName string, keyVersion string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithAlgorithm sets the wrap algorithm. Defaults to RSA-OAEP-256.
func WithAlgorithm(alg azkeys.EncryptionAlgorithm) Option {
	return func(w *Wrapper) {
		w.algorithm = alg
	}
}

// Wrapper is a phiguard.KeyWrapper backed by a Key Vault key.
type Wrapper struct {
	client     Client
	keyName    string
	keyVersion string
	algorithm  azkeys.EncryptionAlgorithm
}

// New creates a Wrapper using the Key Vault key keyName. An empty keyVersion
// selects the latest version for wrapping.
func New(client Client, keyName, keyVersion string, opts ...Option) (*Wrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("azurekv: client is nil")
	}
	if keyName == "" {
		return nil, fmt.Errorf("azurekv: key name is required")
	}
	w := &Wrapper{
		client:     client,
		keyName:    keyName,
		keyVersion: keyVersion,
		algorithm:  azkeys.EncryptionAlgorithmRSAOAEP256,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewKeyStore returns inner wrapped with a Key Vault-backed Wrapper.
func NewKeyStore(inner phiguard.KeyStore, client Client, keyName, keyVersion string, opts ...Option) (*phiguard.WrappedKeyStore, error) {
	w, err := New(client, keyName, keyVersion, opts...)
	if err != nil {
		return nil, err
	}
	return phiguard.NewWrappedKeyStore(inner, w)
}

// WrapKey wraps key with the Key Vault key.
func (w *Wrapper) WrapKey(ctx context.Context, id phiguard.KeyRecordID, key []byte) ([]byte, error) {
	alg := w.algorithm
	resp, err := w.client.WrapKey(ctx, w.keyName, w.keyVersion, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     key,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("azurekv: failed to wrap key record %s: %w", id, err)
	}
	return resp.Result, nil
}

// UnwrapKey unwraps a record produced by WrapKey.
func (w *Wrapper) UnwrapKey(ctx context.Context, id phiguard.KeyRecordID, wrapped []byte) ([]byte, error) {
	alg := w.algorithm
	resp, err := w.client.UnwrapKey(ctx, w.keyName, w.keyVersion, azkeys.KeyOperationParameters{
		Algorithm: &alg,
		Value:     wrapped,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("azurekv: failed to unwrap key record %s: %w", id, err)
	}
	return resp.Result, nil
}

// Compile-time interface check.
var _ phiguard.KeyWrapper = (*Wrapper)(nil)
