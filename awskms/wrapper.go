// Package awskms wraps phiguard key records with AWS KMS.
//
// The durable key record is encrypted with a KMS key before it reaches the
// underlying KeyStore and decrypted on load, so the store never holds raw key
// material. The record's service and account are bound to the ciphertext via
// the KMS encryption context.
//
// Usage:
//
//	cfg, err := awsconfig.LoadDefaultConfig(ctx)
//	kmsClient := kms.NewFromConfig(cfg)
//
//	wrapper, err := awskms.New(kmsClient, "alias/phiguard")
//	store, err := phiguard.NewWrappedKeyStore(fileStore, wrapper)
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/rbaliyan/phiguard"
)

// Client is the subset of the AWS KMS API used by this wrapper.
type Client interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Wrapper is a phiguard.KeyWrapper backed by a KMS key.
type Wrapper struct {
	client   Client
	kmsKeyID string
}

// New creates a Wrapper using the KMS key ARN, ID or alias kmsKeyID.
func New(client Client, kmsKeyID string) (*Wrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("awskms: client is nil")
	}
	if kmsKeyID == "" {
		return nil, fmt.Errorf("awskms: KMS key ID is required")
	}
	return &Wrapper{client: client, kmsKeyID: kmsKeyID}, nil
}

// NewKeyStore returns inner wrapped with a KMS-backed Wrapper.
func NewKeyStore(inner phiguard.KeyStore, client Client, kmsKeyID string) (*phiguard.WrappedKeyStore, error) {
	w, err := New(client, kmsKeyID)
	if err != nil {
		return nil, err
	}
	return phiguard.NewWrappedKeyStore(inner, w)
}

func encryptionContext(id phiguard.KeyRecordID) map[string]string {
	return map[string]string{
		"phiguard:service": id.Service,
		"phiguard:account": id.Account,
	}
}

// WrapKey encrypts key with KMS Encrypt.
func (w *Wrapper) WrapKey(ctx context.Context, id phiguard.KeyRecordID, key []byte) ([]byte, error) {
	out, err := w.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             &w.kmsKeyID,
		Plaintext:         key,
		EncryptionContext: encryptionContext(id),
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: failed to encrypt key record %s: %w", id, err)
	}
	return out.CiphertextBlob, nil
}

// UnwrapKey decrypts a record produced by WrapKey with KMS Decrypt.
func (w *Wrapper) UnwrapKey(ctx context.Context, id phiguard.KeyRecordID, wrapped []byte) ([]byte, error) {
	out, err := w.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    wrapped,
		KeyId:             &w.kmsKeyID,
		EncryptionContext: encryptionContext(id),
	})
	if err != nil {
		return nil, fmt.Errorf("awskms: failed to decrypt key record %s: %w", id, err)
	}
	return out.Plaintext, nil
}

// Compile-time interface check.
var _ phiguard.KeyWrapper = (*Wrapper)(nil)
