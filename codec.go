package phiguard

import (
	"context"
	"fmt"

	"github.com/rbaliyan/config/codec"
)

// Transformer seals and opens encoded bytes with the Manager's key.
// It implements codec.Transformer, so it composes with codec.NewChain:
//
//	t, _ := phiguard.NewTransformer(manager)
//	c := codec.NewChain(json.New(), t) // "sealed:json"
type Transformer struct {
	manager *Manager
}

// Compile-time interface check.
var _ codec.Transformer = (*Transformer)(nil)

// NewTransformer creates a sealing transformer. Returns an error if manager is nil.
func NewTransformer(manager *Manager) (*Transformer, error) {
	if manager == nil {
		return nil, fmt.Errorf("phiguard: NewTransformer manager is nil")
	}
	return &Transformer{manager: manager}, nil
}

// Name returns "sealed".
func (t *Transformer) Name() string {
	return "sealed"
}

// Transform seals data.
func (t *Transformer) Transform(ctx context.Context, data []byte) ([]byte, error) {
	return t.manager.ProtectBytes(ctx, data)
}

// Reverse opens data sealed by Transform.
func (t *Transformer) Reverse(ctx context.Context, data []byte) ([]byte, error) {
	return t.manager.UnprotectBytes(ctx, data)
}

// Codec wraps an inner codec with sealing.
// On Encode, the inner codec serializes the value, then the result is sealed with the Manager's key.
// On Decode, the data is opened, then the inner codec deserializes the plaintext.
//
// Codec is safe for concurrent use if the inner codec is.
type Codec struct {
	inner  codec.Codec
	sealer *Transformer
	name   string
}

// Compile-time interface check.
var _ codec.Codec = (*Codec)(nil)

// NewCodec creates a sealing codec that wraps the given inner codec.
// The codec name is "sealed:<inner>", e.g. "sealed:json".
// Returns an error if inner or manager is nil.
func NewCodec(inner codec.Codec, manager *Manager) (*Codec, error) {
	if inner == nil {
		return nil, fmt.Errorf("phiguard: NewCodec inner codec is nil")
	}
	sealer, err := NewTransformer(manager)
	if err != nil {
		return nil, fmt.Errorf("phiguard: NewCodec manager is nil")
	}
	return &Codec{
		inner:  inner,
		sealer: sealer,
		name:   sealer.Name() + ":" + inner.Name(),
	}, nil
}

// Name returns the codec name, e.g. "sealed:json".
func (c *Codec) Name() string {
	return c.name
}

// Encode serializes the value using the inner codec, then seals the result.
// ctx carries through to key resolution and tracing.
func (c *Codec) Encode(ctx context.Context, v any) ([]byte, error) {
	plaintext, err := c.inner.Encode(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("phiguard: inner encode failed: %w", err)
	}
	defer clear(plaintext)

	return c.sealer.Transform(ctx, plaintext)
}

// Decode opens the data, then deserializes the plaintext using the inner codec.
func (c *Codec) Decode(ctx context.Context, data []byte, v any) error {
	plaintext, err := c.sealer.Reverse(ctx, data)
	if err != nil {
		return err
	}
	defer clear(plaintext)

	if err := c.inner.Decode(ctx, plaintext, v); err != nil {
		return fmt.Errorf("phiguard: inner decode failed: %w", err)
	}
	return nil
}
