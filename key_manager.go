package phiguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"
)

// KeyManager guarantees that exactly one authoritative key is available per process.
//
// The key is resolved lazily on the first EnsureKey call: loaded from the
// KeyStore if present, otherwise generated and persisted. Resolution is
// serialized so concurrent first callers converge on the same key.
type KeyManager struct {
	store  KeyStore
	id     KeyRecordID
	logger *zap.Logger

	mu      sync.Mutex
	key     *Key
	durable bool
	wiped   bool
}

// NewKeyManager creates a KeyManager for the record id in store.
// A nil logger disables logging.
func NewKeyManager(store KeyStore, id KeyRecordID, logger *zap.Logger) (*KeyManager, error) {
	if store == nil {
		return nil, fmt.Errorf("phiguard: NewKeyManager store is nil")
	}
	if id.Service == "" || id.Account == "" {
		return nil, fmt.Errorf("phiguard: NewKeyManager key record ID must have service and account")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyManager{
		store:  store,
		id:     id,
		logger: logger.With(zap.String("service", id.Service), zap.String("account", id.Account)),
	}, nil
}

// EnsureKey returns the active key, loading or generating it on first use.
//
// If a newly generated key cannot be persisted, the key is still cached and
// returned together with an error wrapping ErrKeyNotPersisted. The key stays
// usable for the rest of the process but will not survive a restart.
func (m *KeyManager) EnsureKey(ctx context.Context) (*Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return m.key, nil
	}

	stored, ok, err := m.store.Get(ctx, m.id)
	if err != nil {
		m.logger.Error("key record read failed", zap.String("error_kind", errorKind(err)))
		return nil, fmt.Errorf("%w: read key record: %w", ErrVaultFailure, err)
	}
	if ok {
		// Never replace an unreadable record; doing so would shred every payload sealed with it.
		if len(stored) != keySize {
			n := len(stored)
			clear(stored)
			m.logger.Error("key record has invalid size", zap.Int("size", n))
			return nil, fmt.Errorf("%w: %w: stored record has %d bytes", ErrVaultFailure, ErrInvalidKeySize, n)
		}
		key, err := NewKey(stored)
		clear(stored)
		if err != nil {
			return nil, err
		}
		m.key, m.durable, m.wiped = key, true, false
		m.logger.Info("key loaded")
		return m.key, nil
	}

	buf := memguard.NewBufferRandom(keySize)
	putErr := m.store.Put(ctx, m.id, buf.Bytes())
	m.key, m.wiped = sealKey(buf), false
	if putErr != nil {
		m.durable = false
		m.logger.Warn("key generated but not persisted", zap.String("error_kind", errorKind(putErr)))
		return m.key, fmt.Errorf("%w: %w: %w", ErrKeyNotPersisted, ErrVaultFailure, putErr)
	}
	m.durable = true
	m.logger.Info("key generated")
	return m.key, nil
}

// Wipe destroys the active key: the in-memory reference is dropped and the
// durable record deleted. Every payload sealed with the key becomes
// permanently undecryptable. The next EnsureKey generates an unrelated key.
//
// The memory reference is dropped even if deleting the record fails.
func (m *KeyManager) Wipe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.key, m.durable, m.wiped = nil, false, true
	if err := m.store.Delete(ctx, m.id); err != nil {
		m.logger.Error("key record delete failed", zap.String("error_kind", errorKind(err)))
		return fmt.Errorf("%w: delete key record: %w", ErrVaultFailure, err)
	}
	m.logger.Info("key wiped")
	return nil
}

// State reports the lifecycle state. It is read under the same lock that
// EnsureKey and Wipe hold, so it never reports StateKeyed without a key.
func (m *KeyManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.key != nil:
		return StateKeyed
	case m.wiped:
		return StateWiped
	default:
		return StateUninitialized
	}
}

// Active reports whether a key is cached in memory.
func (m *KeyManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != nil
}

// Durable reports whether the active key is known to be persisted.
// It returns false when no key is active.
func (m *KeyManager) Durable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != nil && m.durable
}

// RecordID returns the key record this manager owns.
func (m *KeyManager) RecordID() KeyRecordID {
	return m.id
}
