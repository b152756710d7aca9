// Package keyring provides a phiguard.KeyStore backed by the platform credential vault
// (macOS Keychain, Secret Service, KWallet, Windows Credential Manager, Linux keyctl, pass).
//
// Records are opened with an access policy of "accessible only while unlocked,
// this device only, never synchronized": the Keychain item is created with
// kSecAttrAccessibleWhenUnlocked and marked non-synchronizable. Other backends
// apply their own lock semantics.
//
// One keyring is opened per service name; the account name is the item key.
//
// Usage:
//
//	store := keyring.New()
//	manager, err := phiguard.New(store)
package keyring

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	kr "github.com/99designs/keyring"
	"github.com/rbaliyan/phiguard"
)

// Opener opens a keyring for a configuration. It defaults to keyring.Open.
type Opener func(cfg kr.Config) (kr.Keyring, error)

// Option configures a Store.
type Option func(*Store)

// WithBackends restricts the backends that may be used.
func WithBackends(backends ...kr.BackendType) Option {
	return func(s *Store) {
		s.base.AllowedBackends = backends
	}
}

// WithFileBackend configures the encrypted-file fallback backend.
func WithFileBackend(dir string, password kr.PromptFunc) Option {
	return func(s *Store) {
		s.base.FileDir = dir
		s.base.FilePasswordFunc = password
	}
}

// WithOpener replaces the function used to open keyrings.
func WithOpener(open Opener) Option {
	return func(s *Store) {
		s.open = open
	}
}

// WithAccessDenied adds a classifier for backend errors that mean the vault
// refused access, such as a locked device or a dismissed unlock prompt.
// Errors it matches are reported by Get as an absent record.
func WithAccessDenied(match func(error) bool) Option {
	return func(s *Store) {
		s.denied = append(s.denied, match)
	}
}

// Store is a phiguard.KeyStore backed by the platform credential vault.
// It is safe for concurrent use.
type Store struct {
	base   kr.Config
	open   Opener
	denied []func(error) bool

	mu    sync.Mutex
	rings map[string]kr.Keyring
}

// New creates a Store. Keyrings are opened lazily on first use.
func New(opts ...Option) *Store {
	s := &Store{
		base: kr.Config{
			KeychainAccessibleWhenUnlocked: true,
			KeychainSynchronizable:         false,
			KeychainTrustApplication:       true,
		},
		open:  kr.Open,
		rings: make(map[string]kr.Keyring),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ring(service string) (kr.Keyring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rings[service]; ok {
		return r, nil
	}
	cfg := s.base
	cfg.ServiceName = service
	r, err := s.open(cfg)
	if err != nil {
		return nil, fmt.Errorf("keyring: failed to open keyring %q: %w", service, err)
	}
	s.rings[service] = r
	return r, nil
}

// Put stores key as the item for id, replacing any existing item.
func (s *Store) Put(_ context.Context, id phiguard.KeyRecordID, key []byte) error {
	r, err := s.ring(id.Service)
	if err != nil {
		return err
	}
	data := make([]byte, len(key))
	copy(data, key)

	err = r.Set(kr.Item{
		Key:                       id.Account,
		Data:                      data,
		Label:                     id.Service,
		Description:               "phiguard data protection key",
		KeychainNotSynchronizable: true,
	})
	if err != nil {
		return fmt.Errorf("keyring: failed to store %s: %w", id, err)
	}
	return nil
}

// Get returns the item data for id. A missing item, or one the platform
// refuses to release (device locked, unlock prompt dismissed), is reported
// as absent.
func (s *Store) Get(_ context.Context, id phiguard.KeyRecordID) ([]byte, bool, error) {
	r, err := s.ring(id.Service)
	if err != nil {
		return nil, false, err
	}
	item, err := r.Get(id.Account)
	if err != nil {
		if isNotFound(err) || s.isAccessDenied(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("keyring: failed to read %s: %w", id, err)
	}
	data := make([]byte, len(item.Data))
	copy(data, item.Data)
	return data, true, nil
}

// Delete removes the item for id. Removing a missing item is not an error.
func (s *Store) Delete(_ context.Context, id phiguard.KeyRecordID) error {
	r, err := s.ring(id.Service)
	if err != nil {
		return err
	}
	if err := r.Remove(id.Account); err != nil && !isNotFound(err) {
		return fmt.Errorf("keyring: failed to delete %s: %w", id, err)
	}
	return nil
}

// The file backend reports missing items as fs.ErrNotExist.
func isNotFound(err error) bool {
	return errors.Is(err, kr.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}

// Messages of backend errors that carry no sentinel: the macOS Keychain
// (errSecInteractionNotAllowed, errSecAuthFailed) and Secret Service prompts.
var deniedMessages = []string{
	"interaction is not allowed",
	"user name or passphrase you entered is not correct",
	"prompt dismissed",
}

// The file and keyctl backends surface EACCES, which matches fs.ErrPermission.
func (s *Store) isAccessDenied(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	for _, match := range s.denied {
		if match(err) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range deniedMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ phiguard.KeyStore = (*Store)(nil)
