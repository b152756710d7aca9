package keyring

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"

	kr "github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/phiguard"
)

var testID = phiguard.KeyRecordID{Service: "com.example.clinic", Account: "data-protection-key"}

// arrayOpener opens one in-memory keyring per service and records the configs it saw.
type arrayOpener struct {
	mu      sync.Mutex
	configs []kr.Config
	rings   map[string]*kr.ArrayKeyring
	err     error
}

func newArrayOpener() *arrayOpener {
	return &arrayOpener{rings: make(map[string]*kr.ArrayKeyring)}
}

func (o *arrayOpener) open(cfg kr.Config) (kr.Keyring, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = append(o.configs, cfg)
	if o.err != nil {
		return nil, o.err
	}
	r, ok := o.rings[cfg.ServiceName]
	if !ok {
		r = kr.NewArrayKeyring(nil)
		o.rings[cfg.ServiceName] = r
	}
	return r, nil
}

func testKeyBytes(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i) + seed
	}
	return key
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()
	s := New(WithOpener(o.open))

	_, ok, err := s.Get(ctx, testID)
	require.NoError(t, err)
	assert.False(t, ok)

	key := testKeyBytes(1)
	require.NoError(t, s.Put(ctx, testID, key))

	got, ok, err := s.Get(ctx, testID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key, got)

	// Returned data is a copy.
	got[0] ^= 0xff
	again, _, err := s.Get(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, s.Delete(ctx, testID))
	_, ok, err = s.Get(ctx, testID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, testID), "deleting a missing item")
}

func TestItemAttributes(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()
	s := New(WithOpener(o.open))
	require.NoError(t, s.Put(ctx, testID, testKeyBytes(0)))

	item, err := o.rings[testID.Service].Get(testID.Account)
	require.NoError(t, err)
	assert.Equal(t, testID.Account, item.Key)
	assert.Equal(t, testID.Service, item.Label)
	assert.True(t, item.KeychainNotSynchronizable)
}

func TestAccessPolicy(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()
	s := New(
		WithOpener(o.open),
		WithBackends(kr.FileBackend),
		WithFileBackend("/tmp/phiguard-test", kr.FixedStringPrompt("pw")),
	)
	_, _, err := s.Get(ctx, testID)
	require.NoError(t, err)

	require.Len(t, o.configs, 1)
	cfg := o.configs[0]
	assert.Equal(t, testID.Service, cfg.ServiceName)
	assert.True(t, cfg.KeychainAccessibleWhenUnlocked)
	assert.False(t, cfg.KeychainSynchronizable)
	assert.Equal(t, []kr.BackendType{kr.FileBackend}, cfg.AllowedBackends)
	assert.Equal(t, "/tmp/phiguard-test", cfg.FileDir)
	require.NotNil(t, cfg.FilePasswordFunc)
	pw, err := cfg.FilePasswordFunc("prompt")
	require.NoError(t, err)
	assert.Equal(t, "pw", pw)
}

func TestKeyringOpenedOncePerService(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()
	s := New(WithOpener(o.open))

	other := phiguard.KeyRecordID{Service: "com.example.other", Account: testID.Account}
	for i := 0; i < 3; i++ {
		_, _, err := s.Get(ctx, testID)
		require.NoError(t, err)
		_, _, err = s.Get(ctx, other)
		require.NoError(t, err)
	}
	assert.Len(t, o.configs, 2)
}

func TestOpenFailure(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()
	o.err = errors.New("no backend available")
	s := New(WithOpener(o.open))

	_, _, err := s.Get(ctx, testID)
	assert.ErrorIs(t, err, o.err)
	assert.ErrorIs(t, s.Put(ctx, testID, testKeyBytes(0)), o.err)
	assert.ErrorIs(t, s.Delete(ctx, testID), o.err)
}

// deniedRing is a keyring whose vault refuses every read.
type deniedRing struct {
	kr.ArrayKeyring
	err error
}

func (r *deniedRing) Get(string) (kr.Item, error) {
	return kr.Item{}, r.err
}

func TestGetAccessDeniedIsAbsent(t *testing.T) {
	ctx := context.Background()
	errLocked := errors.New("device locked")

	tests := []struct {
		name string
		err  error
		opts []Option
	}{
		{name: "permission", err: fmt.Errorf("keyctl read: %w", fs.ErrPermission)},
		{name: "keychain interaction", err: errors.New("User interaction is not allowed.")},
		{name: "prompt dismissed", err: errors.New("prompt dismissed")},
		{
			name: "custom classifier",
			err:  fmt.Errorf("backend: %w", errLocked),
			opts: []Option{WithAccessDenied(func(err error) bool { return errors.Is(err, errLocked) })},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := &deniedRing{err: tt.err}
			open := func(kr.Config) (kr.Keyring, error) { return ring, nil }
			s := New(append([]Option{WithOpener(open)}, tt.opts...)...)

			data, ok, err := s.Get(ctx, testID)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, data)
		})
	}
}

func TestGetBackendFailureIsError(t *testing.T) {
	ctx := context.Background()
	outage := errors.New("dbus connection closed")
	ring := &deniedRing{err: outage}
	s := New(WithOpener(func(kr.Config) (kr.Keyring, error) { return ring, nil }))

	_, ok, err := s.Get(ctx, testID)
	assert.ErrorIs(t, err, outage)
	assert.False(t, ok)
}

func TestManagerWithLockedKeyring(t *testing.T) {
	ctx := context.Background()
	ring := &deniedRing{err: fs.ErrPermission}
	m, err := phiguard.New(New(WithOpener(func(kr.Config) (kr.Keyring, error) { return ring, nil })))
	require.NoError(t, err)

	// A locked vault reads as empty, so a key is generated for the process.
	sealed, err := m.Protect(ctx, phiguard.Record{"amh": "3.2"})
	require.NoError(t, err)
	opened, err := m.Unprotect(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "3.2", opened["amh"])
}

func TestManagerWithKeyring(t *testing.T) {
	ctx := context.Background()
	o := newArrayOpener()

	m1, err := phiguard.New(New(WithOpener(o.open)))
	require.NoError(t, err)
	sealed, err := m1.Protect(ctx, phiguard.Record{"amh": "3.2"})
	require.NoError(t, err)
	assert.True(t, m1.Durable())

	// The item outlives the Store that wrote it.
	m2, err := phiguard.New(New(WithOpener(o.open)))
	require.NoError(t, err)
	opened, err := m2.Unprotect(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "3.2", opened["amh"])
}
