package phiguard

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// countingStore wraps a MemoryKeyStore, counts calls and injects failures.
type countingStore struct {
	*MemoryKeyStore

	gets, puts, deletes atomic.Int32

	getErr    error
	putErr    error
	deleteErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryKeyStore: NewMemoryKeyStore()}
}

func (s *countingStore) Get(ctx context.Context, id KeyRecordID) ([]byte, bool, error) {
	s.gets.Add(1)
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.MemoryKeyStore.Get(ctx, id)
}

func (s *countingStore) Put(ctx context.Context, id KeyRecordID, key []byte) error {
	s.puts.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryKeyStore.Put(ctx, id, key)
}

func (s *countingStore) Delete(ctx context.Context, id KeyRecordID) error {
	s.deletes.Add(1)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryKeyStore.Delete(ctx, id)
}

func TestKeyRecordIDString(t *testing.T) {
	if got, want := DefaultKeyRecordID.String(), "com.phiguard.keys/data-protection-key"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyStore()
	id := KeyRecordID{Service: "svc", Account: "acct"}

	if _, ok, err := s.Get(ctx, id); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	key := makeKeyBytes(1)
	if err := s.Put(ctx, id, key); err != nil {
		t.Fatal(err)
	}

	// The store keeps its own copy.
	key[0] ^= 0xff
	got, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, makeKeyBytes(1)) {
		t.Error("stored record changed with caller's slice")
	}

	// Callers cannot mutate the stored record through Get.
	got[0] ^= 0xff
	again, _, _ := s.Get(ctx, id)
	if !bytes.Equal(again, makeKeyBytes(1)) {
		t.Error("stored record changed through returned slice")
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len after delete: got %d, want 0", s.Len())
	}
}

func TestMemoryKeyStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := KeyRecordID{Service: "svc", Account: string(rune('a' + n%26))}
			_ = s.Put(ctx, id, makeKeyBytes(byte(n)))
			_, _, _ = s.Get(ctx, id)
			if n%3 == 0 {
				_ = s.Delete(ctx, id)
			}
		}(i)
	}
	wg.Wait()
}

// xorWrapper is a reversible test wrapper that also records the record IDs it sees.
type xorWrapper struct {
	mu        sync.Mutex
	ids       []KeyRecordID
	unwrapErr error
}

func (w *xorWrapper) WrapKey(_ context.Context, id KeyRecordID, key []byte) ([]byte, error) {
	w.mu.Lock()
	w.ids = append(w.ids, id)
	w.mu.Unlock()
	out := make([]byte, len(key)+1)
	out[0] = 0x01
	for i, b := range key {
		out[i+1] = b ^ 0x5a
	}
	return out, nil
}

func (w *xorWrapper) UnwrapKey(_ context.Context, _ KeyRecordID, wrapped []byte) ([]byte, error) {
	if w.unwrapErr != nil {
		return nil, w.unwrapErr
	}
	if len(wrapped) == 0 || wrapped[0] != 0x01 {
		return nil, errors.New("bad wrapped record")
	}
	out := make([]byte, len(wrapped)-1)
	for i, b := range wrapped[1:] {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func TestNewWrappedKeyStoreNil(t *testing.T) {
	if _, err := NewWrappedKeyStore(nil, &xorWrapper{}); err == nil {
		t.Error("expected error for nil inner store")
	}
	if _, err := NewWrappedKeyStore(NewMemoryKeyStore(), nil); err == nil {
		t.Error("expected error for nil wrapper")
	}
}

func TestWrappedKeyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKeyStore()
	w := &xorWrapper{}
	s, err := NewWrappedKeyStore(inner, w)
	if err != nil {
		t.Fatal(err)
	}

	key := makeKeyBytes(7)
	if err := s.Put(ctx, DefaultKeyRecordID, key); err != nil {
		t.Fatal(err)
	}

	raw, ok, err := inner.Get(ctx, DefaultKeyRecordID)
	if err != nil || !ok {
		t.Fatalf("inner Get: ok=%v err=%v", ok, err)
	}
	if bytes.Contains(raw, key) {
		t.Error("inner store holds unwrapped key material")
	}

	got, ok, err := s.Get(ctx, DefaultKeyRecordID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, key) {
		t.Error("unwrapped key mismatch")
	}
	if len(w.ids) != 1 || w.ids[0] != DefaultKeyRecordID {
		t.Errorf("wrapper saw ids %v, want [%v]", w.ids, DefaultKeyRecordID)
	}

	if err := s.Delete(ctx, DefaultKeyRecordID); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, DefaultKeyRecordID); ok {
		t.Error("record present after Delete")
	}
}

func TestWrappedKeyStoreUnwrapFailureIsError(t *testing.T) {
	ctx := context.Background()
	outage := errors.New("kms unavailable")
	w := &xorWrapper{}
	s, err := NewWrappedKeyStore(NewMemoryKeyStore(), w)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, DefaultKeyRecordID, makeKeyBytes(0)); err != nil {
		t.Fatal(err)
	}

	w.unwrapErr = outage
	_, ok, err := s.Get(ctx, DefaultKeyRecordID)
	if !errors.Is(err, outage) {
		t.Fatalf("expected unwrap error, got %v", err)
	}
	if ok {
		t.Error("unwrap failure reported record as present")
	}
}

func TestWrappedKeyStoreWithKeyManager(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKeyStore()
	w := &xorWrapper{}
	s, err := NewWrappedKeyStore(inner, w)
	if err != nil {
		t.Fatal(err)
	}

	km1, _ := NewKeyManager(s, DefaultKeyRecordID, nil)
	k1, err := km1.EnsureKey(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// An unwrap outage must surface as a vault failure and leave the record alone.
	w.unwrapErr = errors.New("kms unavailable")
	km2, _ := NewKeyManager(s, DefaultKeyRecordID, nil)
	if _, err := km2.EnsureKey(ctx); !IsVaultFailure(err) {
		t.Fatalf("expected ErrVaultFailure, got %v", err)
	}
	w.unwrapErr = nil

	km3, _ := NewKeyManager(s, DefaultKeyRecordID, nil)
	k3, err := km3.EnsureKey(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !sameKey(t, k1, k3) {
		t.Error("key changed after a transient unwrap failure")
	}
}
