package phiguard

import (
	"context"
	"sync"
)

// MemoryKeyStore is a KeyStore backed by an in-memory map.
// It is safe for concurrent use. Records do not survive the process.
type MemoryKeyStore struct {
	mu      sync.RWMutex
	records map[KeyRecordID][]byte
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{records: make(map[KeyRecordID][]byte)}
}

// Put stores a copy of key under id.
func (s *MemoryKeyStore) Put(_ context.Context, id KeyRecordID, key []byte) error {
	b := make([]byte, len(key))
	copy(b, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.records[id]; ok {
		clear(old)
	}
	s.records[id] = b
	return nil
}

// Get returns a copy of the key stored under id.
func (s *MemoryKeyStore) Get(_ context.Context, id KeyRecordID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	b := make([]byte, len(key))
	copy(b, key)
	return b, true, nil
}

// Delete removes and wipes the record for id.
func (s *MemoryKeyStore) Delete(_ context.Context, id KeyRecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.records[id]; ok {
		clear(old)
		delete(s.records, id)
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemoryKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Compile-time interface check.
var _ KeyStore = (*MemoryKeyStore)(nil)
