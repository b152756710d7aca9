package phiguard

import "context"

// KeyRecordID identifies the durable key record in a KeyStore.
type KeyRecordID struct {
	Service string
	Account string
}

// DefaultKeyRecordID is the record used when no other ID is configured.
var DefaultKeyRecordID = KeyRecordID{
	Service: "com.phiguard.keys",
	Account: "data-protection-key",
}

func (id KeyRecordID) String() string {
	return id.Service + "/" + id.Account
}

// KeyStore persists a single named secret blob.
// Implementations must be safe for concurrent use.
type KeyStore interface {
	// Put stores key under id, atomically replacing any existing entry.
	// Implementations must copy key; the caller may wipe it afterwards.
	Put(ctx context.Context, id KeyRecordID, key []byte) error

	// Get returns the stored key. It returns (nil, false, nil) both when the
	// entry is absent and when the platform denies access (for example while
	// the device is locked). Other failures are returned as errors.
	Get(ctx context.Context, id KeyRecordID) ([]byte, bool, error)

	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id KeyRecordID) error
}
