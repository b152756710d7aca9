package phiguard

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// keySize is the required key size in bytes (256 bits).
const keySize = 32

// Key is a 256-bit symmetric key held in a memguard enclave.
//
// Key material is never exposed through the exported API. Formatting a Key
// with fmt verbs prints a redacted placeholder.
type Key struct {
	enclave *memguard.Enclave
}

// NewKey creates a Key from raw key material. keyBytes must be 32 bytes.
// Key bytes are copied internally; the caller may safely zero the original after construction.
func NewKey(keyBytes []byte) (*Key, error) {
	if len(keyBytes) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(keyBytes))
	}
	b := make([]byte, keySize)
	copy(b, keyBytes)
	// NewEnclave wipes b.
	return &Key{enclave: memguard.NewEnclave(b)}, nil
}

// sealKey moves a locked buffer into an enclave, destroying the buffer.
func sealKey(buf *memguard.LockedBuffer) *Key {
	return &Key{enclave: buf.Seal()}
}

// open decrypts the enclave into a locked buffer. The caller must Destroy it.
func (k *Key) open() (*memguard.LockedBuffer, error) {
	if k == nil || k.enclave == nil {
		return nil, ErrMissingKey
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingKey, err)
	}
	return buf, nil
}

func (k *Key) String() string {
	return "phiguard.Key(REDACTED)"
}

func (k *Key) GoString() string {
	return k.String()
}
