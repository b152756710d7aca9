package phiguard

import (
	"context"
	"strings"
	"testing"

	jsoncodec "github.com/rbaliyan/config/codec/json"
)

func benchmarkPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	return payload
}

func benchmarkEncryptBytes(b *testing.B, alg Algorithm, n int) {
	c, err := NewCipher(alg)
	if err != nil {
		b.Fatal(err)
	}
	key := testKey(b)
	payload := benchmarkPayload(n)

	b.SetBytes(int64(n))
	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.EncryptBytes(payload, key); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkDecryptBytes(b *testing.B, alg Algorithm, n int) {
	c, err := NewCipher(alg)
	if err != nil {
		b.Fatal(err)
	}
	key := testKey(b)
	sealed, err := c.EncryptBytes(benchmarkPayload(n), key)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(n))
	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.DecryptBytes(sealed, key); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncryptBytes1KB(b *testing.B)  { benchmarkEncryptBytes(b, AlgorithmAES256GCM, 1024) }
func BenchmarkEncryptBytes64KB(b *testing.B) { benchmarkEncryptBytes(b, AlgorithmAES256GCM, 64*1024) }
func BenchmarkDecryptBytes1KB(b *testing.B)  { benchmarkDecryptBytes(b, AlgorithmAES256GCM, 1024) }
func BenchmarkDecryptBytes64KB(b *testing.B) { benchmarkDecryptBytes(b, AlgorithmAES256GCM, 64*1024) }

func BenchmarkEncryptBytesChaCha1KB(b *testing.B) {
	benchmarkEncryptBytes(b, AlgorithmChaCha20Poly1305, 1024)
}

func BenchmarkDecryptBytesChaCha1KB(b *testing.B) {
	benchmarkDecryptBytes(b, AlgorithmChaCha20Poly1305, 1024)
}

func BenchmarkProtectRecord(b *testing.B) {
	ctx := context.Background()
	m, _ := newTestManager(b)
	rec := Record{
		"patient":  "p-1042",
		"amh":      "3.2",
		"notes":    strings.Repeat("n", 512),
		"cycleDay": 14,
	}
	if err := m.EnsureKey(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := m.Protect(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecEncode1KB(b *testing.B) {
	ctx := context.Background()
	m, _ := newTestManager(b)
	c, err := NewCodec(jsoncodec.New(), m)
	if err != nil {
		b.Fatal(err)
	}
	payload := benchmarkPayload(1024)

	b.ResetTimer()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.Encode(ctx, payload); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDigest64KB(b *testing.B) {
	payload := benchmarkPayload(64 * 1024)
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for b.Loop() {
		_ = Digest(payload)
	}
}
