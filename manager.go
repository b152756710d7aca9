package phiguard

import (
	"context"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Record is a structured record whose string and []byte fields are protected
// by Protect and restored by Unprotect. Values of other types pass through.
type Record map[string]any

// Manager composes key management, encryption and integrity checks behind
// field-level Protect and Unprotect operations.
//
// A Manager is constructed explicitly by the application and injected where
// needed. It is safe for concurrent use.
type Manager struct {
	keys   *KeyManager
	cipher *Cipher
	device DeviceChecker
	logger *zap.Logger
	tel    *instruments
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	recordID       KeyRecordID
	algorithm      Algorithm
	logger         *zap.Logger
	device         DeviceChecker
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithKeyRecordID sets the key record used in the KeyStore.
// Defaults to DefaultKeyRecordID.
func WithKeyRecordID(id KeyRecordID) Option {
	return func(o *options) {
		o.recordID = id
	}
}

// WithAlgorithm selects the AEAD. Defaults to AlgorithmAES256GCM.
// Payloads can only be opened with the algorithm that sealed them.
func WithAlgorithm(alg Algorithm) Option {
	return func(o *options) {
		o.algorithm = alg
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDeviceChecker sets the source for IsDeviceSecure.
func WithDeviceChecker(d DeviceChecker) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// New creates a Manager whose key is persisted in store.
// No key is loaded or generated until the first operation that needs one.
func New(store KeyStore, opts ...Option) (*Manager, error) {
	o := options{
		recordID:  DefaultKeyRecordID,
		algorithm: AlgorithmAES256GCM,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.device == nil {
		o.device = unknownDevice{}
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	keys, err := NewKeyManager(store, o.recordID, o.logger)
	if err != nil {
		return nil, err
	}
	c, err := NewCipher(o.algorithm)
	if err != nil {
		return nil, err
	}
	tel, err := newInstruments(o.tracerProvider, o.meterProvider)
	if err != nil {
		return nil, err
	}

	return &Manager{
		keys:   keys,
		cipher: c,
		device: o.device,
		logger: o.logger,
		tel:    tel,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.keys.State()
}

// Durable reports whether the active key is known to be persisted.
func (m *Manager) Durable() bool {
	return m.keys.Durable()
}

// Algorithm returns the AEAD algorithm in use.
func (m *Manager) Algorithm() Algorithm {
	return m.cipher.Algorithm()
}

// IsDeviceSecure reports the advisory device protection capability.
// It does not influence any cryptographic operation.
func (m *Manager) IsDeviceSecure(ctx context.Context) bool {
	return m.device.IsDeviceSecure(ctx)
}

// EnsureKey resolves the active key, generating and persisting one if needed.
// A returned error matching ErrKeyNotPersisted means the key is active but
// will not survive a restart.
func (m *Manager) EnsureKey(ctx context.Context) (err error) {
	ctx, span := m.tel.start(ctx, opEnsureKey)
	defer func() { m.tel.finish(ctx, span, opEnsureKey, err) }()

	if _, err := m.keys.EnsureKey(ctx); err != nil {
		return m.fail(opEnsureKey, err)
	}
	return nil
}

// activeKey resolves the key for an operation. A persistence soft failure is
// logged and the in-memory key is used.
func (m *Manager) activeKey(ctx context.Context) (*Key, error) {
	key, err := m.keys.EnsureKey(ctx)
	if key == nil {
		return nil, err
	}
	if err != nil {
		m.logger.Warn("data protection key is not durable", zap.String("error_kind", errorKind(err)))
	}
	return key, nil
}

// Wipe crypto-shreds the active key. Everything protected so far becomes
// permanently unrecoverable; the next operation generates a new key.
func (m *Manager) Wipe(ctx context.Context) (err error) {
	ctx, span := m.tel.start(ctx, opWipe)
	defer func() { m.tel.finish(ctx, span, opWipe, err) }()

	if err := m.keys.Wipe(ctx); err != nil {
		return m.fail(opWipe, err)
	}
	return nil
}

// Protect returns a copy of rec in which every string value is replaced by
// its base64 sealed token and every []byte value by its sealed payload.
// The input record is not modified. On error no record is returned.
func (m *Manager) Protect(ctx context.Context, rec Record) (out Record, err error) {
	ctx, span := m.tel.start(ctx, opProtect)
	defer func() { m.tel.finish(ctx, span, opProtect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return nil, m.fail(opProtect, err)
	}

	out = make(Record, len(rec))
	for _, field := range slices.Sorted(maps.Keys(rec)) {
		switch v := rec[field].(type) {
		case string:
			token, err := m.cipher.EncryptString(v, key)
			if err != nil {
				return nil, m.fieldFail(opProtect, field, err)
			}
			out[field] = token
		case []byte:
			sealed, err := m.cipher.EncryptBytes(v, key)
			if err != nil {
				return nil, m.fieldFail(opProtect, field, err)
			}
			out[field] = sealed
		default:
			out[field] = v
		}
	}
	return out, nil
}

// Unprotect reverses Protect. It is all-or-nothing: if any field fails to
// decrypt, the returned error is a *FieldError naming the first failing field
// (in sorted field order) and no plaintext is returned.
func (m *Manager) Unprotect(ctx context.Context, rec Record) (out Record, err error) {
	ctx, span := m.tel.start(ctx, opUnprotect)
	defer func() { m.tel.finish(ctx, span, opUnprotect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return nil, m.fail(opUnprotect, err)
	}

	out = make(Record, len(rec))
	for _, field := range slices.Sorted(maps.Keys(rec)) {
		switch v := rec[field].(type) {
		case string:
			text, err := m.cipher.DecryptString(v, key)
			if err != nil {
				discard(out)
				return nil, m.fieldFail(opUnprotect, field, err)
			}
			out[field] = text
		case []byte:
			plaintext, err := m.cipher.DecryptBytes(v, key)
			if err != nil {
				discard(out)
				return nil, m.fieldFail(opUnprotect, field, err)
			}
			out[field] = plaintext
		default:
			out[field] = v
		}
	}
	return out, nil
}

// ProtectBytes seals a single byte payload with the active key.
func (m *Manager) ProtectBytes(ctx context.Context, plaintext []byte) (sealed []byte, err error) {
	ctx, span := m.tel.start(ctx, opProtect)
	defer func() { m.tel.finish(ctx, span, opProtect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return nil, m.fail(opProtect, err)
	}
	sealed, err = m.cipher.EncryptBytes(plaintext, key)
	if err != nil {
		return nil, m.fail(opProtect, err)
	}
	return sealed, nil
}

// UnprotectBytes opens a payload sealed by ProtectBytes.
func (m *Manager) UnprotectBytes(ctx context.Context, sealed []byte) (plaintext []byte, err error) {
	ctx, span := m.tel.start(ctx, opUnprotect)
	defer func() { m.tel.finish(ctx, span, opUnprotect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return nil, m.fail(opUnprotect, err)
	}
	plaintext, err = m.cipher.DecryptBytes(sealed, key)
	if err != nil {
		return nil, m.fail(opUnprotect, err)
	}
	return plaintext, nil
}

// ProtectString seals text and returns a base64 token.
func (m *Manager) ProtectString(ctx context.Context, text string) (token string, err error) {
	ctx, span := m.tel.start(ctx, opProtect)
	defer func() { m.tel.finish(ctx, span, opProtect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return "", m.fail(opProtect, err)
	}
	token, err = m.cipher.EncryptString(text, key)
	if err != nil {
		return "", m.fail(opProtect, err)
	}
	return token, nil
}

// UnprotectString opens a token produced by ProtectString.
// An empty token yields "" without decryption.
func (m *Manager) UnprotectString(ctx context.Context, token string) (text string, err error) {
	ctx, span := m.tel.start(ctx, opUnprotect)
	defer func() { m.tel.finish(ctx, span, opUnprotect, err) }()

	key, err := m.activeKey(ctx)
	if err != nil {
		return "", m.fail(opUnprotect, err)
	}
	text, err = m.cipher.DecryptString(token, key)
	if err != nil {
		return "", m.fail(opUnprotect, err)
	}
	return text, nil
}

func (m *Manager) fail(op string, err error) error {
	m.logger.Error("data protection failed",
		zap.String("operation", op),
		zap.String("error_kind", errorKind(err)),
	)
	return &ProtectionError{Op: op, Err: err}
}

func (m *Manager) fieldFail(op, field string, err error) error {
	m.logger.Error("data protection failed",
		zap.String("operation", op),
		zap.String("field", field),
		zap.String("error_kind", errorKind(err)),
	)
	return &FieldError{Op: op, Field: field, Err: err}
}

// discard wipes plaintext byte values already decrypted into a partial record.
func discard(rec Record) {
	for k, v := range rec {
		if b, ok := v.([]byte); ok {
			clear(b)
		}
		delete(rec, k)
	}
}
