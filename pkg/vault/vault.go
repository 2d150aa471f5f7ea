package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/kv"
)

// Observer receives vault events, typically to update metrics.
type Observer interface {
	KeyDerived()
	CacheLookup(hit bool)
	DecryptFailed(kind api.Kind)
}

// Stats counts cache lookups and key derivations since the vault was
// created.
type Stats struct {
	Hits        int64
	Misses      int64
	Derivations int64
}

// Option configures a Vault.
type Option func(*Vault)

// WithIterations overrides the PBKDF2 work factor. Ciphertext produced with
// a different value cannot be opened by a default vault; use in tests only.
func WithIterations(n int) Option {
	return func(v *Vault) { v.iterations = n }
}

// WithRandom replaces the source of salts and nonces.
func WithRandom(r io.Reader) Option {
	return func(v *Vault) { v.rand = r }
}

// WithObserver registers o for vault events.
func WithObserver(o Observer) Option {
	return func(v *Vault) { v.observer = o }
}

// EncryptOption configures a single encryption.
type EncryptOption func(*encryptOptions)

type encryptOptions struct {
	skipStore bool
}

// SkipStore leaves the meta record unpersisted. The caller writes it, for
// instance as part of a kv.WriteAll batch.
func SkipStore() EncryptOption {
	return func(o *encryptOptions) { o.skipStore = true }
}

type secretEnvelope struct {
	V   int    `json:"v"`
	Key string `json:"key"`
	Chk string `json:"chk"`
}

type masterEnvelope struct {
	V   int    `json:"v"`
	MP  string `json:"mp"`
	Chk string `json:"chk"`
}

type secretCache struct {
	plain      string
	tag        string
	ciphertext string
	scope      string
}

type masterCache struct {
	plain      string
	ciphertext string
}

// Vault seals and opens secrets. It is safe for concurrent use.
type Vault struct {
	store      kv.Store
	iterations int
	rand       io.Reader
	observer   Observer

	mu     sync.Mutex
	secret *secretCache
	master *masterCache
	stats  Stats

	warnEvery rate.Sometimes
}

// New returns a vault persisting key material in store.
func New(store kv.Store, opts ...Option) *Vault {
	v := &Vault{
		store:      store,
		iterations: Iterations,
		rand:       rand.Reader,
		warnEvery:  rate.Sometimes{Interval: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Bind returns a vault with the same settings reading and writing key
// material in store. The new vault starts with empty caches.
func (v *Vault) Bind(store kv.Store) *Vault {
	return &Vault{
		store:      store,
		iterations: v.iterations,
		rand:       v.rand,
		observer:   v.observer,
		warnEvery:  rate.Sometimes{Interval: 2 * time.Second},
	}
}

// EncryptSecret seals secret under masterPassword for scopeID. Unless
// SkipStore is given, the meta record is written to the store.
func (v *Vault) EncryptSecret(ctx context.Context, secret, masterPassword, scopeID string, opts ...EncryptOption) (Sealed, error) {
	var o encryptOptions
	for _, opt := range opts {
		opt(&o)
	}

	plain, err := json.Marshal(secretEnvelope{V: 1, Key: secret, Chk: checksum(secret, 10)})
	if err != nil {
		return Sealed{}, fmt.Errorf("encoding envelope: %w", err)
	}
	sealed, err := v.seal(Mix(masterPassword), plain)
	if err != nil {
		return Sealed{}, err
	}
	sealed.MetaKey = MetaKey(scopeID)

	if !o.skipStore {
		if err := v.persist(ctx, sealed); err != nil {
			return Sealed{}, err
		}
	}
	debug.Log("vault", "secret sealed", "scope", scopeID, "stored", !o.skipStore)
	return sealed, nil
}

// DecryptSecret opens ciphertext with masterPassword. The meta record is
// looked up under scopeID and then under the legacy unscoped key. An empty
// ciphertext yields an empty secret.
//
// Errors are *api.Error values: Authentication for a wrong password or a
// checksum mismatch, UnsupportedFormat for an unreadable envelope and
// Configuration (code missing_key_material) when no meta record exists.
func (v *Vault) DecryptSecret(ctx context.Context, ciphertext, masterPassword, scopeID string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	tag := Mix(masterPassword)

	v.mu.Lock()
	if c := v.secret; c != nil && c.tag == tag && c.ciphertext == ciphertext && c.scope == scopeID {
		v.stats.Hits++
		plain := c.plain
		v.mu.Unlock()
		v.observeLookup(true)
		return plain, nil
	}
	v.stats.Misses++
	v.mu.Unlock()
	v.observeLookup(false)

	meta, err := v.loadMeta(ctx, scopeID)
	if err != nil {
		return "", err
	}

	raw, err := v.open(tag, meta, ciphertext)
	var apiErr *api.Error
	switch {
	case errors.Is(err, errOpen):
		return "", v.wrongPassword(scopeID)
	case errors.As(err, &apiErr):
		return "", v.fail(apiErr)
	case err != nil:
		return "", err
	}

	var env secretEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", v.fail(api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "unsupported ciphertext format"))
	}
	if env.V != 1 || env.Key == "" || env.Chk == "" {
		return "", v.fail(api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "unsupported ciphertext format"))
	}
	if checksum(env.Key, 10) != env.Chk {
		return "", v.wrongPassword(scopeID)
	}

	v.mu.Lock()
	v.secret = &secretCache{plain: env.Key, tag: tag, ciphertext: ciphertext, scope: scopeID}
	v.mu.Unlock()

	debug.Log("vault", "secret opened", "scope", scopeID)
	return env.Key, nil
}

// EncryptMasterPassword seals the master password under the constant
// obfuscation key and, unless SkipStore is given, persists its meta record.
func (v *Vault) EncryptMasterPassword(ctx context.Context, masterPassword string, opts ...EncryptOption) (Sealed, error) {
	var o encryptOptions
	for _, opt := range opts {
		opt(&o)
	}

	plain, err := json.Marshal(masterEnvelope{V: 1, MP: masterPassword, Chk: checksum(masterPassword, 8)})
	if err != nil {
		return Sealed{}, fmt.Errorf("encoding envelope: %w", err)
	}
	sealed, err := v.seal(Mix(""), plain)
	if err != nil {
		return Sealed{}, err
	}
	sealed.MetaKey = MasterPasswordMetaKey

	if !o.skipStore {
		if err := v.persist(ctx, sealed); err != nil {
			return Sealed{}, err
		}
	}

	v.mu.Lock()
	v.master = &masterCache{plain: masterPassword, ciphertext: sealed.Ciphertext}
	v.mu.Unlock()
	return sealed, nil
}

// DecryptMasterPassword opens the master password record. Every failure is
// reported as UnsupportedFormat: the record has to be set again.
func (v *Vault) DecryptMasterPassword(ctx context.Context, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	v.mu.Lock()
	if c := v.master; c != nil && c.ciphertext == ciphertext {
		plain := c.plain
		v.mu.Unlock()
		return plain, nil
	}
	v.mu.Unlock()

	corrupted := func() error {
		return v.fail(api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "master password record corrupted"))
	}

	data, err := v.store.Get(ctx, MasterPasswordMetaKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", corrupted()
	}
	if err != nil {
		return "", fmt.Errorf("loading master password meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil || !meta.valid() {
		return "", corrupted()
	}

	raw, err := v.open(Mix(""), meta, ciphertext)
	if err != nil {
		return "", corrupted()
	}
	var env masterEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", corrupted()
	}
	if env.V != 1 || env.MP == "" || env.Chk == "" || checksum(env.MP, 8) != env.Chk {
		return "", corrupted()
	}

	v.mu.Lock()
	v.master = &masterCache{plain: env.MP, ciphertext: ciphertext}
	v.mu.Unlock()
	return env.MP, nil
}

// InvalidateCache drops the cached plaintext secret.
func (v *Vault) InvalidateCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secret = nil
}

// InvalidateMasterPassword drops the cached master password.
func (v *Vault) InvalidateMasterPassword() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.master = nil
}

// CacheStats returns a copy of the counters.
func (v *Vault) CacheStats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

var errOpen = errors.New("vault: authentication failed")

func (v *Vault) seal(password string, plaintext []byte) (Sealed, error) {
	salt := make([]byte, SaltSize)
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(v.rand, salt); err != nil {
		return Sealed{}, fmt.Errorf("generating salt: %w", err)
	}
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return Sealed{}, fmt.Errorf("generating nonce: %w", err)
	}

	gcm, err := newGCM(v.derive(password, salt))
	if err != nil {
		return Sealed{}, fmt.Errorf("creating cipher: %w", err)
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Meta:       Meta{Salt: salt, Nonce: nonce},
	}, nil
}

// open returns errOpen when GCM authentication fails and an
// UnsupportedFormat *api.Error when the ciphertext is not base64.
func (v *Vault) open(password string, meta Meta, ciphertext string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "ciphertext is not valid base64")
	}
	gcm, err := newGCM(v.derive(password, meta.Salt))
	if err != nil {
		return nil, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "invalid key material")
	}
	plain, err := gcm.Open(nil, meta.Nonce, ct, nil)
	if err != nil {
		return nil, errOpen
	}
	return plain, nil
}

func (v *Vault) derive(password string, salt []byte) []byte {
	v.mu.Lock()
	v.stats.Derivations++
	v.mu.Unlock()
	if v.observer != nil {
		v.observer.KeyDerived()
	}
	return deriveKey(password, salt, v.iterations)
}

func (v *Vault) loadMeta(ctx context.Context, scopeID string) (Meta, error) {
	keys := []string{MetaKey(scopeID)}
	if scopeID != "" {
		keys = append(keys, LegacyMetaKey)
	}

	for _, key := range keys {
		data, err := v.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return Meta{}, fmt.Errorf("loading key material: %w", err)
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil || !meta.valid() {
			return Meta{}, v.fail(api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "key material record is corrupted"))
		}
		if key != keys[0] {
			debug.Log("vault", "using legacy key material", "scope", scopeID)
		}
		return meta, nil
	}
	return Meta{}, v.fail(api.NewConfigurationError(api.CodeMissingKeyMaterial, "missing key material for service "+scopeID))
}

func (v *Vault) persist(ctx context.Context, sealed Sealed) error {
	op, err := sealed.Op()
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, op.Key, op.Value); err != nil {
		return fmt.Errorf("storing key material: %w", err)
	}
	return nil
}

func (v *Vault) wrongPassword(scopeID string) error {
	v.warnEvery.Do(func() {
		slog.Warn("secret could not be decrypted, master password is probably wrong", "scope", scopeID)
	})
	return v.fail(api.NewAuthenticationError(api.CodeWrongPassword, "wrong master password"))
}

func (v *Vault) fail(err *api.Error) error {
	if v.observer != nil {
		v.observer.DecryptFailed(err.Kind)
	}
	return err
}

func (v *Vault) observeLookup(hit bool) {
	if v.observer != nil {
		v.observer.CacheLookup(hit)
	}
}
