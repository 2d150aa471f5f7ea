package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/kv"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

// Manager loads and saves the settings document and performs the
// operations that change it together with vault key material. Every
// multi-key change goes through kv.WriteAll.
type Manager struct {
	store kv.Store
	vault *vault.Vault

	mu sync.Mutex
}

// NewManager creates a Manager over store. v must persist its key material
// in the same store.
func NewManager(store kv.Store, v *vault.Vault) *Manager {
	return &Manager{store: store, vault: v}
}

// Vault returns the vault the manager uses.
func (m *Manager) Vault() *vault.Vault {
	return m.vault
}

// Active is the resolved view of the active service.
type Active struct {
	Document *Document
	Service  Profile
	Prompt   Prompt
	APIKey   string
}

// Load returns the stored document, migrating older versions and the
// legacy key in place. A missing document yields Defaults.
func (m *Manager) Load(ctx context.Context) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

func (m *Manager) load(ctx context.Context) (*Document, error) {
	data, err := m.store.Get(ctx, Key)
	fromLegacy := false
	if errors.Is(err, kv.ErrNotFound) {
		data, err = m.store.Get(ctx, legacyKey)
		if errors.Is(err, kv.ErrNotFound) {
			return Defaults(), nil
		}
		fromLegacy = true
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	doc, res, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if !res.Rewrite && !fromLegacy && res.PlainMasterPassword == "" {
		return doc, nil
	}

	var ops []kv.Op
	if res.MovedServices {
		meta, err := m.store.Get(ctx, vault.LegacyMetaKey)
		switch {
		case err == nil:
			ops = append(ops, kv.SetOp(vault.MetaKey(DefaultServiceID), meta))
		case !errors.Is(err, kv.ErrNotFound):
			return nil, fmt.Errorf("loading legacy key material: %w", err)
		}
	}
	if res.PlainMasterPassword != "" && doc.MasterPasswordEnc == "" {
		sealed, err := m.vault.EncryptMasterPassword(ctx, res.PlainMasterPassword, vault.SkipStore())
		if err != nil {
			return nil, err
		}
		op, err := sealed.Op()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		doc.MasterPasswordEnc = sealed.Ciphertext
	}
	op, err := documentOp(doc)
	if err != nil {
		return nil, err
	}
	ops = append(ops, op)
	if fromLegacy {
		ops = append(ops, kv.DeleteOp(legacyKey))
	}
	if err := kv.WriteAll(ctx, m.store, ops); err != nil {
		return nil, fmt.Errorf("saving migrated settings: %w", err)
	}
	slog.Info("settings migrated", "version", Version, "legacyKey", fromLegacy, "movedServices", res.MovedServices)
	return doc, nil
}

// Save normalizes and stores doc.
func (m *Manager) Save(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(ctx, doc)
}

func (m *Manager) save(ctx context.Context, doc *Document) error {
	op, err := documentOp(doc)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, op.Key, op.Value); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	debug.Log("config", "settings saved", "services", len(doc.Services))
	return nil
}

func documentOp(doc *Document) (kv.Op, error) {
	clean := doc.Clone()
	clean.Normalize()
	data, err := json.Marshal(clean)
	if err != nil {
		return kv.Op{}, fmt.Errorf("encoding settings: %w", err)
	}
	return kv.SetOp(Key, data), nil
}

// SetActiveService makes id the active service and drops the vault's
// plaintext cache.
func (m *Manager) SetActiveService(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.vault.InvalidateCache()

	doc, err := m.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc.Service(id); !ok {
		return api.NewConfigurationError(api.CodeMissingSetting, "unknown service "+id)
	}
	doc.ActiveServiceID = id
	return m.save(ctx, doc)
}

// SetActivePrompt makes id the active prompt.
func (m *Manager) SetActivePrompt(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(doc.Prompts, func(p Prompt) bool { return p.ID == id }) {
		return api.NewConfigurationError(api.CodeMissingSetting, "unknown prompt "+id)
	}
	doc.ActivePromptID = id
	return m.save(ctx, doc)
}

// MasterPassword returns the decrypted master password, or "" when none is
// set.
func (m *Manager) MasterPassword(ctx context.Context) (string, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return "", err
	}
	return m.vault.DecryptMasterPassword(ctx, doc.MasterPasswordEnc)
}

// SetAPIKey encrypts plain under the current master password and stores it
// for serviceID. An empty plain clears the key.
func (m *Manager) SetAPIKey(ctx context.Context, serviceID, plain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load(ctx)
	if err != nil {
		return err
	}
	i := doc.serviceIndex(serviceID)
	if i < 0 {
		return api.NewConfigurationError(api.CodeMissingSetting, "unknown service "+serviceID)
	}

	var ops []kv.Op
	if plain == "" {
		doc.Services[i].APIKeyEnc = ""
		ops = append(ops, kv.DeleteOp(vault.MetaKey(serviceID)))
	} else {
		mp, err := m.vault.DecryptMasterPassword(ctx, doc.MasterPasswordEnc)
		if err != nil {
			return err
		}
		sealed, err := m.vault.EncryptSecret(ctx, plain, mp, serviceID, vault.SkipStore())
		if err != nil {
			return err
		}
		op, err := sealed.Op()
		if err != nil {
			return err
		}
		doc.Services[i].APIKeyEnc = sealed.Ciphertext
		ops = append(ops, op)
	}

	op, err := documentOp(doc)
	if err != nil {
		return err
	}
	if err := kv.WriteAll(ctx, m.store, append(ops, op)); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}
	m.vault.InvalidateCache()
	debug.Log("vault", "API key stored", "service", serviceID, "key", debug.MaskKey(plain))
	return nil
}

// APIKey decrypts the key of the active service, unlocking it with the
// stored master password.
func (m *Manager) APIKey(ctx context.Context) (string, error) {
	a, err := m.Active(ctx)
	if err != nil {
		return "", err
	}
	return a.APIKey, nil
}

// Active resolves the active service, its prompt and its decrypted API key.
func (m *Manager) Active(ctx context.Context) (*Active, error) {
	return m.Resolve(ctx, "")
}

// Resolve is Active for the service serviceID. An empty id selects the
// active service. The stored document is not changed.
func (m *Manager) Resolve(ctx context.Context, serviceID string) (*Active, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	if serviceID != "" {
		if _, ok := doc.Service(serviceID); !ok {
			return nil, api.NewConfigurationError(api.CodeMissingSetting, "unknown service "+serviceID)
		}
		doc.ActiveServiceID = serviceID
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	svc := doc.ActiveService()
	mp, err := m.vault.DecryptMasterPassword(ctx, doc.MasterPasswordEnc)
	if err != nil {
		return nil, err
	}
	key, err := m.vault.DecryptSecret(ctx, svc.APIKeyEnc, mp, svc.ID)
	if err != nil {
		return nil, err
	}
	return &Active{Document: doc, Service: svc, Prompt: doc.ActivePrompt(), APIKey: key}, nil
}

// ChangeMasterPassword re-encrypts every service key under newPassword and
// replaces the master password record. An empty newPassword removes the
// master password; keys are then sealed with the obfuscation key only.
//
// Key material, the master password record and the document are written in
// one kv.WriteAll: on failure the previous state is kept.
func (m *Manager) ChangeMasterPassword(ctx context.Context, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load(ctx)
	if err != nil {
		return err
	}
	oldPassword, err := m.vault.DecryptMasterPassword(ctx, doc.MasterPasswordEnc)
	if err != nil {
		return err
	}

	secrets := make([]vault.ScopedSecret, len(doc.Services))
	for i, s := range doc.Services {
		secrets[i] = vault.ScopedSecret{ScopeID: s.ID, Ciphertext: s.APIKeyEnc}
	}
	plan, err := m.vault.PrepareRekey(ctx, secrets, oldPassword, newPassword)
	if err != nil {
		return err
	}

	next := doc.Clone()
	for i, s := range plan.Secrets {
		next.Services[i].APIKeyEnc = s.Ciphertext
	}
	ops := slices.Clone(plan.Ops)
	if newPassword == "" {
		next.MasterPasswordEnc = ""
		ops = append(ops, kv.DeleteOp(vault.MasterPasswordMetaKey))
	} else {
		sealed, err := m.vault.EncryptMasterPassword(ctx, newPassword, vault.SkipStore())
		if err != nil {
			return err
		}
		op, err := sealed.Op()
		if err != nil {
			return err
		}
		next.MasterPasswordEnc = sealed.Ciphertext
		ops = append(ops, op)
	}
	docOp, err := documentOp(next)
	if err != nil {
		return err
	}
	ops = append(ops, docOp)

	m.vault.InvalidateCache()
	if err := kv.WriteAll(ctx, m.store, ops); err != nil {
		m.vault.InvalidateMasterPassword()
		return fmt.Errorf("changing master password: %w", err)
	}
	slog.Info("master password changed", "services", len(plan.Ops), "enabled", newPassword != "")
	return nil
}

// ClearMasterPassword removes the master password.
func (m *Manager) ClearMasterPassword(ctx context.Context) error {
	return m.ChangeMasterPassword(ctx, "")
}
