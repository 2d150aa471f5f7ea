package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/kv"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

// Keys under which exports carry vault key material.
const (
	exportMetaMapKey        = "__apiKeyMetaMap"
	exportLegacyMetaKey     = "__apiKeyMeta"
	exportMasterPasswordKey = "__masterPasswordMeta"
)

// Format selects the encoding of an export.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ExportOptions control Export.
type ExportOptions struct {
	// Safe blanks every apiKeyEnc so the export holds no secrets.
	Safe   bool
	Format Format
}

// Export returns the document with the key material needed to open its
// secrets on another machine.
func (m *Manager) Export(ctx context.Context, opts ExportOptions) ([]byte, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Safe {
		for i := range doc.Services {
			doc.Services[i].APIKeyEnc = ""
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	metaMap := make(map[string]json.RawMessage)
	for _, s := range doc.Services {
		meta, err := m.getOptional(ctx, vault.MetaKey(s.ID))
		if err != nil {
			return nil, err
		}
		if meta != nil {
			metaMap[s.ID] = meta
		}
	}
	if len(metaMap) > 0 {
		setRaw(out, exportMetaMapKey, metaMap)
	}
	for key, exportKey := range map[string]string{
		vault.LegacyMetaKey:         exportLegacyMetaKey,
		vault.MasterPasswordMetaKey: exportMasterPasswordKey,
	} {
		meta, err := m.getOptional(ctx, key)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out[exportKey] = meta
		}
	}

	if opts.Format == FormatYAML {
		return toYAML(out)
	}
	return json.MarshalIndent(out, "", "  ")
}

func (m *Manager) getOptional(ctx context.Context, key string) (json.RawMessage, error) {
	v, err := m.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return v, nil
}

// Import replaces the stored document with an export produced by Export
// (JSON or YAML). masterPassword must match the master password record of
// the export, if it has one, and every service key must open with it.
// Nothing is written unless all checks pass.
func (m *Manager) Import(ctx context.Context, data []byte, masterPassword string) error {
	raw, err := decodeExport(data)
	if err != nil {
		return err
	}

	staged := &overlay{base: m.store, entries: map[string][]byte{}}
	var ops []kv.Op
	stage := func(key string, value json.RawMessage) {
		staged.entries[key] = value
		ops = append(ops, kv.SetOp(key, value))
	}

	if v, ok := raw[exportMetaMapKey]; ok {
		var metaMap map[string]json.RawMessage
		if err := json.Unmarshal(v, &metaMap); err != nil {
			return api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "export key material is malformed")
		}
		for id, meta := range metaMap {
			stage(vault.MetaKey(id), meta)
		}
	}
	if v, ok := raw[exportLegacyMetaKey]; ok {
		stage(vault.LegacyMetaKey, v)
	}
	if v, ok := raw[exportMasterPasswordKey]; ok {
		stage(vault.MasterPasswordMetaKey, v)
	}
	for _, k := range []string{exportMetaMapKey, exportLegacyMetaKey, exportMasterPasswordKey} {
		delete(raw, k)
	}

	docData, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	doc, _, err := Parse(docData)
	if err != nil {
		return err
	}

	if err := verifyImport(ctx, m.vault.Bind(staged), doc, masterPassword); err != nil {
		return err
	}

	op, err := documentOp(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := kv.WriteAll(ctx, m.store, append(ops, op)); err != nil {
		return fmt.Errorf("importing settings: %w", err)
	}
	m.vault.InvalidateCache()
	m.vault.InvalidateMasterPassword()
	return nil
}

func verifyImport(ctx context.Context, v *vault.Vault, doc *Document, masterPassword string) error {
	mp := ""
	if doc.MasterPasswordEnc != "" {
		stored, err := v.DecryptMasterPassword(ctx, doc.MasterPasswordEnc)
		if err != nil {
			return err
		}
		if stored != masterPassword {
			return api.NewAuthenticationError(api.CodeWrongPassword, "master password does not match the imported settings")
		}
		mp = masterPassword
	}
	for _, s := range doc.Services {
		if s.APIKeyEnc == "" {
			continue
		}
		if _, err := v.DecryptSecret(ctx, s.APIKeyEnc, mp, s.ID); err != nil {
			return fmt.Errorf("verifying API key of %s: %w", s.ID, err)
		}
	}
	return nil
}

// decodeExport accepts JSON or YAML.
func decodeExport(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "settings export is not valid JSON")
		}
		return raw, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "settings export is neither JSON nor YAML")
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "settings export cannot be converted: "+err.Error())
	}
	if err := json.Unmarshal(js, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func toYAML(out map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// overlay reads staged entries before falling back to base. Writes stay in
// the overlay.
type overlay struct {
	base kv.Store

	mu      sync.Mutex
	entries map[string][]byte
}

func (o *overlay) Get(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	v, ok := o.entries[key]
	o.mu.Unlock()
	if ok {
		return v, nil
	}
	return o.base.Get(ctx, key)
}

func (o *overlay) Set(_ context.Context, key string, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[key] = value
	return nil
}

func (o *overlay) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, key)
	return nil
}
