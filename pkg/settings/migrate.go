package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/prompt"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

// parseResult describes what Parse had to change.
type parseResult struct {
	// Rewrite is set when the stored bytes differ from the current format.
	Rewrite bool

	// MovedServices is set when root-level service fields of a version 1
	// document were moved into services[0].
	MovedServices bool

	// PlainMasterPassword is a master password that an old version stored
	// in clear text. The caller encrypts it.
	PlainMasterPassword string
}

// plaintextFields are never kept in a loaded document.
var plaintextFields = []string{"masterPassword", "useMasterPassword", "apiKey", "theme"}

// numericFields may have been stored as strings by old versions.
var numericFields = []string{"temperature", "maxTokens", "timeoutMs", "retries"}

// Parse decodes a settings document of any supported version, migrating it
// to the current one. Versions newer than Version are rejected.
func Parse(data []byte) (*Document, parseResult, error) {
	var res parseResult
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, res, api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "settings document is not valid JSON")
	}

	version := 1
	if v, ok := raw["version"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err == nil && n > 0 {
			version = n
		}
	}
	if version > Version {
		return nil, res, api.NewUnsupportedFormatError(api.CodeCorruptedRecord,
			fmt.Sprintf("settings version %d is newer than supported version %d", version, Version))
	}

	if normalizeNumbers(raw) {
		res.Rewrite = true
	}
	if !isArray(raw["services"]) {
		if err := moveServiceFields(raw); err != nil {
			return nil, res, err
		}
		res.MovedServices = true
	}
	if version < 2 {
		migratePrompts(raw)
	}
	if version < Version || res.MovedServices {
		res.Rewrite = true
	}

	if mp, ok := raw["masterPassword"]; ok {
		_ = json.Unmarshal(mp, &res.PlainMasterPassword)
	}
	for _, k := range plaintextFields {
		if _, ok := raw[k]; ok {
			delete(raw, k)
			res.Rewrite = true
		}
	}

	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, res, fmt.Errorf("re-encoding settings: %w", err)
	}
	doc := Defaults()
	if err := json.Unmarshal(merged, doc); err != nil {
		return nil, res, fmt.Errorf("decoding settings: %w", err)
	}
	doc.Normalize()
	return doc, res, nil
}

// moveServiceFields turns the root-level service fields of a version 1
// document into a single service. Root temperature and maxTokens stay in
// place as global defaults.
func moveServiceFields(raw map[string]json.RawMessage) error {
	var legacy struct {
		APIType     string   `json:"apiType"`
		BaseURL     string   `json:"baseUrl"`
		APIKeyEnc   string   `json:"apiKeyEnc"`
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   *int     `json:"maxTokens"`
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return api.NewUnsupportedFormatError(api.CodeCorruptedRecord, "version 1 settings are malformed")
	}

	kind, err := provider.ParseKind(legacy.APIType)
	if err != nil {
		return err
	}
	svc := defaultService()
	svc.Kind = kind
	if legacy.BaseURL != "" {
		svc.BaseURL = legacy.BaseURL
	}
	if legacy.Model != "" {
		svc.Model = legacy.Model
	}
	svc.APIKeyEnc = legacy.APIKeyEnc
	if legacy.Temperature != nil {
		svc.Temperature = *legacy.Temperature
	}
	svc.MaxTokens = legacy.MaxTokens

	for _, k := range []string{"apiType", "baseUrl", "apiKeyEnc", "model"} {
		delete(raw, k)
	}
	setRaw(raw, "services", []Profile{svc})
	setRaw(raw, "activeServiceId", DefaultServiceID)
	return nil
}

// migratePrompts replaces the single promptTemplate of a version 1 document
// with a prompt set.
func migratePrompts(raw map[string]json.RawMessage) {
	var tpl string
	if v, ok := raw["promptTemplate"]; ok {
		_ = json.Unmarshal(v, &tpl)
	}
	if tpl == "" {
		tpl = prompt.DefaultTemplate
	}
	delete(raw, "promptTemplate")
	setRaw(raw, "prompts", []Prompt{{ID: DefaultPromptID, Name: DefaultPromptName, Template: tpl}})
	setRaw(raw, "activePromptId", DefaultPromptID)
	setRaw(raw, "version", Version)
}

// normalizeNumbers converts numeric fields stored as strings. Empty or
// unparsable strings are dropped so the default applies.
func normalizeNumbers(raw map[string]json.RawMessage) bool {
	changed := false
	for _, k := range numericFields {
		v, ok := raw[k]
		if !ok || len(v) == 0 || v[0] != '"' {
			continue
		}
		changed = true
		var s string
		_ = json.Unmarshal(v, &s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			delete(raw, k)
			continue
		}
		setRaw(raw, k, f)
	}
	return changed
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

func setRaw(raw map[string]json.RawMessage, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("settings: encoding %s: %v", key, err))
	}
	raw[key] = data
}
