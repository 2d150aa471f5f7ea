package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rhuss/dolmetsch/pkg/kv"
)

// Persisted key names.
const (
	// LegacyMetaKey held the salt and nonce before secrets were scoped per
	// service. It is still consulted when a scoped entry is missing.
	LegacyMetaKey = "AI_TR_ENC_META_V1"

	// MasterPasswordMetaKey holds the salt and nonce of the master password
	// record.
	MasterPasswordMetaKey = "AI_TR_MP_META_V1"
)

// MetaKey returns the kv key of the meta record for scopeID. An empty
// scope maps to the legacy unscoped key.
func MetaKey(scopeID string) string {
	if scopeID == "" {
		return LegacyMetaKey
	}
	return LegacyMetaKey + "__" + scopeID
}

// Meta is the out-of-band key material of one sealed secret.
//
// On the wire salt and nonce are JSON arrays of byte values. Base64 strings
// are accepted when reading.
type Meta struct {
	Salt  []byte
	Nonce []byte
}

type metaJSON struct {
	Salt  json.RawMessage `json:"salt"`
	Nonce json.RawMessage `json:"nonce"`
}

// MarshalJSON implements json.Marshaler.
func (m Meta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Salt  []int `json:"salt"`
		Nonce []int `json:"nonce"`
	}{byteList(m.Salt), byteList(m.Nonce)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var raw metaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	salt, err := decodeBytes(raw.Salt)
	if err != nil {
		return fmt.Errorf("salt: %w", err)
	}
	nonce, err := decodeBytes(raw.Nonce)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	m.Salt, m.Nonce = salt, nonce
	return nil
}

func (m Meta) valid() bool {
	return len(m.Salt) > 0 && len(m.Nonce) == NonceSize
}

// Sealed is the result of an encryption: the base64 ciphertext, the meta
// record and the kv key the meta belongs under.
type Sealed struct {
	Ciphertext string
	Meta       Meta
	MetaKey    string
}

// Op returns the kv write that persists the meta record.
func (s Sealed) Op() (kv.Op, error) {
	data, err := json.Marshal(s.Meta)
	if err != nil {
		return kv.Op{}, fmt.Errorf("encoding meta: %w", err)
	}
	return kv.SetOp(s.MetaKey, data), nil
}

func byteList(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func decodeBytes(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
