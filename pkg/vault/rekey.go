package vault

import (
	"context"
	"fmt"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/kv"
)

// ScopedSecret is a ciphertext together with the scope its meta record is
// stored under.
type ScopedSecret struct {
	ScopeID    string
	Ciphertext string
}

// RekeyPlan holds re-encrypted secrets and the kv writes that persist
// their new meta records. Nothing is written until the caller applies Ops.
type RekeyPlan struct {
	Secrets []ScopedSecret
	Ops     []kv.Op
}

// PrepareRekey opens every secret with oldPassword and seals it again with
// newPassword. Empty ciphertexts are passed through. The store is not
// touched; any failure leaves no trace.
func (v *Vault) PrepareRekey(ctx context.Context, secrets []ScopedSecret, oldPassword, newPassword string) (*RekeyPlan, error) {
	plan := &RekeyPlan{Secrets: make([]ScopedSecret, len(secrets))}
	seen := make(map[string]bool, len(secrets))

	for i, s := range secrets {
		plan.Secrets[i] = s
		if s.Ciphertext == "" {
			continue
		}
		if seen[s.ScopeID] {
			return nil, api.NewConfigurationError(api.CodeMissingSetting, "duplicate secret scope "+s.ScopeID)
		}
		seen[s.ScopeID] = true

		plain, err := v.DecryptSecret(ctx, s.Ciphertext, oldPassword, s.ScopeID)
		if err != nil {
			return nil, fmt.Errorf("re-key %s: %w", s.ScopeID, err)
		}
		sealed, err := v.EncryptSecret(ctx, plain, newPassword, s.ScopeID, SkipStore())
		if err != nil {
			return nil, fmt.Errorf("re-key %s: %w", s.ScopeID, err)
		}
		op, err := sealed.Op()
		if err != nil {
			return nil, err
		}
		plan.Secrets[i].Ciphertext = sealed.Ciphertext
		plan.Ops = append(plan.Ops, op)
	}
	return plan, nil
}

// Rekey re-encrypts secrets under newPassword and persists every new meta
// record in one kv.WriteAll. On failure no meta record changes and the
// returned slice is nil.
func (v *Vault) Rekey(ctx context.Context, secrets []ScopedSecret, oldPassword, newPassword string) ([]ScopedSecret, error) {
	plan, err := v.PrepareRekey(ctx, secrets, oldPassword, newPassword)
	if err != nil {
		return nil, err
	}
	if err := kv.WriteAll(ctx, v.store, plan.Ops); err != nil {
		return nil, fmt.Errorf("persisting re-keyed material: %w", err)
	}
	v.InvalidateCache()
	debug.Log("vault", "secrets re-keyed", "count", len(plan.Ops))
	return plan.Secrets, nil
}
