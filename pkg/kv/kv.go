package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhuss/dolmetsch/pkg/debug"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the minimal key-value interface. Delete of a missing key is not
// an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Op is one write in a batch: a Set, or a Delete when Delete is true.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// SetOp returns an Op that stores value under key.
func SetOp(key string, value []byte) Op {
	return Op{Key: key, Value: value}
}

// DeleteOp returns an Op that removes key.
func DeleteOp(key string) Op {
	return Op{Key: key, Delete: true}
}

// Batcher is implemented by stores that can apply several writes
// atomically.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}

// HealthChecker is implemented by stores backed by a database connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Ping checks the backend of s. Stores without a connection are always
// healthy.
func Ping(ctx context.Context, s Store) error {
	if hc, ok := s.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// WriteAll applies ops so that either all of them persist or the store is
// left as it was. On failure the returned error wraps the write error and,
// if restoring also failed, the restore error.
func WriteAll(ctx context.Context, s Store, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	if b, ok := s.(Batcher); ok {
		return b.Apply(ctx, ops)
	}

	type snapshot struct {
		key     string
		value   []byte
		present bool
	}

	snaps := make([]snapshot, 0, len(ops))
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if seen[op.Key] {
			continue
		}
		seen[op.Key] = true
		v, err := s.Get(ctx, op.Key)
		switch {
		case errors.Is(err, ErrNotFound):
			snaps = append(snaps, snapshot{key: op.Key})
		case err != nil:
			return fmt.Errorf("snapshot %s: %w", op.Key, err)
		default:
			snaps = append(snaps, snapshot{key: op.Key, value: v, present: true})
		}
	}

	for i, op := range ops {
		var err error
		if op.Delete {
			err = s.Delete(ctx, op.Key)
		} else {
			err = s.Set(ctx, op.Key, op.Value)
		}
		if err == nil {
			continue
		}

		debug.Log("storage", "batch write failed, restoring", "key", op.Key, "applied", i)
		var restoreErrs []error
		for j := len(snaps) - 1; j >= 0; j-- {
			sn := snaps[j]
			var rerr error
			if sn.present {
				rerr = s.Set(ctx, sn.key, sn.value)
			} else {
				rerr = s.Delete(ctx, sn.key)
			}
			if rerr != nil {
				restoreErrs = append(restoreErrs, fmt.Errorf("restore %s: %w", sn.key, rerr))
			}
		}
		return errors.Join(append([]error{fmt.Errorf("write %s: %w", op.Key, err)}, restoreErrs...)...)
	}
	return nil
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
