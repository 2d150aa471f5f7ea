// Package kvtest holds the behaviour every kv.Store backend must share.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/kv"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("SetAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Set(ctx, "AI_TR_CFG", []byte(`{"version":2}`)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Get(ctx, "AI_TR_CFG")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != `{"version":2}` {
			t.Errorf("Get = %q", got)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "missing")
		if !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "k", []byte("one"))
		_ = s.Set(ctx, "k", []byte("two"))
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("Get = %q, want %q", got, "two")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "k", []byte("v"))
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get after Delete = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Errorf("Delete of missing key = %v, want nil", err)
		}
	})

	t.Run("BinaryValue", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v := []byte{0x00, 0xff, 0x10, '\n', '"'}
		_ = s.Set(ctx, "bin", v)
		got, err := s.Get(ctx, "bin")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, v) {
			t.Errorf("Get = %v, want %v", got, v)
		}
	})

	t.Run("WriteAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_ = s.Set(ctx, "gone", []byte("x"))
		err := kv.WriteAll(ctx, s, []kv.Op{
			kv.SetOp("a", []byte("1")),
			kv.SetOp("b", []byte("2")),
			kv.DeleteOp("gone"),
		})
		if err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
		for k, want := range map[string]string{"a": "1", "b": "2"} {
			got, err := s.Get(ctx, k)
			if err != nil || string(got) != want {
				t.Errorf("Get(%s) = %q, %v; want %q", k, got, err, want)
			}
		}
		if _, err := s.Get(ctx, "gone"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get(gone) = %v, want ErrNotFound", err)
		}
	})
}
