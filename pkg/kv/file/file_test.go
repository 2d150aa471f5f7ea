package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/kv"
	"github.com/rhuss/dolmetsch/pkg/kv/kvtest"
)

func TestStore(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := New(filepath.Join(t.TempDir(), "store.json"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	ctx := context.Background()

	s1, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Set(ctx, "AI_TR_SESSION_V1", []byte(`{"sessionId":"abc"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s2.Get(ctx, "AI_TR_SESSION_V1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"sessionId":"abc"}` {
		t.Errorf("Get = %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path)
	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("Get on corrupt file succeeded")
	}
}
