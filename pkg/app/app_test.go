package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/translate"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"memory", config.StorageConfig{Type: "memory"}, false},
		{"file", config.StorageConfig{Type: "file", Path: filepath.Join(dir, "s.json")}, false},
		{"sqlite", config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "s.db")}}, false},
		{"unknown", config.StorageConfig{Type: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, closer, err := OpenStore(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			if closer != nil {
				defer closer()
			}
			if err := store.Set(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if v, err := store.Get(ctx, "k"); err != nil || string(v) != "v" {
				t.Errorf("Get() = %q, %v", v, err)
			}
		})
	}
}

func TestOpenTranslates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Hallo"}}]}`)
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Storage.Type = "memory"
	stream := false
	cfg.Translate.Stream = &stream

	ctx := context.Background()
	a, err := Open(ctx, &cfg, WithVaultOptions(vault.WithIterations(1000)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	doc, _ := a.Settings.Load(ctx)
	doc.Services[0].Kind = provider.KindChat
	doc.Services[0].BaseURL = srv.URL
	if err := a.Settings.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Settings.SetAPIKey(ctx, doc.Services[0].ID, "sk-app"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}

	out, err := a.Client.Translate(ctx, "Hello", translate.Options{})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Text != "Hallo" {
		t.Errorf("Text = %q", out.Text)
	}
}
