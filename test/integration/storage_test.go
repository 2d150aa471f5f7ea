package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/mockprovider"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

func TestStatePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		storage config.StorageConfig
	}{
		{"file", config.StorageConfig{Type: "file", Path: filepath.Join(dir, "settings.json")}},
		{"sqlite", config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "settings.db")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newEnv(t, withMock(mockprovider.Options{APIKey: testAPIKey}))
			baseURL := env.srv.URL + "/v1"

			cfg := config.Defaults()
			cfg.Storage = tt.storage
			on := true
			cfg.Translate.StoreResponses = &on

			first := openApp(t, &cfg)
			configureService(t, first, provider.KindResponses, baseURL, "s3cret")
			out, err := first.Client.Translate(ctx, "Hello", streamOpt(false))
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if err := first.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			second := openApp(t, &cfg)
			mp, err := second.Settings.MasterPassword(ctx)
			if err != nil || mp != "s3cret" {
				t.Fatalf("MasterPassword() = %q, %v", mp, err)
			}
			state, err := second.Sessions.Current(ctx)
			if err != nil || state == nil || state.PreviousResponseID != out.ResponseID {
				t.Fatalf("session after restart = %+v, %v", state, err)
			}
			if _, err := second.Client.Translate(ctx, "Again", streamOpt(false)); err != nil {
				t.Fatalf("Translate after restart: %v", err)
			}
			reqs := env.mock.Requests()
			if last := reqs[len(reqs)-1]; last.PreviousResponseID != out.ResponseID {
				t.Errorf("previous_response_id after restart = %q, want %q", last.PreviousResponseID, out.ResponseID)
			}
		})
	}
}
