// Package integration runs the dolmetsch client end to end against the
// in-process mock provider, started with net/http/httptest.
package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/app"
	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/mockprovider"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/translate"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

const testAPIKey = "sk-integration"

// testEnv is one client wired to one mock provider.
type testEnv struct {
	mock *mockprovider.Server
	srv  *httptest.Server
	app  *app.App
}

type envOption func(*envConfig)

type envConfig struct {
	kind     provider.Kind
	mock     mockprovider.Options
	cfg      config.Config
	storage  config.StorageConfig
	password string
}

func withKind(k provider.Kind) envOption { return func(c *envConfig) { c.kind = k } }

func withMock(o mockprovider.Options) envOption { return func(c *envConfig) { c.mock = o } }

func withRetries(n int) envOption { return func(c *envConfig) { c.cfg.Translate.Retries = &n } }

func withStoreResponses() envOption {
	return func(c *envConfig) {
		on := true
		c.cfg.Translate.StoreResponses = &on
	}
}

func withMasterPassword(pw string) envOption { return func(c *envConfig) { c.password = pw } }

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	c := envConfig{kind: provider.KindResponses, cfg: config.Defaults()}
	c.cfg.Storage = config.StorageConfig{Type: "memory"}
	for _, o := range opts {
		o(&c)
	}
	if c.mock.APIKey == "" {
		c.mock.APIKey = testAPIKey
	}

	env := &testEnv{mock: mockprovider.New(c.mock)}
	env.srv = httptest.NewServer(env.mock.Handler())
	t.Cleanup(env.srv.Close)

	env.app = openApp(t, &c.cfg)
	configureService(t, env.app, c.kind, env.srv.URL+"/v1", c.password)
	return env
}

func openApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), cfg, app.WithVaultOptions(vault.WithIterations(1000)))
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func configureService(t *testing.T, a *app.App, kind provider.Kind, baseURL, password string) {
	t.Helper()
	ctx := context.Background()
	doc, err := a.Settings.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Services[0].Kind = kind
	doc.Services[0].BaseURL = baseURL
	doc.Services[0].Model = "mock-model"
	doc.TargetLanguage = "de"
	if err := a.Settings.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if password != "" {
		if err := a.Settings.ChangeMasterPassword(ctx, password); err != nil {
			t.Fatalf("ChangeMasterPassword: %v", err)
		}
	}
	if err := a.Settings.SetAPIKey(ctx, doc.Services[0].ID, testAPIKey); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
}

func streamOpt(on bool) translate.Options {
	return translate.Options{Stream: &on}
}

// collector gathers emitted deltas.
type collector struct {
	mu     sync.Mutex
	deltas []string
}

func (c *collector) emit(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deltas = append(c.deltas, s)
	return nil
}

func (c *collector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.deltas, "")
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deltas)
}
