// Package app wires configuration, storage, the vault, the settings
// manager and the translation client into one value shared by the
// dolmetsch commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/dolmetsch/pkg/config"
	"github.com/rhuss/dolmetsch/pkg/kv"
	"github.com/rhuss/dolmetsch/pkg/kv/file"
	"github.com/rhuss/dolmetsch/pkg/kv/memory"
	"github.com/rhuss/dolmetsch/pkg/kv/postgres"
	"github.com/rhuss/dolmetsch/pkg/kv/sqlite"
	"github.com/rhuss/dolmetsch/pkg/observability"
	"github.com/rhuss/dolmetsch/pkg/session"
	"github.com/rhuss/dolmetsch/pkg/settings"
	"github.com/rhuss/dolmetsch/pkg/translate"
	"github.com/rhuss/dolmetsch/pkg/vault"
)

// App holds the long-lived components of a dolmetsch process.
type App struct {
	Config   *config.Config
	Store    kv.Store
	Vault    *vault.Vault
	Settings *settings.Manager
	Sessions *session.Tracker
	Client   *translate.Client

	closers []func() error
}

// Option configures Open.
type Option func(*options)

type options struct {
	store      kv.Store
	vaultOpts  []vault.Option
	callerOpts []translate.CallerOption
}

// WithStore uses store instead of opening the configured backend.
func WithStore(store kv.Store) Option {
	return func(o *options) { o.store = store }
}

// WithVaultOptions passes extra options to the vault.
func WithVaultOptions(opts ...vault.Option) Option {
	return func(o *options) { o.vaultOpts = append(o.vaultOpts, opts...) }
}

// WithCallerOptions passes extra options to every translation attempt.
func WithCallerOptions(opts ...translate.CallerOption) Option {
	return func(o *options) { o.callerOpts = append(o.callerOpts, opts...) }
}

// Open builds an App from cfg. Close releases the store.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	if o.store != nil {
		a.Store = o.store
	} else {
		store, closer, err := OpenStore(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.Store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	vaultOpts := []vault.Option{vault.WithObserver(observability.Recorder{})}
	a.Vault = vault.New(a.Store, append(vaultOpts, o.vaultOpts...)...)
	a.Settings = settings.NewManager(a.Store, a.Vault)
	a.Sessions = session.NewTracker(a.Store)

	callerOpts := []translate.CallerOption{
		translate.WithObserver(observability.Recorder{}),
		translate.WithQueueSize(cfg.Translate.QueueSize),
	}
	a.Client = translate.NewClient(a.Settings, a.Sessions, append(callerOpts, o.callerOpts...)...).
		WithOverrides(translate.Overrides{
			TargetLanguage: cfg.Translate.TargetLanguage,
			Timeout:        cfg.Translate.Timeout,
			Retries:        cfg.Translate.Retries,
			Stream:         cfg.Translate.Stream,
			StoreResponses: cfg.Translate.StoreResponses,
		})
	return a, nil
}

// Health reports whether the storage backend is reachable.
func (a *App) Health(ctx context.Context) error {
	return kv.Ping(ctx, a.Store)
}

// Close releases the resources opened by Open.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the kv backend selected by cfg. The returned closer may
// be nil.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, func() error, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil, nil
	case "file":
		s, err := file.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file store: %w", err)
		}
		slog.Debug("storage enabled", "type", "file", "path", cfg.Path)
		return s, nil, nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Debug("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			Namespace:      cfg.Postgres.Namespace,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Debug("storage enabled", "type", "postgres", "namespace", cfg.Postgres.Namespace)
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
