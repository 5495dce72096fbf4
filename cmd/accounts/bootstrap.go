package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/jwks"
	"github.com/goliatone/go-accounts/lock"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/provider/auth0"
	"github.com/goliatone/go-accounts/provider/cognito"
	"github.com/goliatone/go-accounts/repository"
	"github.com/uptrace/bun"
)

type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *bun.DB
	store    *repository.ProfileStore
	provider accounts.IdentityProvider
	metrics  *metrics.Collector
	service  *accounts.Service
	closers  []func() error
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// bootstrapDatabase wires only the logger and the profile store.
func bootstrapDatabase(configPath string) (*app, error) {
	cfg, err := config.LoadDatabase(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Config{
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		Service: "accounts",
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})
	return a, nil
}

func (a *app) openStore() error {
	db, err := repository.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.store = repository.NewProfileStore(db)
	return nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := a.openStore(); err != nil {
		return err
	}

	issuer, jwksURL, err := a.wireProvider(ctx)
	if err != nil {
		return err
	}

	groups := accounts.GroupNames{
		Admin:     cfg.Auth.AdminGroup,
		Developer: cfg.Auth.DeveloperGroup,
	}

	keys, err := jwks.New(jwks.Config{URL: jwksURL, TTL: cfg.Auth.JWKSCacheTTL})
	if err != nil {
		return err
	}

	validator, err := accounts.NewTokenValidator(accounts.TokenValidatorConfig{
		Issuer: issuer,
		KeySet: keys,
		Groups: groups,
	}, accounts.WithTokenValidatorLogger(a.logger))
	if err != nil {
		return err
	}

	locker, err := a.wireLocker(ctx)
	if err != nil {
		return err
	}

	collector, err := metrics.New()
	if err != nil {
		return err
	}
	a.metrics = collector

	sinks := accounts.ActivitySinks{
		accounts.NewLoggingActivitySink(a.logger),
		collector,
	}
	if cfg.Log.ActivityStream {
		sinks = append(sinks, activitymap.NewWriterSink(os.Stdout))
	}

	a.service, err = accounts.NewService(accounts.ServiceConfig{
		Provider:        a.provider,
		Profiles:        a.store,
		Validator:       validator,
		Groups:          groups,
		Locker:          locker,
		Activity:        sinks,
		Logger:          a.logger,
		SyncPageSize:    cfg.Sync.PageSize,
		SyncConcurrency: cfg.Sync.Concurrency,
	})
	if err != nil {
		return err
	}

	a.logger.Debug("accounts wired",
		"provider", a.provider.Name(),
		"issuer", issuer,
		"jwks", keys.URL(),
		"lock", cfg.Lock.Kind,
		"database", cfg.Database.Driver,
	)
	return nil
}

// wireProvider returns the issuer and key set URL for the selected provider,
// honoring the auth overrides.
func (a *app) wireProvider(ctx context.Context) (string, string, error) {
	cfg := a.cfg
	var issuer, jwksURL string

	switch cfg.Provider.Kind {
	case config.ProviderAuth0:
		pcfg := auth0.Config{
			Domain:       cfg.Provider.Auth0.Domain,
			ClientID:     cfg.Provider.Auth0.ClientID,
			ClientSecret: cfg.Provider.Auth0.ClientSecret,
		}
		provider, err := auth0.New(ctx, pcfg)
		if err != nil {
			return "", "", err
		}
		a.provider = provider
		issuer, jwksURL = pcfg.IssuerURL(), pcfg.JWKSURL()
	default:
		pcfg := cognito.Config{
			Region:     cfg.Auth.Region,
			UserPoolID: cfg.Auth.UserPoolID,
			Issuer:     cfg.Auth.Issuer,
		}
		provider, err := cognito.New(ctx, pcfg)
		if err != nil {
			return "", "", err
		}
		a.provider = provider
		issuer, jwksURL = pcfg.IssuerURL(), pcfg.JWKSURL()
	}

	if override := strings.TrimSpace(cfg.Auth.Issuer); override != "" {
		issuer = override
	}
	if override := strings.TrimSpace(cfg.Auth.JWKSURL); override != "" {
		jwksURL = override
	}
	return issuer, jwksURL, nil
}

func (a *app) wireLocker(ctx context.Context) (accounts.Locker, error) {
	if a.cfg.Lock.Kind != config.LockRedis {
		return lock.NewMemory(), nil
	}

	locker, err := lock.Dial(ctx,
		a.cfg.Lock.RedisAddr,
		a.cfg.Lock.RedisPassword,
		a.cfg.Lock.RedisDB,
		lock.WithTTL(a.cfg.Lock.TTL),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, locker.Close)
	return locker, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
