package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/beekhof/lab-calendar-sync/internal/auth"
	calclient "github.com/beekhof/lab-calendar-sync/internal/calendar"
	"github.com/beekhof/lab-calendar-sync/internal/config"
	"github.com/beekhof/lab-calendar-sync/internal/lock"
	"github.com/beekhof/lab-calendar-sync/internal/model"
	"github.com/beekhof/lab-calendar-sync/internal/store"
	"github.com/beekhof/lab-calendar-sync/internal/sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// app holds everything a command needs, built from the configuration.
type app struct {
	cfg    *config.Config
	store  *store.Store
	tokens auth.TokenStore
	redis  *redis.Client
	graph  *calclient.GraphClient
	out    io.Writer
	json   bool
}

func newApp(opts *rootOptions) (*app, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	flags := opts.Flags
	flags.Verbose = opts.Verbose
	cfg, err := config.LoadConfig(opts.ConfigFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		store: st,
		graph: calclient.NewGraphClient(nil, ""),
		out:   os.Stdout,
		json:  opts.JSON,
	}

	// Tokens live in the database unless a token directory keeps them apart.
	a.tokens = st
	if cfg.TokenDir != "" {
		if err := os.MkdirAll(cfg.TokenDir, 0700); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create token directory: %w", err)
		}
		a.tokens = auth.NewFileTokenStore(cfg.TokenDir)
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Warning: failed to close redis client: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}

func (a *app) credentials(provider model.Provider) (auth.Credentials, error) {
	switch provider {
	case model.ProviderGoogle:
		if !a.cfg.GoogleConfigured() {
			return auth.Credentials{}, fmt.Errorf("google OAuth client is not configured")
		}
		return auth.Credentials{ClientID: a.cfg.GoogleClientID, ClientSecret: a.cfg.GoogleClientSecret}, nil
	case model.ProviderMicrosoft:
		if !a.cfg.MicrosoftConfigured() {
			return auth.Credentials{}, fmt.Errorf("microsoft OAuth client is not configured")
		}
		return auth.Credentials{
			ClientID:     a.cfg.MicrosoftClientID,
			ClientSecret: a.cfg.MicrosoftClientSecret,
			Tenant:       a.cfg.MicrosoftTenant,
		}, nil
	}
	return auth.Credentials{}, fmt.Errorf("unsupported provider %q", provider)
}

// oauthConfigs returns the OAuth configuration of every configured provider.
func (a *app) oauthConfigs() map[model.Provider]*oauth2.Config {
	configs := map[model.Provider]*oauth2.Config{}
	for _, provider := range []model.Provider{model.ProviderGoogle, model.ProviderMicrosoft} {
		creds, err := a.credentials(provider)
		if err != nil {
			continue
		}
		configs[provider] = auth.OAuthConfig(provider, creds)
	}
	return configs
}

// locker shares leases through Redis when it is configured.
func (a *app) locker() lock.Locker {
	if a.redis != nil {
		return lock.NewRedisLocker(a.redis)
	}
	return lock.NewLocalLocker()
}

func (a *app) syncer() *sync.Syncer {
	manager := auth.NewManager(a.tokens, a.oauthConfigs())
	manager.Verbose = a.cfg.Verbose

	return sync.NewSyncer(a.store, manager, sync.DefaultSources(a.graph), sync.Options{
		Verbose:     a.cfg.Verbose,
		MonthsPast:  a.cfg.SyncMonthsPast,
		MonthsAhead: a.cfg.SyncMonthsAhead,
		Concurrency: a.cfg.SyncConcurrency,
		Locker:      a.locker(),
		Conflicts:   a.registrar(),
	})
}

// printJSON writes v indented to the command output.
func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// runWithApp builds the app for the duration of one command.
func runWithApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	a.out = cmd.OutOrStdout()
	return fn(cmd.Context(), a)
}
