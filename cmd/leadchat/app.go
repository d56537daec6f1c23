package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/cache/rediscache"
	"github.com/pario-ai/leadchat/pkg/cache/sqlite"
	"github.com/pario-ai/leadchat/pkg/client"
	"github.com/pario-ai/leadchat/pkg/config"
	"github.com/pario-ai/leadchat/pkg/logging"
)

type globalOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

// app bundles the wired components a command needs.
type app struct {
	cfg    *config.Config
	store  *cache.Store
	client *client.Client
	log    zerolog.Logger
}

func (a *app) Close() error {
	return a.store.Close()
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly; otherwise defaults plus env apply.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		err = cfg.ApplyEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.pretty {
		cfg.Logging.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openBackend(ctx context.Context, cc config.CacheConfig) (cache.Backend, error) {
	switch cc.Backend {
	case config.BackendSQLite:
		return sqlite.New(cc.DBPath)
	case config.BackendRedis:
		return rediscache.Dial(ctx, cc.RedisURL, cc.RedisKey)
	case config.BackendMemory:
		return cache.NewMemoryBackend(), nil
	default:
		return cache.NewFileBackend(cc.Path), nil
	}
}

// newApp loads config, sets up logging and opens the cache.
func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := openBackend(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache backend: %w", err)
	}

	// Pacing only makes sense for a human watching the output.
	if !isTerminal(os.Stdout) {
		cfg.Stream.Pacing = 0
	}

	store := cache.New(ctx, backend, cache.WithDuration(cfg.Cache.Duration))
	return &app{
		cfg:    cfg,
		store:  store,
		client: client.New(cfg.ClientConfig(), store),
		log:    logging.NewLogger("cli"),
	}, nil
}
