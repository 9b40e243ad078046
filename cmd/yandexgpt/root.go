package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/cache"
	"github.com/black-roland/homeassistant-yandexgpt/imagegen"
	"github.com/black-roland/homeassistant-yandexgpt/integration"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
	"github.com/black-roland/homeassistant-yandexgpt/server"
	"github.com/black-roland/homeassistant-yandexgpt/tools"
)

type rootOptions struct {
	configPath string
	logLevel   string
	dev        bool

	cfg    *integration.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "yandexgpt",
		Short:         "YandexGPT conversation agent for Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			_ = godotenv.Load()
			logger, err := observability.NewLogger(opts.logLevel, opts.dev)
			if err != nil {
				return err
			}
			opts.logger = logger
			cfg, err := integration.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "human readable logs")

	cmd.AddCommand(newChatCmd(opts), newServeCmd(opts), newImageCmd(opts), newSensorCmd(opts))
	return cmd
}

// app is the wired set of components shared by subcommands.
type app struct {
	cfg      *integration.Config
	logger   *zap.Logger
	registry *integration.Registry
	sink     imagegen.Sink
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := opts.cfg
	apis := tools.NewAPIRegistry()
	assist, err := tools.NewAssistAPI(tools.AssistConfig{
		HassURL:   cfg.Home.URL,
		HassToken: cfg.Home.Token,
		TimeZone:  cfg.Home.TimeZone,
	})
	if err != nil {
		return nil, err
	}
	if err := apis.Register(assist); err != nil {
		return nil, err
	}
	reg, err := integration.NewRegistry(integration.RegistryConfig{APIs: apis, TimeZone: cfg.Home.TimeZone, Logger: opts.logger})
	if err != nil {
		return nil, err
	}
	for _, e := range cfg.Entries {
		if _, err := reg.Setup(ctx, e); err != nil {
			return nil, err
		}
	}

	var sink imagegen.Sink = imagegen.FileSink{Dir: cfg.Images.Dir}
	if s3cfg := cfg.Images.S3; s3cfg != nil {
		s3sink, err := imagegen.NewS3Sink(ctx, imagegen.S3Config{
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		sink = s3sink
	}
	return &app{cfg: cfg, logger: opts.logger, registry: reg, sink: sink}, nil
}

func (a *app) runtime(id string) (*integration.Runtime, error) {
	if id == "" {
		if len(a.cfg.Entries) == 0 {
			return nil, fmt.Errorf("no entries configured")
		}
		id = a.cfg.Entries[0].ID
	}
	rt, ok := a.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown entry %q", id)
	}
	return rt, nil
}

func (a *app) generator(id string) (server.ImageGenerator, error) {
	rt, err := a.runtime(id)
	if err != nil {
		return nil, err
	}
	return imagegen.NewGenerator(rt.Foundation, a.sink, imagegen.WithLogger(a.logger)), nil
}

// completionCaches returns a cache factory. Sensors share one Redis
// namespace when Redis is configured and get private LRUs otherwise.
func (a *app) completionCaches() func() cache.Cache {
	if a.cfg.Cache.RedisAddr != "" {
		shared := cache.NewRedis(cache.RedisConfig{Addr: a.cfg.Cache.RedisAddr, TTL: a.cfg.Cache.TTL})
		return func() cache.Cache { return shared }
	}
	return func() cache.Cache { return cache.NewLRU(cache.DefaultSize) }
}
