package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kp-forecasting/forecast-client/common/bootstrap"
	"github.com/kp-forecasting/forecast-client/common/config"
	"github.com/kp-forecasting/forecast-client/common/mockservice"
	"github.com/kp-forecasting/forecast-client/common/ratelimit"
	"github.com/kp-forecasting/forecast-client/common/server"
)

func main() {
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:           "forecast-mock",
		Short:         "Serve a local stand-in for the forecast service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile, envFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file (environment variables take precedence)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", ".env file to load if present")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forecast-mock: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile, envFile string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadFile("forecast-mock", configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := []bootstrap.Option{
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithoutDB(),
	}
	if cfg.Mock.Store == config.StoreRedis {
		opts = append(opts, bootstrap.WithRedis())
	}

	components, err := bootstrap.Setup(ctx, "forecast-mock", opts...)
	if err != nil {
		return err
	}
	defer components.Shutdown(context.Background())

	store := newStore(components)
	svc := mockservice.New(store, components.Queue, cfg.Mock, components.Logger)
	if components.Redis != nil {
		// Share counters between mock replicas
		svc.WithLimiter(ratelimit.NewRedisLimiter(components.Redis.GetUnderlying(), components.Logger))
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processor: %w", err)
	}

	components.Logger.Info("forecast mock ready",
		"store", cfg.Mock.Store,
		"processing_delay", cfg.Mock.ProcessingDelay,
		"fail_prefix", cfg.Mock.FailPrefix)

	return server.New("forecast-mock", cfg.Service.Port, svc.Echo(), components.Logger).Run(ctx)
}

func newStore(components *bootstrap.Components) mockservice.Store {
	if components.Redis != nil {
		return mockservice.NewRedisStore(components.Redis, components.Config.Mock.TaskTTL)
	}
	return mockservice.NewMemoryStore()
}
