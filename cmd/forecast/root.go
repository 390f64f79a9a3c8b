package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kp-forecasting/forecast-client/common/bootstrap"
	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/config"
	"github.com/kp-forecasting/forecast-client/common/storage"
)

const serviceName = "forecast"

// cli holds flag values and the components built for the running command
type cli struct {
	configFile string
	envFile    string
	baseURL    string
	logLevel   string
	outputDir  string
	storage    string

	components *bootstrap.Components
	client     *clients.ForecastClient
}

// pollFlags override the configured poll policy for wait and run
type pollFlags struct {
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int
}

// execute runs the command line and always releases what setup built
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if shutdownErr := c.teardown(); err == nil {
		err = shutdownErr
	}
	return err
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "forecast",
		Short:         "Submit CSV files to the forecast service and collect the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "YAML config file (environment variables take precedence)")
	flags.StringVar(&c.envFile, "env-file", ".env", ".env file to load if present")
	flags.StringVar(&c.baseURL, "base-url", "", "forecast service base URL (overrides FORECAST_BASE_URL)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.outputDir, "output-dir", "", "directory for downloaded artifacts (overrides OUTPUT_DIR)")
	flags.StringVar(&c.storage, "storage", "", "artifact sink: dir or minio (overrides STORAGE_KIND)")

	root.AddCommand(
		c.submitCommand(),
		c.statusCommand(),
		c.waitCommand(),
		c.downloadCommand(),
		c.runCommand(),
		c.historyCommand(),
	)

	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadFile(serviceName, c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if c.baseURL != "" {
		cfg.Client.BaseURL = c.baseURL
	}
	if c.logLevel != "" {
		cfg.Service.LogLevel = c.logLevel
	}
	if c.outputDir != "" {
		cfg.Storage.OutputDir = c.outputDir
	}
	if c.storage != "" {
		cfg.Storage.Kind = c.storage
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.components, err = bootstrap.Setup(cmd.Context(), serviceName,
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithLogWriter(cmd.ErrOrStderr()),
		bootstrap.WithoutQueue(),
	)
	if err != nil {
		return err
	}

	c.client, err = c.components.NewForecastClient()
	if err != nil {
		return err
	}
	return nil
}

func (c *cli) teardown() error {
	if c.components == nil {
		return nil
	}
	err := c.components.Shutdown(context.Background())
	c.components = nil
	return err
}

func (c *cli) sink(ctx context.Context) (storage.Sink, error) {
	return storage.New(ctx, c.components.Config.Storage)
}

func (c *cli) pollPolicy(f pollFlags) (clients.PollPolicy, error) {
	policy := c.components.Config.PollPolicy()
	if f.interval > 0 {
		policy.Interval = f.interval
		if policy.MaxInterval < f.interval {
			policy.MaxInterval = f.interval
		}
	}
	if f.timeout > 0 {
		policy.MaxDuration = f.timeout
	}
	if f.maxAttempts > 0 {
		policy.MaxAttempts = f.maxAttempts
	}
	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("invalid poll settings: %w", err)
	}
	return policy, nil
}

func (f *pollFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "initial delay between status polls")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "give up waiting after this long")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "give up after this many status polls")
}
