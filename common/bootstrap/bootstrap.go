package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kp-forecasting/forecast-client/common/config"
	"github.com/kp-forecasting/forecast-client/common/db"
	"github.com/kp-forecasting/forecast-client/common/logger"
	"github.com/kp-forecasting/forecast-client/common/metrics"
	"github.com/kp-forecasting/forecast-client/common/queue"
	"github.com/kp-forecasting/forecast-client/common/redis"
	"github.com/kp-forecasting/forecast-client/common/telemetry"
)

// Setup initializes all components a binary needs
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		if err := config.LoadEnvFile(options.envFile); err != nil {
			return nil, err
		}
		components.Config, err = config.LoadFile(serviceName, options.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	switch {
	case options.customLogger != nil:
		components.Logger = options.customLogger
	default:
		w := options.logWriter
		if w == nil {
			w = os.Stdout
		}
		components.Logger = logger.NewWithWriter(w,
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Debug("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Metrics registry
	components.Registry = prometheus.NewRegistry()
	components.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	components.Metrics = metrics.MustNewClientMetrics(components.Registry)
	if err := metrics.RegisterHostInfo(components.Registry, serviceName); err != nil {
		components.Logger.Warn("failed to register host info", "error", err)
	}

	// 4. Initialize database (job history)
	if !options.skipDB && components.Config.Database.Enabled {
		components.Logger.Debug("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if err := components.DB.Migrate(ctx); err != nil {
			components.Shutdown(ctx)
			return nil, err
		}

		if options.dbInitHook != nil {
			components.Logger.Debug("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 5. Initialize redis
	if options.withRedis {
		cfg := components.Config.Redis
		components.Redis, err = redis.Connect(ctx, redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, err
		}
		components.addCleanup(func() error {
			components.Logger.Debug("closing redis")
			return components.Redis.Close()
		})
	}

	// 6. Initialize queue
	if !options.skipQueue {
		components.Queue = queue.NewMemoryQueue(0, components.Logger)
		components.addCleanup(func() error {
			components.Logger.Debug("closing queue")
			return components.Queue.Close()
		})
	}

	// 7. Initialize telemetry
	tel := components.Config.Telemetry
	if !options.skipTelemetry && (tel.EnablePprof || tel.EnableMetrics) {
		pprofPort, metricsPort := 0, 0
		if tel.EnablePprof {
			pprofPort = tel.PprofPort
		}
		if tel.EnableMetrics {
			metricsPort = tel.MetricsPort
		}

		components.Telemetry = telemetry.New(pprofPort, metricsPort, components.Registry, components.Logger)
		if err := components.Telemetry.Start(ctx); err != nil {
			// Don't fail startup if telemetry fails
			components.Logger.Warn("failed to start telemetry", "error", err)
		} else {
			components.addCleanup(func() error {
				return components.Telemetry.Shutdown(context.Background())
			})
		}
	}

	components.Logger.Debug("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
