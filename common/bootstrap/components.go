package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/config"
	"github.com/kp-forecasting/forecast-client/common/db"
	"github.com/kp-forecasting/forecast-client/common/logger"
	"github.com/kp-forecasting/forecast-client/common/metrics"
	"github.com/kp-forecasting/forecast-client/common/queue"
	"github.com/kp-forecasting/forecast-client/common/redis"
	"github.com/kp-forecasting/forecast-client/common/telemetry"
)

// Components holds all initialized dependencies
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.ClientMetrics
	DB        *db.DB
	Redis     *redis.Client
	Queue     queue.Queue
	Telemetry *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// NewForecastClient builds a client from the loaded config, wired to the logger and metrics
func (c *Components) NewForecastClient(opts ...clients.Option) (*clients.ForecastClient, error) {
	base := []clients.Option{
		clients.WithLogger(c.Logger),
		clients.WithRecorder(c.Metrics),
	}
	return clients.NewForecastClient(c.Config.ClientConfig(), append(base, opts...)...)
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Debug("shutting down components")

	var errs []error

	// LIFO
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	c.cleanupFuncs = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	c.Logger.Debug("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
