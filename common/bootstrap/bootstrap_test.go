package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kp-forecasting/forecast-client/common/config"
)

func TestSetup_Defaults(t *testing.T) {
	var logs bytes.Buffer
	components, err := Setup(context.Background(), "forecast", WithLogWriter(&logs))
	require.NoError(t, err)
	defer components.Shutdown(context.Background())

	assert.NotNil(t, components.Config)
	assert.NotNil(t, components.Metrics)
	assert.NotNil(t, components.Queue)
	assert.Nil(t, components.DB, "history is disabled by default")
	assert.Nil(t, components.Redis)
	assert.Nil(t, components.Telemetry)
	assert.NoError(t, components.Health(context.Background()))

	client, err := components.NewForecastClient()
	require.NoError(t, err)
	assert.Equal(t, components.Config.Client.BaseURL, client.Config().BaseURL)
}

func TestSetup_CustomConfig(t *testing.T) {
	cfg, err := config.Load("forecast")
	require.NoError(t, err)
	cfg.Client.BaseURL = "http://forecast.internal:9000"

	components, err := Setup(context.Background(), "forecast",
		WithCustomConfig(cfg),
		WithoutQueue(),
		WithLogWriter(&bytes.Buffer{}),
	)
	require.NoError(t, err)
	defer components.Shutdown(context.Background())

	assert.Nil(t, components.Queue)
	client, err := components.NewForecastClient()
	require.NoError(t, err)
	assert.Equal(t, "http://forecast.internal:9000", client.Config().BaseURL)
}

func TestShutdown_RunsCleanupsInReverse(t *testing.T) {
	components, err := Setup(context.Background(), "forecast", WithoutQueue(), WithLogWriter(&bytes.Buffer{}))
	require.NoError(t, err)

	var order []int
	components.addCleanup(func() error { order = append(order, 1); return nil })
	components.addCleanup(func() error { order = append(order, 2); return nil })

	require.NoError(t, components.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}
