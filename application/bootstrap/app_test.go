package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
	"github.com/44dummies/tradermind-server-sub000/internal/infrastructure/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Version:     "test",
		Broker:      config.BrokerConfig{Group: "test", Block: 50 * time.Millisecond},
		Risk: config.RiskConfig{
			MaxDailyLoss:         50,
			MaxConsecutiveLosses: 3,
			MaxPerAsset:          2,
			MaxGlobal:            5,
		},
		Bot:       config.BotConfig{WarmupTicks: 50, ErrorThreshold: 10, MaxHistory: 100},
		Workers:   config.WorkersConfig{DBMaxRetries: 3},
		Execution: config.ExecutionConfig{Mode: "dry_run", RateLimit: 10, RateBurst: 1, BaseStake: 1},
		Market:    config.MarketConfig{Source: "mock", MockInterval: 10 * time.Millisecond},
	}
}

func TestBuilderAppliesOptions(t *testing.T) {
	app, err := NewAppBuilder().
		WithConfig(testConfig()).
		WithOption(WithAutoStart(true)).
		WithOption(WithHTTPPort(9191)).
		WithOption(WithShutdownTimeout(time.Second)).
		Build()
	require.NoError(t, err)

	assert.True(t, app.config.Bot.AutoStart)
	assert.Equal(t, 9191, app.config.HTTP.Port)
	assert.Equal(t, time.Second, app.shutdownTimeout)
}

func TestBuilderRejectsBadOptions(t *testing.T) {
	_, err := NewAppBuilder().WithConfig(testConfig()).WithOption(WithHTTPPort(0)).Build()
	assert.Error(t, err)

	_, err = NewAppBuilder().WithConfig(testConfig()).WithOption(WithMarketSource("fax")).Build()
	assert.Error(t, err)
}

func TestRunUntilStop(t *testing.T) {
	app, err := NewAppBuilder().
		WithConfig(testConfig()).
		WithOption(WithAutoStart(true)).
		WithOption(WithShutdownTimeout(5 * time.Second)).
		Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	require.Eventually(t, app.IsRunning, 2*time.Second, 10*time.Millisecond)

	status := app.Status()
	assert.Equal(t, true, status["running"])
	bot, ok := status["bot"].(orchestrator.Status)
	require.True(t, ok)
	assert.Equal(t, orchestrator.StateStopped, bot.State, "auto-start without a running session leaves the bot stopped")

	app.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, app.IsRunning())
}
