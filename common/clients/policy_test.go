package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPollPolicy().Validate())

	tests := []struct {
		name   string
		policy PollPolicy
	}{
		{"zero interval", PollPolicy{MaxAttempts: 3}},
		{"unbounded", PollPolicy{Interval: time.Second}},
		{"negative attempts", PollPolicy{Interval: time.Second, MaxAttempts: -1, MaxDuration: time.Minute}},
		{"negative duration", PollPolicy{Interval: time.Second, MaxDuration: -time.Second}},
		{"negative multiplier", PollPolicy{Interval: time.Second, Multiplier: -1, MaxAttempts: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.policy.Validate())
		})
	}
}

func TestPollPolicy_FixedInterval(t *testing.T) {
	b := PollPolicy{Interval: 2 * time.Second, Multiplier: 1, MaxAttempts: 5}.newBackOff()
	for i := 0; i < 4; i++ {
		assert.Equal(t, 2*time.Second, b.NextBackOff())
	}
}

func TestPollPolicy_GrowsUpToMaxInterval(t *testing.T) {
	b := PollPolicy{
		Interval:    time.Second,
		MaxInterval: 3 * time.Second,
		Multiplier:  2,
		MaxDuration: time.Minute,
	}.newBackOff()

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
}

func TestRetryPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultRetryPolicy().Validate())
	assert.Error(t, RetryPolicy{MaxRetries: -1}.Validate())
	assert.Error(t, RetryPolicy{BaseDelay: -time.Second}.Validate())
	assert.Error(t, RetryPolicy{Jitter: 1.5}.Validate())
}

func TestRetryPolicy_DelaysStayWithinJitter(t *testing.T) {
	b := RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.25}.newBackOff()

	first := b.NextBackOff()
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)

	second := b.NextBackOff()
	assert.GreaterOrEqual(t, second, 150*time.Millisecond)
	assert.LessOrEqual(t, second, 250*time.Millisecond)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseTaskState(t *testing.T) {
	state, ok := ParseTaskState("Completed")
	assert.True(t, ok)
	assert.Equal(t, StateCompleted, state)
	assert.True(t, state.IsTerminal())

	state, ok = ParseTaskState("RUNNING")
	assert.True(t, ok)
	assert.False(t, state.IsTerminal())

	_, ok = ParseTaskState("SUCCESS")
	assert.False(t, ok)
}
