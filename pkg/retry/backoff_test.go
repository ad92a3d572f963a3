package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithBackoff_RetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	calls := 0

	err := WithBackoff(context.Background(), cfg, zap.NewNop(), "postgres_connection", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoff_GivesUp(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	boom := errors.New("boom")

	err := WithBackoff(context.Background(), cfg, zap.NewNop(), "postgres_connection", func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithBackoff(ctx, DefaultConfig(), zap.NewNop(), "postgres_connection", func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigDelayIsCapped(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10}
	assert.Equal(t, time.Second, cfg.delay(1))
	assert.Equal(t, 5*time.Second, cfg.delay(3))
}
