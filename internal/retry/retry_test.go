package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoSingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func(int) error {
		calls++
		return errBoom
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	var attempts []int
	err := Do(context.Background(), cfg, func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDoGivesUp(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond}
	err := Do(context.Background(), cfg, func(int) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond}
	err := Do(context.Background(), cfg, func(int) error {
		calls++
		return NonRetryable(errBoom)
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, NonRetryable(nil))
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Hour}
	calls := 0
	err := Do(ctx, cfg, func(int) error {
		calls++
		cancel()
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}
