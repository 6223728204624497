package infra_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"promixer/internal/infra"
)

func fastBackoff(attempts int) infra.Backoff {
	return infra.Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
}

func TestBackoff_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastBackoff(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_GivesUp(t *testing.T) {
	calls := 0
	err := fastBackoff(4).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, 4, calls)
}

func TestBackoff_PermanentStops(t *testing.T) {
	base := errors.New("bad request")
	calls := 0
	err := fastBackoff(5).Do(context.Background(), func(context.Context) error {
		calls++
		return infra.Permanent(base)
	})

	assert.ErrorIs(t, err, base)
	assert.Equal(t, 1, calls)
	assert.NoError(t, infra.Permanent(nil))
}

func TestBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := infra.Backoff{Attempts: 5, Initial: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, infra.RetryableStatus(http.StatusTooManyRequests))
	assert.True(t, infra.RetryableStatus(http.StatusBadGateway))
	assert.False(t, infra.RetryableStatus(http.StatusBadRequest))
	assert.False(t, infra.RetryableStatus(http.StatusOK))
}
