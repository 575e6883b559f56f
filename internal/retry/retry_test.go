package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

var (
	errBoom      = errors.New("boom")
	errLimited   = errors.New("rate limited")
	errPermanent = errors.New("permanent")
)

func testPolicy(rec *sleepRecorder) Policy {
	p := Default()
	p.Sleep = rec.sleep
	p.Classify = func(err error) Decision {
		switch {
		case errors.Is(err, errLimited):
			return Decision{Action: Wait, Delay: 3 * time.Second}
		case errors.Is(err, errPermanent):
			return Decision{Action: Fatal}
		default:
			return Decision{Action: Retry}
		}
	}
	return p
}

func TestDoExhaustsAttemptsWithDoublingBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(rec), func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, rec.slept)
}

func TestDoRateLimitDoesNotConsumeAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	got, err := Do(context.Background(), testPolicy(rec), func(context.Context) (string, error) {
		calls++
		switch calls {
		case 1, 2:
			return "", errLimited
		case 3, 4, 5:
			return "", errBoom
		default:
			return "ok", nil
		}
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 6, calls)
	assert.Equal(t, []time.Duration{
		3 * time.Second, 3 * time.Second,
		500 * time.Millisecond, time.Second, 2 * time.Second,
	}, rec.slept)
}

func TestDoFatalStopsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(rec), func(context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.slept)
}

func TestDoWaitBudgetFallsBackToAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	p := testPolicy(rec)
	p.MaxWaits = 1
	calls := 0

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errLimited
	})

	assert.ErrorIs(t, err, errLimited)
	assert.Equal(t, 5, calls)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Default(), func(context.Context) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
