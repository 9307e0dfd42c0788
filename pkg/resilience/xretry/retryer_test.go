package xretry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/toolhub/pkg/resilience/xretry"
)

func fastRetryer(attempts int, opts ...xretry.RetryerOption) *xretry.Retryer {
	opts = append([]xretry.RetryerOption{
		xretry.WithMaxAttempts(attempts),
		xretry.WithBackoff(xretry.NewFixedBackoff(time.Millisecond)),
	}, opts...)
	return xretry.NewRetryer(opts...)
}

func TestRetryer_Do(t *testing.T) {
	t.Run("成功前重试", func(t *testing.T) {
		var calls int
		var retried []int
		r := fastRetryer(3, xretry.WithOnRetry(func(attempt int, _ error) {
			retried = append(retried, attempt)
		}))
		err := r.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("耗尽次数返回最后错误", func(t *testing.T) {
		var calls int
		err := fastRetryer(2).Do(context.Background(), func(context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 2, calls)
	})

	t.Run("永久错误不重试", func(t *testing.T) {
		sentinel := errors.New("not found")
		var calls int
		err := fastRetryer(5).Do(context.Background(), func(context.Context) error {
			calls++
			return xretry.NewPermanentError(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})

	t.Run("Unrecoverable 不重试", func(t *testing.T) {
		var calls int
		_ = fastRetryer(5).Do(context.Background(), func(context.Context) error {
			calls++
			return xretry.Unrecoverable(errors.New("bad input"))
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("参数校验", func(t *testing.T) {
		r := xretry.NewRetryer()
		//nolint:staticcheck // 测试 nil ctx
		assert.ErrorIs(t, r.Do(nil, func(context.Context) error { return nil }), xretry.ErrNilContext)
		assert.ErrorIs(t, r.Do(context.Background(), nil), xretry.ErrNilFunc)
		assert.Equal(t, 3, r.MaxAttempts())
		assert.Equal(t, 1, xretry.NewRetryer(xretry.WithMaxAttempts(0)).MaxAttempts())
	})
}

func TestDoWithResult(t *testing.T) {
	var calls int
	got, err := xretry.DoWithResult(context.Background(), fastRetryer(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = xretry.DoWithResult[int](context.Background(), fastRetryer(1), nil)
	assert.ErrorIs(t, err, xretry.ErrNilFunc)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, xretry.IsRetryable(nil))
	assert.True(t, xretry.IsRetryable(errors.New("x")))
	assert.False(t, xretry.IsRetryable(xretry.NewPermanentError(nil)))
	assert.Equal(t, "permanent error", xretry.NewPermanentError(nil).Error())
}

func TestExponentialBackoff(t *testing.T) {
	b := xretry.NewExponentialBackoff(
		xretry.WithInitialDelay(10*time.Millisecond),
		xretry.WithMaxDelay(50*time.Millisecond),
		xretry.WithJitter(0),
	)
	assert.Equal(t, 10*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 20*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 40*time.Millisecond, b.NextDelay(3))
	assert.Equal(t, 50*time.Millisecond, b.NextDelay(4))
	assert.Equal(t, 50*time.Millisecond, b.NextDelay(10000))

	jittered := xretry.NewExponentialBackoff(xretry.WithJitter(5))
	d := jittered.NextDelay(1)
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 200*time.Millisecond)

	assert.Equal(t, time.Duration(0), xretry.NewFixedBackoff(-time.Second).NextDelay(1))
}
