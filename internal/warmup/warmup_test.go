package warmup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTarget struct {
	calls   atomic.Int32
	block   chan struct{}
	report  xttl.PreloadReport
	doPanic bool
}

func (f *fakeTarget) PreloadCritical(ctx context.Context) xttl.PreloadReport {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.doPanic {
		panic("preload exploded")
	}
	return f.report
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, ErrNilTarget)

	_, err = New(Config{Schedule: "not a schedule"}, &fakeTarget{})
	require.Error(t, err)

	s, err := New(Config{}, &fakeTarget{}, WithLogger(xlog.Discard()))
	require.NoError(t, err)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(5*time.Minute), s.Next(from), "默认 @every 5m")
	assert.Equal(t, DefaultConfig().Timeout, s.cfg.Timeout)
}

func TestScheduler_RunOnce(t *testing.T) {
	target := &fakeTarget{report: xttl.PreloadReport{Requested: 2, Loaded: 1, Failed: 1}}
	s, err := New(DefaultConfig(), target, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	report, ran := s.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Equal(t, target.report, report)

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Runs)
	assert.Equal(t, target.report, st.LastReport)
	assert.False(t, st.LastRun.IsZero())
}

func TestScheduler_RunOnceSkipsOverlap(t *testing.T) {
	target := &fakeTarget{block: make(chan struct{})}
	s, err := New(DefaultConfig(), target, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunOnce(context.Background())
	}()
	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, ran := s.RunOnce(context.Background())
	assert.False(t, ran)
	assert.Equal(t, uint64(1), s.Stats().Skipped)

	close(target.block)
	<-done
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestScheduler_RunOnceRecoversPanic(t *testing.T) {
	target := &fakeTarget{doPanic: true}
	s, err := New(DefaultConfig(), target, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, ran := s.RunOnce(context.Background())
		assert.True(t, ran)
	})
	_, ran := s.RunOnce(context.Background())
	assert.True(t, ran, "panic 后运行标记已释放")
}

func TestScheduler_Run(t *testing.T) {
	target := &fakeTarget{}
	s, err := New(Config{Enabled: true, Schedule: "@every 1h", RunOnStart: true}, target, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_RunDisabled(t *testing.T) {
	target := &fakeTarget{}
	s, err := New(Config{Enabled: false, RunOnStart: true}, target, WithLogger(xlog.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, target.calls.Load())
}

func TestKVAttrs(t *testing.T) {
	attrs := kvAttrs([]any{"now", 1, 2, "x", "dangling"})
	require.Len(t, attrs, 2)
	assert.Equal(t, "now", attrs[0].Key)
	assert.Equal(t, "2", attrs[1].Key)
}
