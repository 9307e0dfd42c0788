package xrun

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() Option { return WithLogger(xlog.Discard()) }

func TestGroup_ErrorCancelsSiblings(t *testing.T) {
	errBoom := errors.New("boom")
	g, _ := NewGroup(context.Background(), quiet(), WithName("test"))

	var stopped atomic.Bool
	g.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})
	g.Go("failer", func(context.Context) error { return errBoom })

	assert.ErrorIs(t, g.Wait(), errBoom)
	assert.True(t, stopped.Load())
}

func TestGroup_CancelCause(t *testing.T) {
	errStop := errors.New("stop requested")

	g, _ := NewGroup(context.Background(), quiet())
	g.Go("waiter", WaitForDone())
	g.Cancel(errStop)
	assert.ErrorIs(t, g.Wait(), errStop)

	g, _ = NewGroup(context.Background(), quiet())
	g.Go("waiter", WaitForDone())
	g.Cancel(nil)
	assert.NoError(t, g.Wait(), "无显式原因的取消视为正常退出")

	g, _ = NewGroup(context.Background(), quiet())
	g.Go("returns-nil", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Cancel(errStop)
	assert.ErrorIs(t, g.Wait(), errStop, "服务返回 nil 时仍保留取消原因")
}

func TestGroup_InternalCanceledPassesThrough(t *testing.T) {
	g, _ := NewGroup(context.Background(), quiet())
	g.Go("inner", func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, g.Wait(), context.Canceled)
}

func TestGroup_NilFuncAndContext(t *testing.T) {
	//nolint:staticcheck // 测试 nil ctx 归一化
	g, ctx := NewGroup(nil, quiet(), nil)
	require.NotNil(t, ctx)
	g.Go("nil", nil)
	assert.ErrorIs(t, g.Wait(), ErrNilFunc)
}

func TestRun_Signal(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM

	err := Run(context.Background(),
		[]Option{quiet(), withSignalSource(sigs), WithSignals(syscall.SIGUSR1)},
		map[string]func(context.Context) error{"waiter": WaitForDone()},
	)
	require.ErrorIs(t, err, ErrSignal)

	var sigErr *SignalError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, syscall.SIGTERM, sigErr.Signal)
	assert.Contains(t, err.Error(), "terminated")
	assert.Equal(t, "received signal <nil>", (&SignalError{}).Error())
}

func TestRun_WithoutSignalHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, []Option{quiet(), WithoutSignalHandler()},
		map[string]func(context.Context) error{"waiter": WaitForDone()})
	assert.NoError(t, err)
}

type fakeServer struct {
	listenErr   error
	shutdownErr error
	stop        chan struct{}
	shutdowns   atomic.Int32
}

func newFakeServer() *fakeServer { return &fakeServer{stop: make(chan struct{})} }

func (s *fakeServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	if s.shutdowns.Add(1) == 1 {
		close(s.stop)
	}
	return s.shutdownErr
}

func TestHTTPServer(t *testing.T) {
	t.Run("ctx cancel triggers shutdown", func(t *testing.T) {
		srv := newFakeServer()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- HTTPServer(srv, time.Second)(ctx) }()
		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, int32(1), srv.shutdowns.Load())
	})

	t.Run("shutdown error propagates", func(t *testing.T) {
		srv := newFakeServer()
		srv.shutdownErr = errors.New("deadline")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.EqualError(t, HTTPServer(srv, 0)(ctx), "deadline")
	})

	t.Run("listen error", func(t *testing.T) {
		srv := newFakeServer()
		srv.listenErr = errors.New("address in use")
		assert.EqualError(t, HTTPServer(srv, time.Second)(context.Background()), "address in use")
	})

	t.Run("external close", func(t *testing.T) {
		srv := newFakeServer()
		close(srv.stop)
		assert.NoError(t, HTTPServer(srv, time.Second)(context.Background()))
	})

	t.Run("nil server", func(t *testing.T) {
		assert.ErrorIs(t, HTTPServer(nil, 0)(context.Background()), ErrNilServer)
	})
}
