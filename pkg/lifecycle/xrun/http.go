package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server HTTP 服务器接口，*http.Server 天然满足。
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 将 Server 包装为支持优雅关闭的服务函数。
//
// ctx 取消后调用 Shutdown，shutdownTimeout <= 0 表示等待所有在途请求完成。
// 外部直接关闭服务器（ctx 未取消）时返回 nil。
func HTTPServer(server Server, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if server == nil {
			return ErrNilServer
		}
		shutdownErr := make(chan error, 1)
		listenDone := make(chan struct{})

		go func() {
			select {
			case <-ctx.Done():
				sctx := context.Background()
				if shutdownTimeout > 0 {
					var cancel context.CancelFunc
					sctx, cancel = context.WithTimeout(sctx, shutdownTimeout)
					defer cancel()
				}
				shutdownErr <- server.Shutdown(sctx)
			case <-listenDone:
			}
		}()

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			select {
			case e := <-shutdownErr:
				return e
			case <-ctx.Done():
				return <-shutdownErr
			default:
				close(listenDone)
				return nil
			}
		}
		close(listenDone)
		return err
	}
}
