// Package xrun 管理进程内多个长期运行服务的启动与协调关闭。
//
// 典型用法：
//
//	err := xrun.Run(ctx, nil, map[string]func(context.Context) error{
//	    "http":   xrun.HTTPServer(srv, 10*time.Second),
//	    "warmup": scheduler.Run,
//	})
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常信号退出
//	}
package xrun
