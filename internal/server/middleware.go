package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/toolhub/pkg/context/xctx"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/observability/xmetrics"
)

// HTTP Header 名称
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderTraceparent = "traceparent"

	maxRequestIDLen = 128
)

// requestID 透传合法的 X-Request-ID，缺失或非法时生成 UUID；
// 若携带合法的 W3C traceparent，同时注入 trace_id / span_id。
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		ctx, _ = xctx.WithRequestID(ctx, id) //nolint:errcheck // ctx 来自 http.Request，非 nil
		if traceID, spanID, ok := parseTraceparent(r.Header.Get(HeaderTraceparent)); ok {
			ctx, _ = xctx.WithTraceID(ctx, traceID) //nolint:errcheck // 同上
			ctx, _ = xctx.WithSpanID(ctx, spanID)   //nolint:errcheck // 同上
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// parseTraceparent 解析 version 00 的 traceparent：00-{32 hex}-{16 hex}-{2 hex}。
// 全零的 trace-id / parent-id 无效。
func parseTraceparent(v string) (traceID, spanID string, ok bool) {
	v = strings.TrimSpace(v)
	if len(v) != 55 {
		return "", "", false
	}
	parts := strings.Split(v, "-")
	if len(parts) != 4 || parts[0] != "00" {
		return "", "", false
	}
	if !isHex(parts[1], 32) || !isHex(parts[2], 16) || !isHex(parts[3], 2) {
		return "", "", false
	}
	if strings.Trim(parts[1], "0") == "" || strings.Trim(parts[2], "0") == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// statusRecorder 记录响应状态码与字节数
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// accessLog 记录请求日志并为每个请求创建服务端 span。/healthz 只记 Debug。
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := xmetrics.Start(r.Context(), s.observer, xmetrics.SpanOptions{
			Component: "http",
			Operation: r.Method,
			Kind:      xmetrics.KindServer,
		})
		rec := &statusRecorder{ResponseWriter: w}
		req := r.WithContext(ctx)
		next.ServeHTTP(rec, req)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		result := xmetrics.Result{
			Status: xmetrics.StatusOK,
			Attrs: []xmetrics.Attr{
				xmetrics.String("http.route", route),
				xmetrics.Int("http.status_code", status),
			},
		}
		if status >= http.StatusInternalServerError {
			result.Status = xmetrics.StatusError
		}
		span.End(result)

		attrs := []slog.Attr{
			xlog.Method(r.Method),
			xlog.Path(r.URL.Path),
			slog.String("route", route),
			xlog.StatusCode(status),
			xlog.Duration(time.Since(start)),
			slog.Int("bytes", rec.bytes),
		}
		switch {
		case r.URL.Path == "/healthz":
			s.logger.Debug(ctx, "http request", attrs...)
		case status >= http.StatusInternalServerError:
			s.logger.Warn(ctx, "http request", attrs...)
		default:
			s.logger.Info(ctx, "http request", attrs...)
		}
	})
}

// recoverer 捕获 handler panic，记录堆栈并返回 500。
// http.ErrAbortHandler 按标准库约定继续向上抛出。
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			s.logger.Stack(r.Context(), "handler panic", slog.Any("panic", v), xlog.Path(r.URL.Path))
			writeJSON(w, http.StatusInternalServerError, envelope{
				Success: false, Error: http.StatusText(http.StatusInternalServerError),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
