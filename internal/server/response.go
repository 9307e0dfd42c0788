package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

// envelope 统一 JSON 响应
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

var (
	// errBadRequest 请求参数错误
	errBadRequest = errors.New("bad request")
	// errMethodNotAllowed 路径存在但不支持该方法
	errMethodNotAllowed = errors.New("method not allowed")
)

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }
func (e *badRequestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeList 列表响应附带 count
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &n})
}

// statusFor 将领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, catalog.ErrInvalidSlug),
		errors.Is(err, catalog.ErrInvalidSubmission),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnavailable),
		errors.Is(err, catalog.ErrStoreClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 4xx 返回错误详情，5xx 只返回通用描述并记录日志。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusNotFound:
		msg = "not found"
	case status >= http.StatusInternalServerError:
		if errors.Is(r.Context().Err(), context.Canceled) {
			s.logger.Debug(r.Context(), "client went away", xlog.Path(r.URL.Path), xlog.Err(err))
		} else {
			s.logger.Error(r.Context(), "request failed",
				xlog.Method(r.Method), xlog.Path(r.URL.Path), xlog.StatusCode(status), xlog.Err(err))
		}
		msg = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
