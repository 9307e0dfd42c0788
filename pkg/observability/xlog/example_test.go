package xlog_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/omeyang/toolhub/pkg/context/xctx"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

func Example() {
	var buf bytes.Buffer
	logger, cleanup, _ := xlog.New().
		SetOutput(&buf).
		SetLevel(xlog.LevelInfo).
		SetFormat("text").
		SetEnrich(false). // 禁用 enrich 以获得可预测输出
		Build()
	defer cleanup()

	logger.Info(context.Background(), "cache warmed", xlog.Count(2))

	output := buf.String()
	fmt.Println("has level:", strings.Contains(output, "level=INFO"))
	fmt.Println("has count:", strings.Contains(output, "count=2"))
	// Output:
	// has level: true
	// has count: true
}

func Example_requestID() {
	var buf bytes.Buffer
	logger, cleanup, _ := xlog.New().SetOutput(&buf).Build()
	defer cleanup()

	ctx, _ := xctx.WithRequestID(context.Background(), "req-1")
	logger.Info(ctx, "request handled", xlog.StatusCode(200))

	fmt.Println(strings.Contains(buf.String(), "request_id=req-1"))
	// Output:
	// true
}
